package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abhisek/redpen/internal/app"
)

var reviseCmd = &cobra.Command{
	Use:   "revise <session-id>",
	Short: "Open the revision workspace for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if _, err := e.svc.Get(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		// The alternate screen owns stderr while the TUI runs.
		if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		logFile, err := os.OpenFile(filepath.Join(e.cfg.DataDir, "redpen.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		verbose, _ := cmd.Flags().GetBool("verbose")
		setLogger(logFile, verbose)

		return app.Run(app.Options{
			Service:   e.svc,
			SessionID: args[0],
			DataDir:   e.cfg.DataDir,
		})
	},
}
