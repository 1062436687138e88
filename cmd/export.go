package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/redpen/internal/export"
	"github.com/abhisek/redpen/internal/ledger"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write a session's results as a ZIP archive or a directory",
	Long: "Without flags the ZIP archive is written to the data directory. --zip names the\n" +
		"archive path; --dir writes a timestamped directory under the given root.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zipPath, _ := cmd.Flags().GetString("zip")
		dirRoot, _ := cmd.Flags().GetString("dir")
		if zipPath != "" && dirRoot != "" {
			return errors.New("--zip and --dir are mutually exclusive")
		}

		cfg, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.SessionRepo().Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		bundle := ledger.FromRecord(rec).Export()

		if dirRoot != "" {
			dir, err := export.WriteDir(dirRoot, bundle, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		}

		if zipPath == "" {
			zipPath = filepath.Join(cfg.DataDir, export.ArchiveName(bundle.Student))
		}
		if err := export.WriteZipFile(zipPath, bundle); err != nil {
			return err
		}
		fmt.Println(zipPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("zip", "", "Archive path")
	exportCmd.Flags().String("dir", "", "Root directory for a directory export")
}
