package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		sessions, err := s.SessionRepo().List(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-12s  %-19s  %s\n", "ID", "Student", "Student ID", "Updated", "Findings")
		fmt.Println(strings.Repeat("─", 104))
		for _, ss := range sessions {
			fmt.Printf("%-36s  %-20s  %-12s  %-19s  %d\n",
				ss.ID,
				truncate(ss.Student.DisplayName(), 20),
				truncate(ss.Student.DisplayID(), 12),
				ss.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				ss.FindingCount,
			)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's findings and edit history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.SessionRepo().Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		fmt.Printf("Session:  %s\n", rec.ID)
		fmt.Printf("Student:  %s (%s)\n", rec.Student.DisplayName(), rec.Student.DisplayID())
		fmt.Printf("Created:  %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))

		printSection("FINDINGS", "")
		if len(rec.Findings) == 0 {
			fmt.Println("(none)")
		} else {
			printFindings(rec.Findings)
		}

		printSection("EDIT LOG", "")
		if len(rec.Logs) == 0 {
			fmt.Println("(no attempts yet)")
			return nil
		}
		fmt.Printf("%-19s  %-4s  %-8s  %8s  %-11s  %s\n", "Time", "#", "Action", "Seconds", "Diff i/d/r", "Fixed")
		fmt.Println(strings.Repeat("─", 72))
		for _, e := range rec.Logs {
			printLogEntry(e)
		}
		return nil
	},
}

func printLogEntry(e ledger.EditLogEntry) {
	secs := "-"
	if e.TimeUsedS != nil {
		secs = fmt.Sprintf("%.2f", *e.TimeUsedS)
	}
	fixed := "-"
	if e.AICheck != nil {
		fixed = string(e.AICheck.Fixed)
	}
	fmt.Printf("%-19s  %-4d  %-8s  %8s  %-11s  %s\n",
		e.Timestamp.Local().Format("2006-01-02 15:04:05"),
		e.ErrorIndex+1,
		e.Action,
		secs,
		fmt.Sprintf("%d/%d/%d", e.Diff.Insert, e.Diff.Delete, e.Diff.Replace),
		fixed,
	)
}

func init() {
	sessionsCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
}
