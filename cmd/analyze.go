package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/session"
)

const (
	essayPreviewChars = 2000
	stepPreviewChars  = 4000
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Extract an essay, run the step and error models, and store the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		id, _ := cmd.Flags().GetString("id")

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read essay: %w", err)
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		rec, err := e.svc.Create(ctx, session.Upload{
			Filename: filepath.Base(args[0]),
			Content:  content,
			Student:  ledger.Student{Name: name, ID: id},
		})
		if err != nil {
			return err
		}

		fmt.Printf("Session:  %s\n", rec.ID)
		fmt.Printf("Student:  %s (%s)\n", rec.Student.DisplayName(), rec.Student.DisplayID())
		printSection("ESSAY", preview(rec.OriginalText, essayPreviewChars))

		rec, _, analyzeErr := e.svc.Analyze(ctx, rec.ID)
		if rec.StepOutput != "" {
			printSection("STEPS", preview(rec.StepOutput, stepPreviewChars))
		}
		if analyzeErr != nil {
			fmt.Fprintf(os.Stderr, "\nSession %s was kept. Retry with `a` in: redpen revise %s\n", rec.ID, rec.ID)
			return fmt.Errorf("analyze: %w", analyzeErr)
		}

		printSection("FINDINGS", "")
		if len(rec.Findings) == 0 {
			fmt.Println("No structured findings. Raw error-model output:")
			fmt.Println(rec.ErrorOutput)
			return nil
		}
		printFindings(rec.Findings)
		fmt.Printf("\nRevise with: redpen revise %s\n", rec.ID)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("name", "", "Student name")
	analyzeCmd.Flags().String("id", "", "Student ID")
}

// preview returns the first n characters of s, marking truncation.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n…"
}

func printSection(title, body string) {
	sep := strings.Repeat("─", 60)
	fmt.Println()
	fmt.Println(sep)
	fmt.Println(title)
	fmt.Println(sep)
	if body != "" {
		fmt.Println(body)
	}
}

func printFindings(findings []ledger.Finding) {
	fmt.Printf("%-4s  %-32s  %-6s  %s\n", "#", "Name", "Status", "Location")
	fmt.Println(strings.Repeat("─", 72))
	for i, f := range findings {
		name := f.Name
		if name == "" {
			name = ledger.DefaultName(i)
		}
		status := string(f.Status)
		if status == "" {
			status = string(ledger.StatusNo)
		}
		fmt.Printf("%-4d  %-32s  %-6s  %s\n", i+1, truncate(name, 32), status, orDash(f.Location))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
