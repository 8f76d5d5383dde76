package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"answergen/internal/extract"
	"answergen/internal/models"
	"answergen/internal/services"
)

func generateCmd() *cobra.Command {
	var (
		file    string
		subject string
		mode    string
		prompt  string
		format  string
		notes   []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Answer every question in a document and compile the answers to PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}
			declared, err := parseFormatFlag(format)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := os.Open(file)
			if err != nil {
				return err
			}
			defer src.Close()
			info, err := src.Stat()
			if err != nil {
				return err
			}

			var sources []extract.Source
			for _, path := range notes {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				st, err := f.Stat()
				if err != nil {
					return err
				}
				sources = append(sources, extract.Source{Name: filepath.Base(path), R: f, Size: st.Size()})
			}

			errOut := cmd.ErrOrStderr()
			run, err := a.pipeline.Run(cmd.Context(), services.RunRequest{
				SourceName:   filepath.Base(file),
				Source:       src,
				Size:         info.Size(),
				Format:       declared,
				Subject:      subject,
				Mode:         m,
				CustomPrompt: prompt,
				Notes:        sources,
			}, func(step, message string, current, total int) {
				fmt.Fprintf(errOut, "[%s] %s\n", step, message)
			})
			if err != nil {
				return explain(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "Questions: %d (%d failed)\n", len(run.Records), run.FailedCount())
			fmt.Fprintf(out, "Pages: %d\n", run.PageCount)
			fmt.Fprintf(out, "Document: %s\n", run.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "question paper (PDF, .docx, PNG or JPG)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject, e.g. \"Computer Science\"")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(models.ModeUnderstand), "answer mode: understand|exam")
	cmd.Flags().StringVar(&prompt, "prompt", "", "additional instructions for every answer")
	cmd.Flags().StringVar(&format, "format", "", "declared file format: pdf|word|image (default: detect)")
	cmd.Flags().StringSliceVar(&notes, "notes", nil, "reference notes files")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func parseFormatFlag(raw string) (models.Format, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	f, ok := extract.ParseFormat(raw)
	if !ok {
		return "", fmt.Errorf("unknown format %q", raw)
	}
	return f, nil
}

// explain appends the user guidance carried by extraction errors.
func explain(err error) error {
	var extErr *extract.ExtractionError
	if errors.As(err, &extErr) && extErr.Guidance != "" {
		return fmt.Errorf("%w\n%s", err, extErr.Guidance)
	}
	return err
}
