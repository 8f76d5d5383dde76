package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func questionsCmd() *cobra.Command {
	var (
		file   string
		format string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Show the questions found in a document without answering them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			prev, err := a.pipeline.Preview(cmd.Context(), filepath.Base(file), src, info.Size(), declared)
			if err != nil {
				return explain(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(prev.Segments)
			}

			if prev.Segments.LowConfidence {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: question numbering not detected; the document is treated as one question")
			} else {
				fmt.Fprintf(out, "Numbering: %s\n", prev.Segments.Pattern)
			}
			for _, q := range prev.Segments.Questions {
				fmt.Fprintf(out, "%d. %s\n", q.Index+1, q.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "question paper (PDF, .docx, PNG or JPG)")
	cmd.Flags().StringVar(&format, "format", "", "declared file format: pdf|word|image (default: detect)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the segmentation result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
