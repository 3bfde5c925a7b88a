package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/formflow/internal/export"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract one record per input line and write an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, _ := cmd.Flags().GetString("form")
		inPath, _ := cmd.Flags().GetString("in")
		outPath, _ := cmd.Flags().GetString("out")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		sch, err := a.svc.Schema(formID)
		if err != nil {
			return err
		}

		in, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer in.Close()

		rows, err := export.ReadLines(in)
		if err != nil {
			return err
		}
		a.logger.Info("batch started", slog.String("form_code", formID), slog.Int("rows", len(rows)))

		if err := export.Run(cmd.Context(), a.svc, formID, rows, concurrency); err != nil {
			return err
		}

		out, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(out, sch, rows); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}

		succeeded, failed := export.Summary(rows)
		fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed, written to %s\n", succeeded, failed, outPath)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringP("form", "f", "", "Form code to extract")
	batchCmd.Flags().String("in", "", "Input file with one utterance per line")
	batchCmd.Flags().String("out", "results.xlsx", "Output workbook path")
	batchCmd.Flags().Int("concurrency", 4, "Extractions in flight")
	_ = batchCmd.MarkFlagRequired("form")
	_ = batchCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(batchCmd)
}
