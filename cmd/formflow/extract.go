package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [utterance]",
	Short: "Extract one record and print it as JSON",
	Long: `Extract one record from the utterance given as arguments, or from stdin
when no arguments are given. The result is printed as JSON; a failed
extraction exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, _ := cmd.Flags().GetString("form")

		utterance := strings.Join(args, " ")
		if utterance == "" {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			utterance = strings.TrimSpace(string(b))
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		res := a.svc.Execute(cmd.Context(), utterance, formID)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.OK() {
			return res.Err()
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringP("form", "f", "", "Form code to extract")
	_ = extractCmd.MarkFlagRequired("form")
	rootCmd.AddCommand(extractCmd)
}
