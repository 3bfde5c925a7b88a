package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/formflow/internal/forms"
	"github.com/tjfontaine/formflow/internal/prompt"
	"github.com/tjfontaine/formflow/internal/schema"
)

type optionDoc struct {
	Value any    `yaml:"value"`
	Label string `yaml:"label"`
}

type fieldDoc struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"`
	Required    string      `yaml:"required"`
	Description string      `yaml:"description,omitempty"`
	Default     any         `yaml:"default,omitempty"`
	OnInvalid   string      `yaml:"on_invalid,omitempty"`
	Options     []optionDoc `yaml:"options,omitempty"`
}

type formDoc struct {
	Code       string         `yaml:"code"`
	Fields     []fieldDoc     `yaml:"fields,omitempty"`
	JSONSchema map[string]any `yaml:"json_schema,omitempty"`
}

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the built-in forms as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSchema, _ := cmd.Flags().GetBool("schema")

		templates, err := prompt.NewSet()
		if err != nil {
			return err
		}
		defs, err := forms.Definitions(templates, nil)
		if err != nil {
			return err
		}

		var docs []formDoc
		for _, def := range defs {
			doc := formDoc{Code: def.FormID, Fields: describeFields(def.Schema)}
			if withSchema {
				doc.JSONSchema = def.Schema.JSONSchema()
			}
			docs = append(docs, doc)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(docs)
	},
}

func describeFields(s *schema.Schema) []fieldDoc {
	fields := s.Fields()
	out := make([]fieldDoc, 0, len(fields))
	for _, f := range fields {
		doc := fieldDoc{
			Name:        f.Name,
			Kind:        string(f.Kind),
			Required:    f.Required.String(),
			Description: f.Description,
			Default:     f.Default,
		}
		if f.OnInvalid == schema.Fallback {
			doc.OnInvalid = "fallback"
		}
		for _, o := range f.Options {
			doc.Options = append(doc.Options, optionDoc{Value: o.Value, Label: o.Label})
		}
		out = append(out, doc)
	}
	return out
}

func init() {
	formsCmd.Flags().Bool("schema", false, "Include the derived JSON Schema of each form")
	rootCmd.AddCommand(formsCmd)
}
