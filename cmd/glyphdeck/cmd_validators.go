package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glyphdeck/internal/schema"
)

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "List the response validators and their fields",
	Args:  cobra.NoArgs,
	RunE:  listValidators,
}

func listValidators(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, name := range schema.Names() {
		v, err := schema.Lookup(name)
		if err != nil {
			return err
		}
		fields := make([]string, 0, len(v.Fields()))
		for _, f := range v.Fields() {
			fields = append(fields, f.Name)
		}
		marker := " "
		if cfg != nil && cfg.LLM.Validator == name {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, titleStyle.Render(name))
		fmt.Fprintf(out, "    %s\n", v.Description())
		fmt.Fprintf(out, "    fields: %s\n", strings.Join(fields, ", "))
	}
	return nil
}
