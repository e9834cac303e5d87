package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glyphdeck/internal/records"
)

var sanitiseOpts struct {
	input    string
	idColumn string
	columns  []string
	sheet    string
}

var sanitiseCmd = &cobra.Command{
	Use:   "sanitise",
	Short: "Replace private information in a file without annotating it",
	Long: `Replaces dates, email addresses, URLs, paths and numbers in the selected
columns with placeholders such as <DATE> and <EMAIL>, then writes the result.
Groups and placeholders come from the sanitiser section of the config.`,
	Args: cobra.NoArgs,
	RunE: runSanitise,
}

func registerSanitiseFlags() {
	f := sanitiseCmd.Flags()
	f.StringVarP(&sanitiseOpts.input, "input", "i", "", "CSV or XLSX file to sanitise")
	f.StringVar(&sanitiseOpts.idColumn, "id", "id", "Column holding unique row ids")
	f.StringSliceVar(&sanitiseOpts.columns, "columns", nil, "Columns to sanitise")
	f.StringVar(&sanitiseOpts.sheet, "sheet", "", "XLSX sheet (default: first sheet)")
	_ = sanitiseCmd.MarkFlagRequired("input")
	_ = sanitiseCmd.MarkFlagRequired("columns")
}

func runSanitise(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	store, err := loadStore(sanitiseOpts.input, sanitiseOpts.idColumn, sanitiseOpts.columns, sanitiseOpts.sheet)
	if err != nil {
		return err
	}
	counts, err := scrub(store)
	if err != nil {
		return err
	}
	paths, err := writeOutput(ctx, store, records.DefaultOutputOptions())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d replacements\n", titleStyle.Render("Sanitised"), counts.Total)
	for group, n := range counts.ByGroup {
		fmt.Fprintf(out, "  %-8s %d\n", group, n)
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Wrote %s\n", p)
	}
	return nil
}
