package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// Formatter renders the result of a command
type Formatter interface {
	Format(io.Writer, interface{}) error
}

// FormatterFunc turns a function into a Formatter
type FormatterFunc func(io.Writer, interface{}) error

// Format the data to the writer
func (f FormatterFunc) Format(w io.Writer, data interface{}) error {
	return f(w, data)
}

// yamlFormatter is available to every command supporting --format
var yamlFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
	b, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
})

var formatters = make(map[*cobra.Command]map[string]Formatter)

func addFormatFlag(cmd *cobra.Command, defaultFormat string, available map[string]Formatter) {
	if _, ok := available["yaml"]; !ok {
		available["yaml"] = yamlFormatter
	}
	formatters[cmd] = available
	names := make([]string, 0, len(available))
	for k := range available {
		names = append(names, k)
	}
	cmd.Flags().String("format", defaultFormat, fmt.Sprintf("Output format, one of %v", names))
}

// print the result of a command in the format picked by the user
func print(cmd *cobra.Command, data interface{}) error {
	name, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	f, ok := formatters[cmd][name]
	if !ok {
		return fmt.Errorf("unsupported format %q", name)
	}
	return f.Format(cmd.OutOrStdout(), data)
}

// newTable builds a table with a highlighted header row
func newTable(headers ...interface{}) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	row := make([]interface{}, 0, len(headers))
	for _, h := range headers {
		row = append(row, color.New(color.Bold).Sprint(h))
	}
	table.AddRow(row...)
	return table
}

func writeTable(w io.Writer, table *uitable.Table) error {
	_, err := fmt.Fprintln(w, table.String())
	return err
}
