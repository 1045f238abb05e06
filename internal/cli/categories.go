package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type categoryView struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Prefixes    []string `json:"prefixes" yaml:"prefixes"`
	Substrings  []string `json:"substrings,omitempty" yaml:"substrings,omitempty"`
	ManagedKeys []string `json:"managed_keys" yaml:"managed_keys"`
}

func (c *Command) categoriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "categories",
		Short:       "List setting categories and their managed keys",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE:        c.runCategories,
	}
	cmd.Flags().String("format", formatTable, "Output format (table, json, yaml)")
	return cmd
}

func (c *Command) runCategories(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
		return err
	}

	var views []categoryView
	for _, cat := range c.catalog.Categories() {
		view := categoryView{
			Name:        cat.Name,
			Description: cat.Description,
			Prefixes:    cat.Prefixes,
			Substrings:  cat.Substrings,
		}
		for _, opt := range c.catalog.OptionsFor(cat.Name) {
			view.ManagedKeys = append(view.ManagedKeys, opt.Key)
		}
		views = append(views, view)
	}

	if format != formatTable {
		return writeStructured(c.out, format, views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		patterns := make([]string, 0, len(v.Prefixes)+len(v.Substrings))
		for _, p := range v.Prefixes {
			patterns = append(patterns, p+"*")
		}
		for _, s := range v.Substrings {
			patterns = append(patterns, "*"+s+"*")
		}
		rows = append(rows, []string{v.Name, strings.Join(patterns, " "), strconv.Itoa(len(v.ManagedKeys)), v.Description})
	}
	return writeTable(c.out, []string{"CATEGORY", "PATTERNS", "MANAGED", "DESCRIPTION"}, rows)
}
