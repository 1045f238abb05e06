package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/transfer"
)

func (c *Command) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settings with their current values",
		Args:  cobra.NoArgs,
		RunE:  c.runList,
	}
	addFilterFlags(cmd)
	cmd.Flags().String("format", formatTable, "Output format (table, json, yaml)")
	return cmd
}

// addFilterFlags registers --search, --category and --managed-only
func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("search", "", "Only keys containing this text (case-insensitive)")
	f.String("category", "", "Only keys of this category")
	f.Bool("managed-only", false, "Only keys on the managed list")
}

func filterFromFlags(cmd *cobra.Command) transfer.Filter {
	f := cmd.Flags()
	var flt transfer.Filter
	flt.Search, _ = f.GetString("search")
	flt.Category, _ = f.GetString("category")
	flt.ManagedOnly, _ = f.GetBool("managed-only")
	return flt
}

func (c *Command) runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	keys, err := filterFromFlags(cmd).Select(ctx, c.app.Settings, c.catalog)
	if err != nil {
		return err
	}

	views := make([]settingView, 0, len(keys))
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		v, err := c.app.Settings.Get(ctx, key)
		if err != nil {
			return err
		}
		view := settingView{
			Key:        key,
			Value:      v.Interface(),
			Type:       string(v.Kind()),
			Managed:    c.catalog.IsManaged(key),
			Categories: c.catalog.CategoriesOf(key),
		}
		views = append(views, view)

		managed := ""
		if view.Managed {
			managed = "yes"
		}
		rows = append(rows, []string{key, c.app.Renderer.Value(v), managed, strings.Join(view.Categories, ",")})
	}

	if format != formatTable {
		return writeStructured(c.out, format, views)
	}
	return writeTable(c.out, []string{"KEY", "VALUE", "MANAGED", "CATEGORY"}, rows)
}
