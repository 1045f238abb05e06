package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/value"
)

type settingView struct {
	Key        string   `json:"key" yaml:"key"`
	Value      any      `json:"value" yaml:"value"`
	Type       string   `json:"type" yaml:"type"`
	Managed    bool     `json:"managed" yaml:"managed"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

func (c *Command) getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the current value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runGet,
	}
	cmd.Flags().String("format", formatText, "Output format (text, json, yaml)")
	return cmd
}

func (c *Command) runGet(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, formatText, formatJSON, formatYAML); err != nil {
		return err
	}

	key := args[0]
	v, err := c.app.Settings.Get(commandContext(cmd), key)
	if err != nil {
		return err
	}

	if format != formatText {
		return writeStructured(c.out, format, settingView{
			Key:        key,
			Value:      v.Interface(),
			Type:       string(v.Kind()),
			Managed:    c.catalog.IsManaged(key),
			Categories: c.catalog.CategoriesOf(key),
		})
	}

	if missing(v) {
		fmt.Fprintf(c.out, "%s: not found or empty\n", key)
		return nil
	}
	fmt.Fprintf(c.out, "%s = %s\n", key, c.app.Renderer.Value(v))
	return nil
}

func missing(v value.Value) bool {
	return v.IsNull() || (v.Kind() == value.KindString && v.Text() == "")
}
