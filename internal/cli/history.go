package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/audit"
)

func (c *Command) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded changes from the audit trail",
		Args:  cobra.NoArgs,
		RunE:  c.runHistory,
	}
	f := cmd.Flags()
	f.Int("limit", 50, "Maximum number of events, newest first")
	f.String("key", "", "Only events for this key")
	f.String("run", "", "Only events of this run ID")
	f.String("operation", "", "Only events of this operation (set, configure, import, restore, backup)")
	f.String("format", formatTable, "Output format (table, json, yaml)")
	return cmd
}

func (c *Command) runHistory(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	format, _ := f.GetString("format")
	if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
		return err
	}
	if c.app.Audit == nil {
		return errors.New("the audit trail is disabled (audit.enable=false)")
	}

	var filters audit.Filters
	filters.Limit, _ = f.GetInt("limit")
	filters.Key, _ = f.GetString("key")
	filters.RunID, _ = f.GetString("run")
	filters.Operation, _ = f.GetString("operation")

	records, err := c.app.Audit.History(commandContext(cmd), &filters)
	if err != nil {
		return err
	}
	if format != formatTable {
		return writeStructured(c.out, format, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No recorded changes.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
			shortRunID(r.RunID),
			r.Operation,
			r.Key,
			r.OldValue,
			r.NewValue,
			r.Status,
			r.Detail,
		})
	}
	return writeTable(c.out, []string{"TIME", "RUN", "OPERATION", "KEY", "OLD", "NEW", "STATUS", "DETAIL"}, rows)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
