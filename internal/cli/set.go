package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/value"
)

func (c *Command) setCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE [KEY VALUE]...",
		Short: "Change one or more settings through the generic setter",
		Long: `Set writes arbitrary keys, including keys outside the managed list.
Keys with a validation rule are still checked before anything is written.`,
		Example: `  guardctl set alert.email ops@example.com
  guardctl set loginsec.max_failures 5 --type int --dry-run`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected KEY VALUE pairs, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: c.runSet,
	}
	cmd.Flags().String("type", string(value.HintAuto), "Value type (auto, bool, int, float, string)")
	addMutationFlags(cmd, true)
	return cmd
}

func (c *Command) runSet(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	hint, err := value.ParseHint(typ)
	if err != nil {
		return err
	}

	req, err := mutationRequest(cmd, c.app.Logger, audit.OperationSet)
	if err != nil {
		return err
	}

	for i := 0; i < len(args); i += 2 {
		req.Changes = append(req.Changes, changeset.Request{
			Key:   args[i],
			Value: value.Coerce(args[i+1], hint),
			Hint:  hint,
		})
	}
	if len(req.Changes) == 1 {
		scope := backup.ScopeKey(req.Changes[0].Key)
		req.BackupScope = &scope
	}

	res, err := c.app.Runner.Run(commandContext(cmd), req)
	return c.report(res, err)
}
