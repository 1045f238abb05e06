package cli

import (
	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/audit"
)

func (c *Command) restoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore ID",
		Short: "Write the values of a backup back to the store",
		Long: `Restore replays a backup through the same preview, confirmation and
verification steps as any other change. The values about to be overwritten
are always backed up first, even with --no-backup, so a restore can itself
be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runRestore,
	}
	addMutationFlags(cmd, true)
	return cmd
}

func (c *Command) runRestore(cmd *cobra.Command, args []string) error {
	req, err := mutationRequest(cmd, c.app.Logger, audit.OperationRestore)
	if err != nil {
		return err
	}
	res, err := c.app.Runner.Restore(commandContext(cmd), args[0], req)
	return c.report(res, err)
}
