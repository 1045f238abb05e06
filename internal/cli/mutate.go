package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/apply"
	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/pipeline"
)

// addMutationFlags registers the flags shared by every mutating command
func addMutationFlags(cmd *cobra.Command, backupByDefault bool) {
	f := cmd.Flags()
	f.Bool("dry-run", false, "Preview the changes without applying them")
	f.Bool("force", false, "Apply without asking for confirmation")
	if backupByDefault {
		f.Bool("no-backup", false, "Skip the backup taken before applying")
	} else {
		f.Bool("backup", false, "Take a backup of the affected keys before applying")
	}
	f.String("format", string(pipeline.PreviewText), "Preview format (text, json)")
}

// mutationRequest reads the shared flags into a pipeline request
func mutationRequest(cmd *cobra.Command, logger *logrus.Logger, operation string) (pipeline.Request, error) {
	f := cmd.Flags()
	dryRun, _ := f.GetBool("dry-run")
	force, _ := f.GetBool("force")
	format, _ := f.GetString("format")

	req := pipeline.Request{
		Operation: operation,
		DryRun:    dryRun,
		Force:     force,
	}

	switch pipeline.PreviewFormat(format) {
	case pipeline.PreviewText, pipeline.PreviewJSON:
		req.PreviewFormat = pipeline.PreviewFormat(format)
	default:
		return req, fmt.Errorf("unsupported preview format %q (expected text or json)", format)
	}

	if f.Lookup("no-backup") != nil {
		skip, _ := f.GetBool("no-backup")
		req.Backup = !skip
		if skip && !dryRun && operation != audit.OperationRestore {
			logger.WithField("operation", operation).Warn("Backup skipped with --no-backup; this change cannot be restored")
		}
	} else {
		req.Backup, _ = f.GetBool("backup")
	}
	return req, nil
}

// report prints the outcome of a mutating run and passes err through
func (c *Command) report(res *pipeline.Result, err error) error {
	if res == nil || res.Report == nil || res.DryRun {
		return err
	}

	r := res.Report
	if r.OK() {
		fmt.Fprintf(c.out, "Applied %d change(s); all verified.\n", len(r.Outcomes))
		return err
	}

	fmt.Fprintf(c.out, "Applied %d change(s); %d verified, %d mismatched, %d failed:\n",
		len(r.Outcomes), r.Count(apply.StatusVerified), r.Count(apply.StatusMismatch), r.Count(apply.StatusFailed))
	for _, o := range r.Problems() {
		switch o.Status {
		case apply.StatusMismatch:
			fmt.Fprintf(c.out, "  %s: expected %s, read back %s\n",
				o.Key, c.app.Renderer.Value(o.Expected), c.app.Renderer.Value(o.Actual))
		default:
			fmt.Fprintf(c.out, "  %s: %v\n", o.Key, o.Err)
		}
	}
	if res.Backup != nil {
		fmt.Fprintf(c.out, "Restore the previous values with: guardctl restore %s\n", res.Backup.ID)
	}
	return err
}
