package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/value"
)

func (c *Command) configureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure CATEGORY",
		Short: "Change the managed settings of one category",
		Long: `Configure exposes every managed setting of a category as a flag.
Only managed keys are reachable and every value is validated before anything
is written. All managed settings are backed up first.`,
	}
	for _, cat := range c.catalog.Categories() {
		cmd.AddCommand(c.categoryCommand(cat))
	}
	return cmd
}

func (c *Command) categoryCommand(cat catalog.Category) *cobra.Command {
	opts := c.catalog.OptionsFor(cat.Name)
	cmd := &cobra.Command{
		Use:   cat.Name,
		Short: cat.Description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConfigure(cmd, cat.Name, opts)
		},
	}

	f := cmd.Flags()
	for _, opt := range opts {
		if opt.IsToggle() {
			f.Bool(opt.EnableFlag, false, "Turn on "+opt.Usage)
			f.Bool(opt.DisableFlag, false, "Turn off "+opt.Usage)
			continue
		}
		f.String(opt.Flag, "", usageFor(opt))
	}
	addMutationFlags(cmd, true)
	return cmd
}

func usageFor(opt catalog.Option) string {
	switch opt.Rule.Kind {
	case catalog.RuleRange:
		return fmt.Sprintf("%s (%d-%d)", opt.Usage, opt.Rule.Min, opt.Rule.Max)
	case catalog.RuleEnum:
		return fmt.Sprintf("%s (one of %v)", opt.Usage, opt.Rule.Allowed)
	default:
		return opt.Usage
	}
}

// configureRequests turns the flags given on the command line into edits in
// catalog order, plus the qualified toggle flags for the conflict check.
func configureRequests(cmd *cobra.Command, category string, opts []catalog.Option) ([]changeset.Request, []string) {
	f := cmd.Flags()
	var reqs []changeset.Request
	var flags []string

	for _, opt := range opts {
		if opt.IsToggle() {
			wants := toggleWants(cmd, opt)
			enable := catalog.ToggleFlagName(category, opt.EnableFlag)
			disable := catalog.ToggleFlagName(category, opt.DisableFlag)
			switch {
			case len(wants) == 2 && wants[0] != wants[1]:
				flags = append(flags, enable, disable)
			case len(wants) > 0:
				if wants[0] {
					flags = append(flags, enable)
				} else {
					flags = append(flags, disable)
				}
				reqs = append(reqs, changeset.Request{Key: opt.Key, Value: value.Bool(wants[0]), Hint: value.HintBool})
			}
			continue
		}

		if !f.Changed(opt.Flag) {
			continue
		}
		raw, _ := f.GetString(opt.Flag)
		reqs = append(reqs, changeset.Request{Key: opt.Key, Value: coerceOption(raw, opt), Hint: opt.Type})
	}
	return reqs, flags
}

// toggleWants returns the state asked for by each toggle flag given on the
// command line. --enable=false asks for off, --disable=false for on.
func toggleWants(cmd *cobra.Command, opt catalog.Option) []bool {
	f := cmd.Flags()
	var wants []bool
	if f.Changed(opt.EnableFlag) {
		on, _ := f.GetBool(opt.EnableFlag)
		wants = append(wants, on)
	}
	if f.Changed(opt.DisableFlag) {
		off, _ := f.GetBool(opt.DisableFlag)
		wants = append(wants, !off)
	}
	return wants
}

// coerceOption converts a flag value to the option's storage type. Options
// with a rule are parsed loosely so that bad input reaches the validator
// instead of silently becoming zero.
func coerceOption(raw string, opt catalog.Option) value.Value {
	if opt.Rule.Kind == catalog.RuleNone {
		return value.Coerce(raw, opt.Type)
	}

	v := value.Coerce(raw, value.HintAuto)
	if opt.Type != value.HintInt {
		return v
	}
	switch {
	case v.IsBool():
		if v.AsBool() {
			return value.Int(1)
		}
		return value.Int(0)
	case v.Kind() == value.KindFloat && v.AsFloat() == math.Trunc(v.AsFloat()):
		return value.Int(int64(v.AsFloat()))
	}
	return v
}

func (c *Command) runConfigure(cmd *cobra.Command, category string, opts []catalog.Option) error {
	req, err := mutationRequest(cmd, c.app.Logger, audit.OperationConfigure)
	if err != nil {
		return err
	}

	reqs, flags := configureRequests(cmd, category, opts)
	req.Changes = reqs
	req.Flags = flags
	req.ManagedOnly = true
	scope := backup.ScopeAll()
	req.BackupScope = &scope

	res, err := c.app.Runner.Run(commandContext(cmd), req)
	return c.report(res, err)
}
