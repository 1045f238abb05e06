// Package cli builds the guardctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/pipeline"
)

// annotationNoApp marks commands that run without opening the settings store
const annotationNoApp = "guardctl/no-app"

// Command is the guardctl command tree together with the state opened for
// the running subcommand.
type Command struct {
	root    *cobra.Command
	catalog *catalog.Catalog
	app     *App

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// confirmer overrides the terminal prompt
	confirmer pipeline.Confirmer
}

// New creates the command tree
func New(version string) *Command {
	c := &Command{
		catalog: catalog.Default(),
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}

	root := &cobra.Command{
		Use:   "guardctl",
		Short: "Inspect and safely change a guarded application's settings",
		Long: `guardctl reads and changes the settings of a security application.
Every change is validated, previewed, confirmed, backed up and verified by
reading the value back from the store.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "Configuration file path")
	pf.StringP("data-dir", "d", "./guardctl-data", "Directory holding backups and the audit trail")
	pf.StringP("store", "s", "", "Path to the application's settings database")
	pf.String("table", "app_settings", "Settings table name")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Append JSON log lines to this file")
	pf.String("origin", "", "Origin recorded in exports and audit records (default host name)")
	pf.String("snapshot-engine", "pebble", "Backup engine (pebble, badger)")
	pf.String("metrics-textfile", "", "Write Prometheus metrics to this textfile after each run")
	pf.String("color", "auto", "Colour previews (auto, always, never)")

	root.AddCommand(
		c.getCommand(),
		c.setCommand(),
		c.listCommand(),
		c.configureCommand(),
		c.backupCommand(),
		c.restoreCommand(),
		c.exportCommand(),
		c.importCommand(),
		c.historyCommand(),
		c.categoriesCommand(),
	)

	c.root = root
	return c
}

// SetIO redirects the command's streams
func (c *Command) SetIO(in io.Reader, out, errOut io.Writer) {
	c.in, c.out, c.errOut = in, out, errOut
	c.root.SetIn(in)
	c.root.SetOut(out)
	c.root.SetErr(errOut)
}

// SetConfirmer replaces the terminal prompt
func (c *Command) SetConfirmer(conf pipeline.Confirmer) {
	c.confirmer = conf
}

func (c *Command) open(cmd *cobra.Command, args []string) error {
	if skipApp(cmd) {
		return nil
	}
	app, err := c.openApp(cmd)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

func skipApp(cmd *cobra.Command) bool {
	for p := cmd; p != nil; p = p.Parent() {
		if p.Annotations[annotationNoApp] == "true" || p.Name() == "completion" || p.Name() == "help" {
			return true
		}
	}
	return false
}

// Execute runs the command line and returns the process exit code
func (c *Command) Execute(args []string) int {
	c.root.SetArgs(args)
	cmd, err := c.root.ExecuteC()

	if c.app != nil {
		if ferr := c.app.Metrics.Finish(metricsOperation(cmd), resultLabel(err), time.Now()); ferr != nil {
			c.app.Logger.WithError(ferr).Warn("Failed to write metrics textfile")
		}
		if cerr := c.app.Close(); cerr != nil {
			c.app.Logger.WithError(cerr).Warn("Failed to close resources")
		}
		c.app = nil
	}

	if err != nil {
		prefix := "Error"
		if errors.Is(err, pipeline.ErrPartialSuccess) || errors.Is(err, pipeline.ErrAborted) {
			prefix = "Warning"
		}
		fmt.Fprintf(c.errOut, "%s: %v\n", prefix, err)
	}
	return ExitCode(err)
}

func metricsOperation(cmd *cobra.Command) string {
	if cmd == nil {
		return "unknown"
	}
	if p := cmd.Parent(); p != nil && p.Parent() != nil {
		return p.Name() + "_" + cmd.Name()
	}
	return cmd.Name()
}

// commandContext returns the command context or a background one
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs guardctl with os.Args
func Execute(version string) int {
	return New(version).Execute(os.Args[1:])
}
