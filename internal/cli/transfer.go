package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/pipeline"
	"github.com/maxiofs/guardctl/internal/transfer"
)

const stdioPath = "-"

func (c *Command) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write settings to a JSON or YAML document",
		Long: `Export writes the selected settings, with their current values, to FILE
("-" for standard output). The format follows the file extension unless
--format is given.`,
		Example: `  guardctl export brute-force.json --category brute-force
  guardctl export - --managed-only --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: c.runExport,
	}
	addFilterFlags(cmd)
	cmd.Flags().String("format", "", "Document format (json, yaml)")
	return cmd
}

func (c *Command) runExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, err := documentFormat(cmd, path)
	if err != nil {
		return err
	}

	doc, err := c.app.Exporter.Collect(commandContext(cmd), filterFromFlags(cmd))
	if err != nil {
		return err
	}

	if path == stdioPath {
		_, err := c.app.Exporter.Write(c.out, doc, format)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", transfer.ErrWriteFailed, err)
	}
	if _, err := c.app.Exporter.Write(f, doc, format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", transfer.ErrWriteFailed, err)
	}

	fmt.Fprintf(c.out, "Exported %d setting(s) to %s\n", doc.Count, path)
	return nil
}

func documentFormat(cmd *cobra.Command, path string) (transfer.Format, error) {
	s, _ := cmd.Flags().GetString("format")
	if s == "" {
		return transfer.FormatFromPath(path), nil
	}
	return transfer.ParseFormat(s)
}

func (c *Command) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Apply the settings of an exported document",
		Long: `Import replays a document produced by export ("-" reads standard input).
JSON and YAML are detected from the content. Values are written as found in
the document; managed keys whose value breaks its rule are reported as
warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runImport,
	}
	addMutationFlags(cmd, false)
	cmd.Flags().Bool("managed-only", false, "Skip keys that are not on the managed list")
	return cmd
}

func (c *Command) runImport(cmd *cobra.Command, args []string) error {
	req, err := mutationRequest(cmd, c.app.Logger, "")
	if err != nil {
		return err
	}

	doc, err := c.readDocument(args[0])
	if err != nil {
		return err
	}
	if managedOnly, _ := cmd.Flags().GetBool("managed-only"); managedOnly {
		var dropped int
		doc, dropped = c.app.Importer.ManagedSubset(doc)
		if dropped > 0 && req.PreviewFormat != pipeline.PreviewJSON {
			fmt.Fprintf(c.out, "Skipping %d unmanaged key(s).\n", dropped)
		}
	}
	if len(doc.Settings) == 0 {
		return changeset.ErrEmptyChangeSet
	}

	res, err := c.app.Runner.Import(commandContext(cmd), doc, c.app.Importer, req)
	return c.report(res, err)
}

func (c *Command) readDocument(path string) (*transfer.Document, error) {
	var r io.Reader = c.in
	if path != stdioPath {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("import file %s does not exist", path)
			}
			return nil, fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return c.app.Importer.Read(r)
}
