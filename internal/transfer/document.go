package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/value"
)

var (
	// ErrNothingToExport is returned when the filter matches no keys
	ErrNothingToExport = errors.New("no settings match the export filter")

	// ErrSerializationFailed is returned when the document cannot be encoded
	ErrSerializationFailed = errors.New("failed to serialize export document")

	// ErrWriteFailed is returned when the destination rejects the document
	ErrWriteFailed = errors.New("failed to write export document")

	// ErrInvalidDocument is returned when an import document cannot be used
	ErrInvalidDocument = errors.New("invalid import document")
)

// Format is a document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported document format %q (expected json or yaml)", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the exported form of a set of settings
type Document struct {
	ExportedAt  string         `json:"exported_at" yaml:"exported_at"`
	Origin      string         `json:"origin" yaml:"origin"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Search      string         `json:"search,omitempty" yaml:"search,omitempty"`
	ManagedOnly bool           `json:"managed_only" yaml:"managed_only"`
	Count       int            `json:"count" yaml:"count"`
	Settings    map[string]any `json:"settings" yaml:"settings"`
}

// Keys returns the document's keys sorted
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.Settings))
	for k := range d.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Requests turns the settings mapping into change requests in key order
func (d *Document) Requests() []changeset.Request {
	keys := d.Keys()
	reqs := make([]changeset.Request, 0, len(keys))
	for _, k := range keys {
		reqs = append(reqs, changeset.Request{Key: k, Value: value.FromAny(d.Settings[k])})
	}
	return reqs
}

// Encode serializes the document
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrSerializationFailed, format)
	}
}

// Decode parses a JSON or YAML document. The settings field must be
// present and must be a mapping.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidDocument)
	}

	var doc Document
	if trimmed[0] == '{' {
		if !gjson.ValidBytes(trimmed) {
			return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
		}
		if s := gjson.GetBytes(trimmed, "settings"); !s.IsObject() {
			return nil, fmt.Errorf("%w: settings field is missing or not a mapping", ErrInvalidDocument)
		}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else {
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		settings := mappingField(&node, "settings")
		if settings == nil {
			return nil, fmt.Errorf("%w: settings field is missing or not a mapping", ErrInvalidDocument)
		}
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		keepFloats(settings, doc.Settings)
	}

	if doc.Settings == nil {
		doc.Settings = map[string]any{}
	}
	return &doc, nil
}

// mappingField returns the named top-level field when it is a mapping
func mappingField(doc *yaml.Node, field string) *yaml.Node {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == field {
			if root.Content[i+1].Kind == yaml.MappingNode {
				return root.Content[i+1]
			}
			return nil
		}
	}
	return nil
}

// keepFloats restores the float kind of scalars such as 3.0, which the
// generic decoder hands back as an integral float64.
func keepFloats(node *yaml.Node, settings map[string]any) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.ShortTag() != "!!float" {
			continue
		}
		if v := value.Coerce(val.Value, value.HintAuto); v.Kind() == value.KindFloat {
			settings[key.Value] = v
		}
	}
}
