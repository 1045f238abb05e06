package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/value"
)

// Source is the read side of the settings store used by exports
type Source interface {
	KeyLister
	Get(ctx context.Context, key string) (value.Value, error)
}

// Exporter builds and writes export documents
type Exporter struct {
	store   Source
	catalog *catalog.Catalog
	origin  string
	logger  *logrus.Logger
	now     func() time.Time
}

// NewExporter creates an exporter stamping documents with origin
func NewExporter(store Source, cat *catalog.Catalog, origin string, logger *logrus.Logger) *Exporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Exporter{
		store:   store,
		catalog: cat,
		origin:  origin,
		logger:  logger,
		now:     time.Now,
	}
}

// Collect reads every key matching the filter into a document. String
// values have ill-formed UTF-8 replaced so that binary rows still encode.
func (e *Exporter) Collect(ctx context.Context, f Filter) (*Document, error) {
	keys, err := f.Select(ctx, e.store, e.catalog)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNothingToExport, f.Describe())
	}

	settings := make(map[string]any, len(keys))
	for _, key := range keys {
		v, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for export: %w", key, err)
		}
		settings[key] = exportable(v)
	}

	return &Document{
		ExportedAt:  e.now().UTC().Format(time.RFC3339),
		Origin:      e.origin,
		Category:    f.Category,
		Search:      f.Search,
		ManagedOnly: f.ManagedOnly,
		Count:       len(settings),
		Settings:    settings,
	}, nil
}

func exportable(v value.Value) any {
	if v.Kind() == value.KindString {
		s, _, err := transform.String(runes.ReplaceIllFormed(), v.Text())
		if err != nil {
			return v.Text()
		}
		return s
	}
	return v.Portable()
}

// Write encodes doc and writes it to w. A write of zero bytes counts as a
// failure.
func (e *Exporter) Write(w io.Writer, doc *Document, format Format) (int, error) {
	data, err := Encode(doc, format)
	if err != nil {
		return 0, err
	}

	n, err := w.Write(data)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: zero bytes written", ErrWriteFailed)
	}

	e.logger.WithFields(logrus.Fields{
		"count":  doc.Count,
		"format": format,
		"bytes":  n,
	}).Info("Settings exported")

	return n, nil
}

// Export collects and writes in one step
func (e *Exporter) Export(ctx context.Context, w io.Writer, f Filter, format Format) (*Document, error) {
	doc, err := e.Collect(ctx, f)
	if err != nil {
		return nil, err
	}
	if _, err := e.Write(w, doc, format); err != nil {
		return nil, err
	}
	return doc, nil
}
