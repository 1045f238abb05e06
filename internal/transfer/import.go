package transfer

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/validation"
)

// PreviewLimit is how many entries an import preview shows
const PreviewLimit = 10

// Importer reads import documents into change requests. Documents are
// trusted: values are not validated, but managed keys whose value breaks
// their rule are logged.
type Importer struct {
	catalog   *catalog.Catalog
	validator *validation.Validator
	logger    *logrus.Logger
}

// NewImporter creates an importer
func NewImporter(cat *catalog.Catalog, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Importer{
		catalog:   cat,
		validator: validation.NewValidator(cat),
		logger:    logger,
	}
}

// Read parses a document from r
func (i *Importer) Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read import document: %w", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if doc.Count != 0 && doc.Count != len(doc.Settings) {
		i.logger.WithFields(logrus.Fields{
			"declared": doc.Count,
			"actual":   len(doc.Settings),
		}).Warn("Import document count does not match its settings")
	}
	return doc, nil
}

// Requests converts the document and reports rule violations as warnings
func (i *Importer) Requests(doc *Document) []changeset.Request {
	reqs := doc.Requests()
	for _, req := range reqs {
		if !i.catalog.IsManaged(req.Key) {
			continue
		}
		if err := i.validator.Check(req.Key, req.Value); err != nil {
			i.logger.WithError(err).WithField("key", req.Key).Warn("Imported value fails its rule; importing anyway")
		}
	}
	return reqs
}

// ManagedSubset returns a copy of doc holding only managed keys, and the
// number of keys dropped.
func (i *Importer) ManagedSubset(doc *Document) (*Document, int) {
	out := *doc
	out.ManagedOnly = true
	out.Settings = make(map[string]any, len(doc.Settings))
	for k, v := range doc.Settings {
		if i.catalog.IsManaged(k) {
			out.Settings[k] = v
		}
	}
	out.Count = len(out.Settings)

	dropped := len(doc.Settings) - len(out.Settings)
	if dropped > 0 {
		i.logger.WithField("dropped", dropped).Info("Skipping unmanaged keys from import document")
	}
	return &out, dropped
}
