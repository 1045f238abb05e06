package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/transfer"
)

// Restore replays a backup. A safety backup of the keys about to be
// overwritten is always taken first, whatever req.Backup says, so restores
// chain rather than destroy history.
func (r *Runner) Restore(ctx context.Context, id string, req Request) (*Result, error) {
	b, err := r.backups.Load(ctx, id)
	if err != nil {
		return &Result{}, err
	}

	scope := backup.ScopeKeys(b.Keys())
	req.Operation = audit.OperationRestore
	req.Changes = b.Requests()
	req.SkipValidation = true
	req.Backup = true
	req.BackupScope = &scope

	r.logger.WithField("backup_id", b.ID).Info("Restoring backup")
	return r.Run(ctx, req)
}

// Import replays an export document through the generic setter. Values are
// not validated; the importer logs managed keys that break their rule.
func (r *Runner) Import(ctx context.Context, doc *transfer.Document, importer *transfer.Importer, req Request) (*Result, error) {
	req.Operation = audit.OperationImport
	req.Changes = importer.Requests(doc)
	req.SkipValidation = true
	req.GenericOnly = true
	if req.PreviewLimit == 0 {
		req.PreviewLimit = transfer.PreviewLimit
	}
	if req.Backup && req.BackupScope == nil {
		scope := backup.ScopeKeys(doc.Keys())
		req.BackupScope = &scope
	}

	r.logger.WithFields(logrus.Fields{
		"origin": doc.Origin,
		"count":  len(doc.Settings),
	}).Info("Importing settings")
	return r.Run(ctx, req)
}
