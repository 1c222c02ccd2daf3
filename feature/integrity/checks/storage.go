package checks

import (
	"context"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/storage"

	"go.uber.org/zap"
)

// Storage statuses.
const (
	StorageOK       = "ok"
	StorageMissing  = "missing"
	StorageDisabled = "disabled"
)

// StorageReport describes the stream bucket.
type StorageReport struct {
	Bucket  string `json:"bucket,omitempty"`
	Status  string `json:"status"`
	Objects int    `json:"objects"`
}

// CheckStorage reports whether the stream bucket exists and how many objects it holds.
// A nil objects means storage is not configured.
func CheckStorage(ctx context.Context, objects *storage.Objects) (*StorageReport, error) {
	if objects == nil {
		return &StorageReport{Status: StorageDisabled}, nil
	}

	report := &StorageReport{Bucket: objects.Bucket(), Status: StorageOK}
	exists, err := objects.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		report.Status = StorageMissing
		return report, nil
	}

	list, err := objects.List(ctx, "")
	if err != nil {
		return nil, err
	}
	report.Objects = len(list)
	return report, nil
}

// FixStorage creates the stream bucket.
func FixStorage(ctx context.Context, objects *storage.Objects, logger *zap.Logger) error {
	if objects == nil {
		return clienterr.New(clienterr.Configuration, "object storage is not configured")
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		logger.Error("Failed to create bucket", zap.String("bucket", objects.Bucket()), zap.Error(err))
		return err
	}
	logger.Info("Created missing bucket", zap.String("bucket", objects.Bucket()))
	return nil
}
