package store

import (
	"context"
	"fmt"

	"idm-reconciler/core/model"
)

func (s *Store) SaveRemediation(ctx context.Context, r *model.Remediation) error {
	if err := s.conn(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("failed to save remediation %s: %w", r.Key, err)
	}
	return nil
}

func (s *Store) FindRemediation(ctx context.Context, key string) (*model.Remediation, error) {
	var r model.Remediation
	found, err := first(s.conn(ctx).Where("id = ?", key), &r)
	if err != nil {
		return nil, fmt.Errorf("failed to load remediation %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

// ListRemediations pages remediations newest first; page starts at 1.
func (s *Store) ListRemediations(ctx context.Context, page, size int) ([]model.Remediation, int64, error) {
	var total int64
	if err := s.conn(ctx).Model(&model.Remediation{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count remediations: %w", err)
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	var list []model.Remediation
	err := s.conn(ctx).Order("instant DESC").Order("id").Offset((page - 1) * size).Limit(size).Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list remediations: %w", err)
	}
	return list, total, nil
}

func (s *Store) DeleteRemediation(ctx context.Context, key string) error {
	if err := s.conn(ctx).Where("id = ?", key).Delete(&model.Remediation{}).Error; err != nil {
		return fmt.Errorf("failed to delete remediation %s: %w", key, err)
	}
	return nil
}
