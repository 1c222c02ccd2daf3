package store

import (
	"context"
	"fmt"

	"idm-reconciler/core/model"

	"gorm.io/gorm"
)

// SaveResource creates or replaces a resource and its provisions.
func (s *Store) SaveResource(ctx context.Context, res *model.ExternalResource) error {
	return s.InTx(ctx, false, func(ctx context.Context) error {
		db := s.conn(ctx)
		if err := db.Omit("Provisions").Save(res).Error; err != nil {
			return fmt.Errorf("failed to save resource %s: %w", res.Key, err)
		}
		if err := db.Where("resource_id = ?", res.Key).Delete(&model.Provision{}).Error; err != nil {
			return fmt.Errorf("failed to replace provisions of %s: %w", res.Key, err)
		}
		for i := range res.Provisions {
			p := &res.Provisions[i]
			p.ID = 0
			p.ResourceKey = res.Key
			if err := db.Create(p).Error; err != nil {
				return fmt.Errorf("failed to save provision %s/%s: %w", res.Key, p.AnyType, err)
			}
		}
		return nil
	})
}

// FindResource loads a resource with its provisions.
func (s *Store) FindResource(ctx context.Context, key string) (*model.ExternalResource, error) {
	var res model.ExternalResource
	q := s.conn(ctx).Preload("Provisions", func(db *gorm.DB) *gorm.DB {
		return db.Order("any_type")
	}).Where("id = ?", key)
	found, err := first(q, &res)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &res, nil
}

// ListResources lists resources with their provisions, optionally only those
// bound to the given connectors.
func (s *Store) ListResources(ctx context.Context, connectorKeys []string) ([]model.ExternalResource, error) {
	var list []model.ExternalResource
	q := s.conn(ctx).Preload("Provisions").Order("id")
	if connectorKeys != nil {
		q = q.Where("connector_id IN ?", connectorKeys)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return list, nil
}

// ResourceKeysByConnector returns the keys of resources bound to a connector.
func (s *Store) ResourceKeysByConnector(ctx context.Context, connectorKey string) ([]string, error) {
	var keys []string
	err := s.conn(ctx).Model(&model.ExternalResource{}).
		Where("connector_id = ?", connectorKey).Order("id").Pluck("id", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resources of connector %s: %w", connectorKey, err)
	}
	return keys, nil
}

// DeleteResource removes a resource with its provisions and virtual schemas.
func (s *Store) DeleteResource(ctx context.Context, key string) error {
	return s.InTx(ctx, false, func(ctx context.Context) error {
		db := s.conn(ctx)
		for _, m := range []any{&model.Provision{}, &model.VirSchema{}, &model.LinkedAccount{}} {
			if err := db.Where("resource_id = ?", key).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete dependants of resource %s: %w", key, err)
			}
		}
		if err := db.Where("id = ?", key).Delete(&model.ExternalResource{}).Error; err != nil {
			return fmt.Errorf("failed to delete resource %s: %w", key, err)
		}
		return nil
	})
}

// UpdateSyncToken stores the sync token of one provision; an empty token clears it.
func (s *Store) UpdateSyncToken(ctx context.Context, resourceKey, anyType, token string) error {
	err := s.conn(ctx).Model(&model.Provision{}).
		Where("resource_id = ? AND any_type = ?", resourceKey, anyType).
		Update("sync_token", token).Error
	if err != nil {
		return fmt.Errorf("failed to update sync token of %s/%s: %w", resourceKey, anyType, err)
	}
	return nil
}
