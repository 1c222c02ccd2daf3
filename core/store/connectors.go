package store

import (
	"context"
	"fmt"

	"idm-reconciler/core/model"
)

// SaveConnInstance creates or replaces a connector.
func (s *Store) SaveConnInstance(ctx context.Context, ci *model.ConnInstance) error {
	if err := s.conn(ctx).Save(ci).Error; err != nil {
		return fmt.Errorf("failed to save connector %s: %w", ci.Key, err)
	}
	return nil
}

// FindConnInstance loads a connector by key.
func (s *Store) FindConnInstance(ctx context.Context, key string) (*model.ConnInstance, error) {
	var ci model.ConnInstance
	found, err := first(s.conn(ctx).Where("id = ?", key), &ci)
	if err != nil {
		return nil, fmt.Errorf("failed to load connector %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &ci, nil
}

// ListConnInstances lists connectors whose admin realm is within realms.
func (s *Store) ListConnInstances(ctx context.Context, realms []string) ([]model.ConnInstance, error) {
	var list []model.ConnInstance
	err := s.conn(ctx).Scopes(realmScope("admin_realm", realms)).Order("display_name").Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	return list, nil
}

// DeleteConnInstance removes a connector.
func (s *Store) DeleteConnInstance(ctx context.Context, key string) error {
	if err := s.conn(ctx).Where("id = ?", key).Delete(&model.ConnInstance{}).Error; err != nil {
		return fmt.Errorf("failed to delete connector %s: %w", key, err)
	}
	return nil
}
