package store

import (
	"context"
	"fmt"

	"idm-reconciler/core/model"
)

func (s *Store) SaveRealm(ctx context.Context, r *model.Realm) error {
	if err := s.conn(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("failed to save realm %s: %w", r.FullPath, err)
	}
	return nil
}

func (s *Store) FindRealm(ctx context.Context, fullPath string) (*model.Realm, error) {
	var r model.Realm
	found, err := first(s.conn(ctx).Where("full_path = ?", fullPath), &r)
	if err != nil {
		return nil, fmt.Errorf("failed to load realm %s: %w", fullPath, err)
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) SaveAnyType(ctx context.Context, t *model.AnyType) error {
	if err := s.conn(ctx).Save(t).Error; err != nil {
		return fmt.Errorf("failed to save any type %s: %w", t.Key, err)
	}
	return nil
}

func (s *Store) FindAnyType(ctx context.Context, key string) (*model.AnyType, error) {
	var t model.AnyType
	found, err := first(s.conn(ctx).Where("id = ?", key), &t)
	if err != nil {
		return nil, fmt.Errorf("failed to load any type %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SaveDerSchema(ctx context.Context, d *model.DerSchema) error {
	if err := s.conn(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("failed to save derived schema %s: %w", d.Key, err)
	}
	return nil
}

func (s *Store) FindDerSchema(ctx context.Context, key string) (*model.DerSchema, error) {
	var d model.DerSchema
	found, err := first(s.conn(ctx).Where("id = ?", key), &d)
	if err != nil {
		return nil, fmt.Errorf("failed to load derived schema %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) SaveVirSchema(ctx context.Context, v *model.VirSchema) error {
	if err := s.conn(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("failed to save virtual schema %s: %w", v.Key, err)
	}
	return nil
}

func (s *Store) FindVirSchema(ctx context.Context, key string) (*model.VirSchema, error) {
	var v model.VirSchema
	found, err := first(s.conn(ctx).Where("id = ?", key), &v)
	if err != nil {
		return nil, fmt.Errorf("failed to load virtual schema %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &v, nil
}

// VirSchemasFor lists the virtual schemas read from resourceKey for anyType.
func (s *Store) VirSchemasFor(ctx context.Context, resourceKey, anyType string) ([]model.VirSchema, error) {
	var list []model.VirSchema
	err := s.conn(ctx).Where("resource_id = ? AND any_type = ?", resourceKey, anyType).Order("id").Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual schemas of %s: %w", resourceKey, err)
	}
	return list, nil
}
