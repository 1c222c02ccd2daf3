package store

import (
	"context"
	"fmt"
	"strings"

	"idm-reconciler/core/model"
)

// SaveAny creates or replaces an entity and refreshes its plain attribute index.
func (s *Store) SaveAny(ctx context.Context, a *model.Any) error {
	return s.InTx(ctx, false, func(ctx context.Context) error {
		db := s.conn(ctx)
		if err := db.Save(a).Error; err != nil {
			return fmt.Errorf("failed to save %s %s: %w", a.Type, a.Key, err)
		}
		if err := db.Where("any_id = ?", a.Key).Delete(&model.PlainAttrValue{}).Error; err != nil {
			return fmt.Errorf("failed to reindex %s: %w", a.Key, err)
		}
		var rows []model.PlainAttrValue
		for schema, values := range a.PlainAttrs {
			for _, v := range values {
				rows = append(rows, model.PlainAttrValue{
					AnyKey:     a.Key,
					AnyType:    a.Type,
					Schema:     schema,
					Value:      v,
					ValueLower: strings.ToLower(v),
				})
			}
		}
		if len(rows) > 0 {
			if err := db.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to index %s: %w", a.Key, err)
			}
		}
		return nil
	})
}

// FindAny loads an entity by key.
func (s *Store) FindAny(ctx context.Context, key string) (*model.Any, error) {
	var a model.Any
	found, err := first(s.conn(ctx).Where("id = ?", key), &a)
	if err != nil {
		return nil, fmt.Errorf("failed to load any %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &a, nil
}

// FindAnysByName looks entities of anyType up by name. With ignoreCase, exact
// matches come first.
func (s *Store) FindAnysByName(ctx context.Context, anyType, name string, ignoreCase bool) ([]model.Any, error) {
	var list []model.Any
	q := s.conn(ctx).Where("any_type = ?", anyType)
	if ignoreCase {
		q = q.Where("LOWER(name) = ?", strings.ToLower(name))
	} else {
		q = q.Where("name = ?", name)
	}
	if err := q.Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to find %s by name: %w", anyType, err)
	}
	return exactFirst(list, func(a model.Any) bool { return a.Name == name }), nil
}

// FindAnysByPlainAttr looks entities of anyType up by a plain attribute value.
// With ignoreCase, exact matches come first.
func (s *Store) FindAnysByPlainAttr(ctx context.Context, anyType, schema, value string, ignoreCase bool) ([]model.Any, error) {
	sub := s.conn(ctx).Model(&model.PlainAttrValue{}).Select("any_id").
		Where("any_type = ? AND schema_name = ?", anyType, schema)
	if ignoreCase {
		sub = sub.Where("value_lower = ?", strings.ToLower(value))
	} else {
		sub = sub.Where("value = ?", value)
	}

	var list []model.Any
	if err := s.conn(ctx).Where("id IN (?)", sub).Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", anyType, schema, err)
	}
	return exactFirst(list, func(a model.Any) bool {
		for _, v := range a.PlainAttrs[schema] {
			if v == value {
				return true
			}
		}
		return false
	}), nil
}

// ListAnys lists entities of anyType within realms.
func (s *Store) ListAnys(ctx context.Context, anyType string, realms []string) ([]model.Any, error) {
	var list []model.Any
	err := s.conn(ctx).Scopes(realmScope("realm", realms)).
		Where("any_type = ?", anyType).Order("name").Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", anyType, err)
	}
	return list, nil
}

// ListAnysByResource lists entities of anyType assigned to resourceKey.
func (s *Store) ListAnysByResource(ctx context.Context, anyType, resourceKey string) ([]model.Any, error) {
	all, err := s.ListAnys(ctx, anyType, nil)
	if err != nil {
		return nil, err
	}
	var list []model.Any
	for _, a := range all {
		if a.HasResource(resourceKey) {
			list = append(list, a)
		}
	}
	return list, nil
}

// DeleteAny removes an entity, its index rows and its linked accounts.
func (s *Store) DeleteAny(ctx context.Context, key string) error {
	return s.InTx(ctx, false, func(ctx context.Context) error {
		db := s.conn(ctx)
		if err := db.Where("any_id = ?", key).Delete(&model.PlainAttrValue{}).Error; err != nil {
			return fmt.Errorf("failed to unindex %s: %w", key, err)
		}
		if err := db.Where("owner_id = ?", key).Delete(&model.LinkedAccount{}).Error; err != nil {
			return fmt.Errorf("failed to delete linked accounts of %s: %w", key, err)
		}
		if err := db.Where("id = ?", key).Delete(&model.Any{}).Error; err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		return nil
	})
}

func exactFirst[T any](list []T, exact func(T) bool) []T {
	out := make([]T, 0, len(list))
	var rest []T
	for _, item := range list {
		if exact(item) {
			out = append(out, item)
		} else {
			rest = append(rest, item)
		}
	}
	return append(out, rest...)
}
