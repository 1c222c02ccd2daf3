package store

import (
	"context"
	"fmt"
	"strings"

	"idm-reconciler/core/model"
)

// SaveLinkedAccount creates or replaces a linked account.
func (s *Store) SaveLinkedAccount(ctx context.Context, la *model.LinkedAccount) error {
	if err := s.conn(ctx).Save(la).Error; err != nil {
		return fmt.Errorf("failed to save linked account %s: %w", la.Key, err)
	}
	return nil
}

// FindLinkedAccounts looks linked accounts on resourceKey up by connObjectKey value.
// With ignoreCase, exact matches come first.
func (s *Store) FindLinkedAccounts(ctx context.Context, resourceKey, connObjectKeyValue string, ignoreCase bool) ([]model.LinkedAccount, error) {
	var list []model.LinkedAccount
	q := s.conn(ctx).Where("resource_id = ?", resourceKey)
	if ignoreCase {
		q = q.Where("LOWER(conn_object_key_value) = ?", strings.ToLower(connObjectKeyValue))
	} else {
		q = q.Where("conn_object_key_value = ?", connObjectKeyValue)
	}
	if err := q.Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to find linked accounts on %s: %w", resourceKey, err)
	}
	return exactFirst(list, func(la model.LinkedAccount) bool {
		return la.ConnObjectKeyValue == connObjectKeyValue
	}), nil
}

// LinkedAccountsOf lists the linked accounts owned by a user.
func (s *Store) LinkedAccountsOf(ctx context.Context, ownerKey string) ([]model.LinkedAccount, error) {
	var list []model.LinkedAccount
	if err := s.conn(ctx).Where("owner_id = ?", ownerKey).Order("resource_id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list linked accounts of %s: %w", ownerKey, err)
	}
	return list, nil
}

// DeleteLinkedAccount removes a linked account.
func (s *Store) DeleteLinkedAccount(ctx context.Context, key string) error {
	if err := s.conn(ctx).Where("id = ?", key).Delete(&model.LinkedAccount{}).Error; err != nil {
		return fmt.Errorf("failed to delete linked account %s: %w", key, err)
	}
	return nil
}
