package store

import (
	"context"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/model"
)

// Binding is a resolved (any type, resource, provision) triple with its key item.
type Binding struct {
	AnyType   *model.AnyType
	Resource  *model.ExternalResource
	Provision *model.Provision
	KeyItem   model.Item
}

// ResolveBinding loads the provision of anyTypeKey on resourceKey. Missing resource,
// any type, provision or connObjectKey item fail with NotFound.
func (s *Store) ResolveBinding(ctx context.Context, anyTypeKey, resourceKey string) (*Binding, error) {
	res, err := s.FindResource(ctx, resourceKey)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "Resource %s", resourceKey)
	}

	anyType, err := s.FindAnyType(ctx, anyTypeKey)
	if err != nil {
		return nil, err
	}
	if anyType == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "AnyType %s", anyTypeKey)
	}

	provision, ok := res.Provision(anyType.Key)
	if !ok {
		return nil, clienterr.Newf(clienterr.NotFound, "Provision for %s on Resource %s", anyType.Key, res.Key)
	}

	keyItem, ok := provision.Mapping.ConnObjectKeyItem()
	if !ok {
		return nil, clienterr.Newf(clienterr.NotFound, "ConnObjectKey mapping for %s on Resource %s", anyType.Key, res.Key)
	}

	return &Binding{AnyType: anyType, Resource: res, Provision: provision, KeyItem: keyItem}, nil
}
