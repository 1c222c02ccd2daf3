package remediation

import (
	"context"
	"encoding/json"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/model"
	"idm-reconciler/core/provisioning"
	"idm-reconciler/core/reqctx"

	"go.uber.org/zap"
)

// Page is one page of remediations, newest first.
type Page struct {
	Items []model.Remediation `json:"items"`
	Page  int                 `json:"page"`
	Size  int                 `json:"size"`
	Total int64               `json:"total"`
}

// Service lists and replays the pull failures stored as remediations.
type Service struct {
	core   *engine.Core
	logger *zap.Logger
}

// NewService creates a new remediation service.
func NewService(core *engine.Core) *Service {
	return &Service{core: core, logger: core.Logger}
}

// List returns one page; page starts at 1.
func (s *Service) List(ctx context.Context, page, size int) (*Page, error) {
	if err := entitled(ctx, reqctx.RemediationList); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	items, total, err := s.core.Store.ListRemediations(ctx, page, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Remediation{}
	}
	return &Page{Items: items, Page: page, Size: size, Total: total}, nil
}

// Read returns one remediation.
func (s *Service) Read(ctx context.Context, key string) (*model.Remediation, error) {
	if err := entitled(ctx, reqctx.RemediationRead); err != nil {
		return nil, err
	}
	return s.find(ctx, key)
}

// Delete drops a remediation without replaying it.
func (s *Service) Delete(ctx context.Context, key string) (*model.Remediation, error) {
	if err := entitled(ctx, reqctx.RemediationDelete); err != nil {
		return nil, err
	}
	var r *model.Remediation
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		var err error
		if r, err = s.find(ctx, key); err != nil {
			return err
		}
		return s.core.Store.DeleteRemediation(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Remedy replays the stored operation with its payload, then drops the remediation.
// The caller needs REMEDIATION_REMEDY on the realm of the entity.
func (s *Service) Remedy(ctx context.Context, key string) (*model.Any, error) {
	var entity *model.Any
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		r, err := s.find(ctx, key)
		if err != nil {
			return err
		}
		if entity, err = s.payload(ctx, r); err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.RemediationRemedy, realmOf(entity)); err != nil {
			return err
		}

		logic, err := s.core.Logic.For(entity.Kind)
		if err != nil {
			return err
		}
		switch provisioning.Operation(r.Operation) {
		case provisioning.OperationCreate:
			err = logic.Create(ctx, entity)
		case provisioning.OperationUpdate:
			err = s.update(ctx, logic, entity)
		case provisioning.OperationDelete:
			err = s.delete(ctx, logic, entity)
		default:
			err = clienterr.Newf(clienterr.InvalidValues, "cannot remedy operation %s", r.Operation)
		}
		if err != nil {
			return err
		}
		return s.core.Store.DeleteRemediation(ctx, r.Key)
	})
	if err != nil {
		s.logger.Warn("Remedy failed", zap.String("remediation", key), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Remediation remedied", zap.String("remediation", key), zap.String("key", entity.Key))
	return entity, nil
}

func (s *Service) update(ctx context.Context, logic provisioning.AnyLogic, entity *model.Any) error {
	current, err := s.core.Store.FindAny(ctx, entity.Key)
	if err != nil {
		return err
	}
	if current == nil {
		return clienterr.Newf(clienterr.NotFound, "%s %s", entity.Type, entity.Key)
	}
	if entity.Password == "" {
		entity.Password = current.Password
	}
	return logic.Update(ctx, entity)
}

func (s *Service) delete(ctx context.Context, logic provisioning.AnyLogic, entity *model.Any) error {
	current, err := s.core.Store.FindAny(ctx, entity.Key)
	if err != nil {
		return err
	}
	if current == nil {
		return clienterr.Newf(clienterr.NotFound, "%s %s", entity.Type, entity.Key)
	}
	return logic.Delete(ctx, current)
}

// payload decodes the entity of r; the kind falls back to the one of its any type.
func (s *Service) payload(ctx context.Context, r *model.Remediation) (*model.Any, error) {
	if r.Payload == "" {
		return nil, clienterr.Newf(clienterr.InvalidValues, "remediation %s carries no payload", r.Key)
	}
	var entity model.Any
	if err := json.Unmarshal([]byte(r.Payload), &entity); err != nil {
		return nil, clienterr.Newf(clienterr.InvalidValues, "remediation %s: %v", r.Key, err)
	}
	if entity.Type == "" {
		entity.Type = r.AnyType
	}
	if entity.Kind == "" {
		anyType, err := s.core.Store.FindAnyType(ctx, entity.Type)
		if err != nil {
			return nil, err
		}
		if anyType == nil {
			return nil, clienterr.Newf(clienterr.NotFound, "AnyType %s", entity.Type)
		}
		entity.Kind = anyType.Kind
	}
	return &entity, nil
}

func (s *Service) find(ctx context.Context, key string) (*model.Remediation, error) {
	r, err := s.core.Store.FindRemediation(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "Remediation %s", key)
	}
	return r, nil
}

// entitled requires entitlement on some realm.
func entitled(ctx context.Context, entitlement string) error {
	rc, err := reqctx.From(ctx)
	if err != nil {
		return err
	}
	if len(rc.EffectiveRealms(entitlement)) == 0 {
		return clienterr.Newf(clienterr.DelegatedAdministration, "%s not owned by %s", entitlement, rc.Username)
	}
	return nil
}

func realmOf(a *model.Any) string {
	if a.RealmPath == "" {
		return reqctx.RootRealm
	}
	return a.RealmPath
}
