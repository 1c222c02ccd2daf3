package provisioning

import (
	"context"
	"io"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/connid/csvstream"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StreamResource is the resource key of the transient bindings built for CSV streams.
const StreamResource = "csv-stream"

// Streamer pushes entities to, and pulls them from, CSV streams.
type Streamer struct {
	pusher  *Pusher
	puller  *Puller
	workers int
	logger  *zap.Logger
}

// NewStreamer creates a CSV stream executor; workers bounds parallel pushes.
func NewStreamer(pusher *Pusher, puller *Puller, workers int, logger *zap.Logger) *Streamer {
	if workers < 1 {
		workers = 1
	}
	return &Streamer{pusher: pusher, puller: puller, workers: workers, logger: logger}
}

// streamBinding builds a binding with one item per column, keyed on keyColumn.
func streamBinding(anyType *model.AnyType, columns []string, keyColumn string, purpose model.Purpose) *store.Binding {
	provision := &model.Provision{
		ResourceKey: StreamResource,
		AnyType:     anyType.Key,
		ObjectClass: string(connid.ObjectClassAccount),
		Mapping:     &model.Mapping{},
	}
	var keyItem model.Item
	for _, column := range columns {
		item := model.Item{
			IntAttrName:   column,
			ExtAttrName:   column,
			ConnObjectKey: column == keyColumn,
			Multivalue:    true,
			Purpose:       purpose,
		}
		if item.ConnObjectKey {
			keyItem = item
		}
		provision.Mapping.Items = append(provision.Mapping.Items, item)
	}
	resource := &model.ExternalResource{Key: StreamResource, Provisions: []model.Provision{*provision}}
	return &store.Binding{AnyType: anyType, Resource: resource, Provision: provision, KeyItem: keyItem}
}

// PushStream writes anys as CSV rows to w. Rows and reports follow the order of anys.
func (s *Streamer) PushStream(
	ctx context.Context,
	anyType *model.AnyType,
	anys []*model.Any,
	spec csvstream.Spec,
	task PushTask,
	w io.Writer,
) ([]ProvisioningReport, error) {
	switch task.UnmatchingRule {
	case UnmatchingAssign:
		task.UnmatchingRule = UnmatchingProvision
	case UnmatchingUnlink:
		return nil, clienterr.Newf(clienterr.InvalidValues, "unmatching rule %s is not supported on streams", task.UnmatchingRule)
	}

	if len(spec.Columns) == 0 {
		return nil, clienterr.New(clienterr.InvalidValues, "no columns to write")
	}
	if spec.KeyColumn == "" {
		spec.KeyColumn = spec.Columns[0]
	}
	writer, err := csvstream.NewWriter(w, spec)
	if err != nil {
		return nil, err
	}
	b := streamBinding(anyType, spec.Columns, spec.KeyColumn, model.PurposePropagation)

	reports := make([]ProvisioningReport, len(anys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, a := range anys {
		i, a := i, a
		g.Go(func() error {
			reports[i] = s.pusher.Push(gctx, b, writer.Slot(i), Target{Any: a}, task)
			return writer.Release(i)
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	if err := writer.Flush(); err != nil {
		return reports, err
	}

	s.logger.Info("CSV push completed",
		zap.String("anyType", anyType.Key),
		zap.Int("entities", len(anys)),
		zap.Int("rows", writer.Rows()))
	return reports, nil
}

// PullStream imports the rows of r, one CREATE_OR_UPDATE delta per row.
func (s *Streamer) PullStream(
	ctx context.Context,
	anyType *model.AnyType,
	r io.Reader,
	spec csvstream.Spec,
	task PullTask,
) ([]ProvisioningReport, error) {
	switch task.MatchingRule {
	case MatchingLink, MatchingUnlink, MatchingUnassign, MatchingDeprovision:
		return nil, clienterr.Newf(clienterr.InvalidValues, "matching rule %s is not supported on streams", task.MatchingRule)
	}
	if task.UnmatchingRule == UnmatchingAssign {
		task.UnmatchingRule = UnmatchingProvision
	}

	reader, err := csvstream.NewReader(r, spec)
	if err != nil {
		return nil, err
	}
	b := streamBinding(anyType, reader.Columns(), spec.KeyColumn, model.PurposePull)

	var reports []ProvisioningReport
	_, err = reader.Sync(ctx, connid.ObjectClass(b.Provision.ObjectClass), "", func(delta *connid.SyncDelta) bool {
		reports = append(reports, s.puller.HandleDelta(ctx, b, delta, task)...)
		return true
	}, connid.OperationOptions{})
	if err != nil {
		return reports, err
	}

	s.logger.Info("CSV pull completed",
		zap.String("anyType", anyType.Key),
		zap.Int("reports", len(reports)))
	return reports, nil
}
