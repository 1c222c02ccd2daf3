package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ReconcileWithPlan reconciles and plans actions without executing them.
func ReconcileWithPlan(ctx context.Context, spec *Spec, opts ReconcileOptions) (*ReconcilePlan, error) {
	cache, err := GetOrBuildCache(ctx, spec)
	if err != nil {
		return nil, err
	}

	results, err := reconcileFromCache(ctx, cache, spec.Adapter)
	if err != nil {
		return nil, err
	}

	summary, actions := buildPlanFromResults(results, opts)
	return &ReconcilePlan{
		Results: results,
		Actions: actions,
		Summary: summary,
		cache:   cache,
	}, nil
}

// ApplyPlan runs the actions of plan when opts is confirmed and not a dry run.
// Every action is attempted; failures are combined into the returned error.
func ApplyPlan(ctx context.Context, spec *Spec, plan *ReconcilePlan, opts ReconcileOptions) (executed int, err error) {
	if !opts.Confirmed || opts.DryRun {
		return 0, nil
	}

	mutator, ok := spec.Adapter.(Mutator)
	if !ok {
		return 0, fmt.Errorf("adapter %s does not implement Mutator interface", spec.Adapter.Name())
	}

	cache := plan.cache
	if cache == nil {
		if cache, err = GetOrBuildCache(ctx, spec); err != nil {
			return 0, err
		}
	}

	for _, action := range plan.Actions {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return executed, multierr.Append(err, ctxErr)
		}

		var actionErr error
		switch action.Type {
		case ActionPushCreate:
			actionErr = mutator.PushCreate(ctx, cache.Internal[action.Key])
		case ActionPushUpdate:
			actionErr = mutator.PushUpdate(ctx, cache.Internal[action.Key])
		case ActionPullCreate:
			actionErr = mutator.PullCreate(ctx, cache.External[action.Key])
		case ActionPushDelete:
			actionErr = mutator.PushDelete(ctx, cache.External[action.Key])
		default:
			actionErr = fmt.Errorf("unknown action type %s", action.Type)
		}

		if actionErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s %s: %w", action.Type, action.Key, actionErr))
			continue
		}
		executed++
	}

	if executed > 0 {
		InvalidateCache(spec)
	}
	return executed, err
}

// ReconcileAndApply plans and, when allowed by opts, applies.
func ReconcileAndApply(ctx context.Context, spec *Spec, opts ReconcileOptions) (*ReconcilePlan, int, error) {
	plan, err := ReconcileWithPlan(ctx, spec, opts)
	if err != nil {
		return nil, 0, err
	}
	executed, err := ApplyPlan(ctx, spec, plan, opts)
	return plan, executed, err
}

func buildPlanFromResults(results []ReconcileResult, opts ReconcileOptions) (PlanSummary, []Action) {
	var summary PlanSummary
	var actions []Action

	summary.TotalItems = len(results)

	for _, result := range results {
		if result.InternalPresent && !result.ExternalPresent {
			summary.MissingExternal++
		}
		if result.ExternalPresent && !result.InternalPresent {
			summary.MissingInternal++
		}
		if len(result.Mismatch) > 0 {
			summary.Mismatches++
		}

		switch {
		case result.InternalPresent && !result.ExternalPresent:
			if opts.DoPush {
				actions = append(actions, Action{Type: ActionPushCreate, Key: result.Key, Reason: "missing on resource"})
				summary.PushActions++
			}

		case result.ExternalPresent && !result.InternalPresent:
			if opts.DoPurge {
				actions = append(actions, Action{Type: ActionPushDelete, Key: result.Key, Reason: "no internal owner"})
				summary.PurgeActions++
			} else if opts.DoPull {
				actions = append(actions, Action{Type: ActionPullCreate, Key: result.Key, Reason: "missing internally"})
				summary.PullActions++
			}

		case len(result.Mismatch) > 0:
			if opts.DoPush {
				actions = append(actions, Action{
					Type:   ActionPushUpdate,
					Key:    result.Key,
					Reason: "mismatch: " + strings.Join(result.Mismatch, ", "),
				})
				summary.PushActions++
			}
		}
	}

	return summary, actions
}
