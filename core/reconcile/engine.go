package reconcile

import (
	"context"
	"sort"
)

// ReconcileAll compares every entity bound to the provision with every remote object.
// Results are sorted by key.
func ReconcileAll(ctx context.Context, spec *Spec) ([]ReconcileResult, error) {
	cache, err := BuildCache(ctx, spec)
	if err != nil {
		return nil, err
	}
	return reconcileFromCache(ctx, cache, spec.Adapter)
}

// ReconcileOne reconciles a single connObjectKey value from the cached indices.
func ReconcileOne(ctx context.Context, spec *Spec, key string) (*ReconcileResult, error) {
	cache, err := GetOrBuildCache(ctx, spec)
	if err != nil {
		return nil, err
	}
	result, err := buildResult(ctx, key, cache, spec.Adapter)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func reconcileFromCache(ctx context.Context, cache *ReconcileCache, adapter Adapter) ([]ReconcileResult, error) {
	union := buildUnion(cache)

	results := make([]ReconcileResult, 0, len(union))
	for key := range union {
		result, err := buildResult(ctx, key, cache, adapter)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results, nil
}

// buildUnion collects the keys of both indices.
func buildUnion(cache *ReconcileCache) map[string]struct{} {
	union := make(map[string]struct{}, len(cache.Internal)+len(cache.External))
	for key := range cache.Internal {
		union[key] = struct{}{}
	}
	for key := range cache.External {
		union[key] = struct{}{}
	}
	return union
}

func buildResult(ctx context.Context, key string, cache *ReconcileCache, adapter Adapter) (ReconcileResult, error) {
	a, internal := cache.Internal[key]
	obj, external := cache.External[key]

	result := ReconcileResult{
		Key:             key,
		InternalPresent: internal,
		ExternalPresent: external,
		Mismatch:        []string{},
	}
	if !internal && !external {
		return result, nil
	}

	result.Name = adapter.ResolveName(a, obj)
	result.Metadata = adapter.GetMetadata(a, obj)

	if internal && external {
		mismatch, err := adapter.CompareFields(ctx, a, obj)
		if err != nil {
			return result, err
		}
		if mismatch != nil {
			result.Mismatch = mismatch
		}
	}
	return result, nil
}
