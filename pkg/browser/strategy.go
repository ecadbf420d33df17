package browser

import (
	"context"
	"sort"

	"github.com/GrindLabs/spectrum/internal/metrics"
)

// NavigationContext is the immutable value handed to every strategy hook.
// Config carries the final merged strategy list and the resolved debugging
// port, so a hook can inspect its siblings and reach the instance's CDP
// endpoint. Metrics may be nil for contexts built outside an instance.
type NavigationContext struct {
	URL        string
	InstanceID string
	TargetID   string
	Config     *Config
	Metrics    *metrics.Collector
}

// Strategy hooks into the navigation lifecycle at two points. Hooks may
// be no-ops; returning nil means "no side effect". A hook's error aborts
// the remaining hooks of that phase.
type Strategy interface {
	// Name uniquely identifies the strategy within a merged list.
	Name() string

	// BeforeNavigation runs after the browser is reachable, before the
	// navigation target is created.
	BeforeNavigation(ctx context.Context, nav *NavigationContext) error

	// AfterNavigation runs once the navigation target is recorded.
	AfterNavigation(ctx context.Context, nav *NavigationContext) error
}

// DefaultStrategies returns the default strategy instances, ordered.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewReconStrategy(),
		NewPerimeterXStrategy(),
	}
}

// RunBeforeNavigation invokes each strategy's before hook in list order,
// stopping at the first error.
func RunBeforeNavigation(ctx context.Context, strategies []Strategy, nav *NavigationContext) error {
	for _, strategy := range strategies {
		if err := strategy.BeforeNavigation(ctx, nav); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterNavigation invokes each strategy's after hook in list order,
// stopping at the first error.
func RunAfterNavigation(ctx context.Context, strategies []Strategy, nav *NavigationContext) error {
	for _, strategy := range strategies {
		if err := strategy.AfterNavigation(ctx, nav); err != nil {
			return err
		}
	}
	return nil
}

// MergeStrategies merges the default strategies with overrides and
// additions. Overrides are keyed by name: a nil value removes the named
// strategy, a non-nil value replaces it in place or appends when the name
// is new. Additions replace in place by name or append. Names stay unique
// and the last write for a name wins. Override keys are applied in sorted
// order so the result is deterministic.
func MergeStrategies(defaults []Strategy, overrides map[string]Strategy, additions []Strategy) []Strategy {
	ordered := make([]Strategy, 0, len(defaults)+len(overrides)+len(additions))
	index := make(map[string]int)

	place := func(strategy Strategy) {
		name := strategy.Name()
		if name == "" {
			return
		}
		if at, ok := index[name]; ok {
			ordered[at] = strategy
			return
		}
		index[name] = len(ordered)
		ordered = append(ordered, strategy)
	}

	for _, strategy := range defaults {
		if strategy == nil {
			continue
		}
		place(strategy)
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		strategy := overrides[name]
		if strategy == nil {
			at, ok := index[name]
			if !ok {
				continue
			}
			ordered = append(ordered[:at], ordered[at+1:]...)
			index = make(map[string]int, len(ordered))
			for idx, item := range ordered {
				index[item.Name()] = idx
			}
			continue
		}

		if at, ok := index[name]; ok {
			ordered[at] = strategy
			continue
		}
		index[name] = len(ordered)
		ordered = append(ordered, strategy)
	}

	for _, strategy := range additions {
		if strategy == nil {
			continue
		}
		place(strategy)
	}

	return ordered
}
