package observability

import (
	"context"

	"github.com/aretw0/synx/pkg/domain"
)

// Chain returns hooks that call every non-nil hook of each set in order.
func Chain(sets ...domain.Hooks) domain.Hooks {
	return domain.Hooks{
		OnCreate:   chain(sets, func(h domain.Hooks) func(context.Context, *domain.ObjectEvent) { return h.OnCreate }),
		OnSignal:   chain(sets, func(h domain.Hooks) func(context.Context, *domain.ObjectEvent) { return h.OnSignal }),
		OnDestroy:  chain(sets, func(h domain.Hooks) func(context.Context, *domain.ObjectEvent) { return h.OnDestroy }),
		OnCallback: chain(sets, func(h domain.Hooks) func(context.Context, *domain.CallbackEvent) { return h.OnCallback }),
		OnWait:     chain(sets, func(h domain.Hooks) func(context.Context, *domain.WaitEvent) { return h.OnWait }),
		OnRecover:  chain(sets, func(h domain.Hooks) func(context.Context, *domain.RecoveryEvent) { return h.OnRecover }),
	}
}

func chain[E any](sets []domain.Hooks, pick func(domain.Hooks) func(context.Context, *E)) func(context.Context, *E) {
	var fns []func(context.Context, *E)
	for _, h := range sets {
		if fn := pick(h); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	return func(ctx context.Context, e *E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
