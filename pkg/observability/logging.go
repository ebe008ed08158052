package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/synx/pkg/domain"
)

// LogHooks returns hooks that write lifecycle events to logger. Object
// transitions are logged at Debug, recoveries at Info.
func LogHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnSignal: func(ctx context.Context, e *domain.ObjectEvent) {
			logger.DebugContext(ctx, "signal", "id", e.ObjectID, "status", e.Status, "owner", e.Owner)
		},
		OnCallback: func(ctx context.Context, e *domain.CallbackEvent) {
			if e.Outcome == domain.CallbackPanicked {
				logger.WarnContext(ctx, "callback", "id", e.ObjectID, "token", e.Token, "outcome", e.Outcome)
				return
			}
			logger.DebugContext(ctx, "callback", "id", e.ObjectID, "token", e.Token, "outcome", e.Outcome)
		},
		OnRecover: func(ctx context.Context, e *domain.RecoveryEvent) {
			logger.InfoContext(ctx, "recover", "domain", e.Domain, "local", e.Local, "directory", e.Directory)
		},
	}
}
