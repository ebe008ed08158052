package synx

import (
	"log/slog"
	"time"

	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
)

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDirectory attaches the Global Directory backend. Services sharing a
// directory see each other's GLOBAL objects.
func WithDirectory(d ports.Directory) Option {
	return func(s *Service) {
		s.dir = d
	}
}

// WithHooks registers lifecycle observers, such as observability.Metrics.
func WithHooks(hooks domain.Hooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithMergePolicy selects how composite statuses are derived from mixed
// child outcomes.
func WithMergePolicy(p domain.MergePolicy) Option {
	return func(s *Service) {
		s.mergePolicy = p
	}
}

// WithMaxCallbacks bounds pending callback registrations per session.
func WithMaxCallbacks(n int) Option {
	return func(s *Service) {
		s.maxCallbacks = n
	}
}

// WithMaxHandles bounds the handles a session may hold.
func WithMaxHandles(n int) Option {
	return func(s *Service) {
		s.maxHandles = n
	}
}

// WithPublishRetries sets how often a GLOBAL create retries a full directory.
func WithPublishRetries(n int, backoff time.Duration) Option {
	return func(s *Service) {
		s.publishRetries = n
		s.publishBackoff = backoff
	}
}

// WithPollInterval makes Run poll the directory in addition to the doorbell.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = d
	}
}
