/*
Package observability exports synx lifecycle events as Prometheus metrics.

Metrics implements domain.Hooks, so it plugs into synx.WithHooks without the
core depending on Prometheus. Chain combines it with other observers such as
a logging hook.
*/
package observability
