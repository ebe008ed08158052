// Package runtime implements the synx object store.
//
// It owns every synchronization object: state transitions, reference counts,
// merge (AND-fence) links, external fence bindings, callback registrations and
// blocking waiters. GLOBAL objects are mirrored into a ports.Directory.
//
// Signals are delivered through a FIFO work queue drained iteratively by the
// goroutine that first finds it idle. Propagation up a merge tree enqueues
// the parent instead of recursing, so deep trees never grow the stack and a
// child's wake/callback/parent step always completes before its parent's.
//
// Lock order: a parent object's mutex may be held while taking a child's,
// never the reverse. No object mutex is held while calling the directory,
// a fence or a client callback.
package runtime
