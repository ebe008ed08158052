/*
Package synx is a cross-domain synchronization object service.

Independent execution domains (GPU, display, camera and the like) create
one-shot completion objects, signal them, merge them into AND-fences, wait on
them or register callbacks, and pass them to each other by handle. Objects
with GLOBAL scope are mirrored into a shared directory so every domain that
maps it can observe them, and a domain that resets is swept by Recover so
nobody blocks forever on an object it will never signal.

# Usage

	svc, err := synx.New()
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close(ctx)

	sid, _ := svc.OpenSession(ctx, 1)
	a, _ := svc.Create(ctx, sid, synx.CreateOptions{})
	b, _ := svc.Create(ctx, sid, synx.CreateOptions{Scope: domain.ScopeGlobal})
	both, _ := svc.Merge(ctx, sid, []domain.Handle{a, b}, domain.ScopeLocal)

	_ = svc.Signal(ctx, sid, a, domain.StatusSuccess)
	_ = svc.Signal(ctx, sid, b, domain.StatusSuccess)
	st, _ := svc.Wait(ctx, sid, both, time.Second) // domain.StatusSuccess

Handles are session-local. LOCAL handles and GLOBAL handles come from
disjoint ranges, so a bare handle tells which table to consult.

Several Services attached to one directory (a memory.Region in the same
process, or a redis.Directory across processes) behave like domains sharing
memory: Run follows the directory doorbell and applies remote signals to
imported objects.
*/
package synx
