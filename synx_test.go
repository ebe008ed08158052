package synx_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/synx"
	"github.com/aretw0/synx/pkg/adapters/memory"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/fence"
)

func newService(t *testing.T, opts ...synx.Option) *synx.Service {
	t.Helper()
	svc, err := synx.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func openSession(t *testing.T, svc *synx.Service, d domain.DomainID) string {
	t.Helper()
	sid, err := svc.OpenSession(context.Background(), d)
	require.NoError(t, err)
	return sid
}

func TestService_Monotonicity(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	h, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Signal(ctx, sid, h, domain.StatusSuccess))

	err = svc.Signal(ctx, sid, h, domain.StatusError)
	assert.Equal(t, domain.CodeInvalid, domain.CodeOf(err))
	var op *domain.OpError
	require.ErrorAs(t, err, &op)
	assert.Equal(t, "signal", op.Op)
	assert.Equal(t, h, op.Handle)

	st, err := svc.Status(ctx, sid, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, st)
}

func TestService_RefcountConservation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	h, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	dup, err := svc.Import(ctx, sid, synx.FromHandle(sid, h), synx.ImportFlags{})
	require.NoError(t, err)
	assert.NotEqual(t, h, dup)

	rows, err := svc.Query(ctx, synx.QueryOptions{Columns: domain.ColRefcount})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint32(2), rows[0].Refcount)

	require.NoError(t, svc.Release(ctx, sid, h))
	st, err := svc.Status(ctx, sid, dup)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, st)

	require.NoError(t, svc.Release(ctx, sid, dup))
	_, err = svc.Status(ctx, sid, dup)
	assert.Equal(t, domain.CodeNoEnt, domain.CodeOf(err))
	assert.Equal(t, domain.CodeNoEnt, domain.CodeOf(svc.Release(ctx, sid, dup)), "double release is surfaced")

	rows, err = svc.Query(ctx, synx.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestService_MergeAndCompletion(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	a, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	b, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	m, err := svc.Merge(ctx, sid, []domain.Handle{a, b}, domain.ScopeLocal)
	require.NoError(t, err)

	require.NoError(t, svc.Signal(ctx, sid, a, domain.StatusSuccess))
	st, err := svc.Status(ctx, sid, m)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, st)

	require.NoError(t, svc.Signal(ctx, sid, b, domain.StatusError))
	st, err = svc.Status(ctx, sid, m)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, st)
}

func TestService_ImmediateMerge(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	a, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	b, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Signal(ctx, sid, a, domain.StatusSuccess))
	require.NoError(t, svc.Signal(ctx, sid, b, domain.StatusSuccess))

	m, err := svc.Merge(ctx, sid, []domain.Handle{a, b}, domain.ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, m.IsGlobal())

	var got domain.Status
	require.NoError(t, svc.RegisterCallback(ctx, sid, m, 1, 0, func(r domain.CallbackResult) { got = r.Status }))
	assert.Equal(t, domain.StatusSuccess, got, "no missed callback")
}

func TestService_MergeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)
	a, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)

	_, err = svc.Merge(ctx, sid, []domain.Handle{a, a}, domain.ScopeLocal)
	assert.Equal(t, domain.CodeInvalid, domain.CodeOf(err))
	_, err = svc.Merge(ctx, sid, []domain.Handle{a, 77}, domain.ScopeLocal)
	assert.Equal(t, domain.CodeInvalid, domain.CodeOf(err))
	_, err = svc.Merge(ctx, sid, nil, domain.ScopeLocal)
	assert.Equal(t, domain.CodeInvalid, domain.CodeOf(err))
}

func TestService_RecoveryIdempotence(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	crashed := openSession(t, svc, 7)
	observer := openSession(t, svc, 1)

	done, err := svc.Create(ctx, crashed, synx.CreateOptions{})
	require.NoError(t, err)
	pending, err := svc.Create(ctx, crashed, synx.CreateOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)
	require.NoError(t, svc.Signal(ctx, crashed, done, domain.StatusSuccess))

	gid, err := svc.GlobalID(ctx, crashed, pending)
	require.NoError(t, err)
	watched, err := svc.Import(ctx, observer, synx.FromGlobalID(gid), synx.ImportFlags{Scope: domain.ScopeGlobal})
	require.NoError(t, err)

	waited := make(chan domain.Status, 1)
	go func() {
		st, _ := svc.Wait(ctx, observer, watched, 0)
		waited <- st
	}()

	rep, err := svc.Recover(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Local)

	select {
	case st := <-waited:
		assert.Equal(t, domain.StatusSSR, st)
	case <-time.After(time.Second):
		t.Fatal("waiter on the crashed domain was not released")
	}

	st, err := svc.Status(ctx, crashed, done)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, st)

	again, err := svc.Recover(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 7}, again)
}

func TestService_CallbackExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)
	h, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)

	var calls atomic.Int32
	fired := make(chan struct{})
	require.NoError(t, svc.RegisterCallback(ctx, sid, h, 3, 5*time.Millisecond, func(r domain.CallbackResult) {
		assert.True(t, r.TimedOut)
		calls.Add(1)
		close(fired)
	}))
	<-fired

	out, err := svc.CancelCallback(ctx, sid, h, 3)
	require.NoError(t, err)
	assert.Equal(t, synx.AlreadyFired, out)

	require.NoError(t, svc.Signal(ctx, sid, h, domain.StatusSuccess))
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_DirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	h, err := svc.Create(ctx, sid, synx.CreateOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)
	gid, err := svc.GlobalID(ctx, sid, h)
	require.NoError(t, err)

	e, err := svc.ReadEntry(ctx, gid)
	require.NoError(t, err)
	assert.True(t, e.IsLive(gid))

	require.NoError(t, svc.Release(ctx, sid, h))
	e, err = svc.ReadEntry(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, domain.Entry{}, e, "reclaimed entries read as all-zero")
}

func TestService_WaitTimeout(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)
	h, err := svc.Create(ctx, sid, synx.CreateOptions{})
	require.NoError(t, err)

	st, err := svc.Wait(ctx, sid, h, time.Millisecond)
	assert.Equal(t, domain.CodeTimeout, domain.CodeOf(err))
	assert.Equal(t, domain.StatusActive, st, "a timeout does not mutate the object")
}

func TestService_ImportFence(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)
	f := fence.New("display:vsync:12")

	h, err := svc.Import(ctx, sid, synx.FromFence(f), synx.ImportFlags{})
	require.NoError(t, err)
	require.NoError(t, f.Signal(domain.StatusSuccess))

	st, err := svc.Status(ctx, sid, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExternal, st)

	_, err = svc.Import(ctx, sid, synx.Ref{}, synx.ImportFlags{})
	assert.Equal(t, domain.CodeInvalid, domain.CodeOf(err))
}

func TestService_ImportTakeOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	creator := openSession(t, svc, 1)
	taker := openSession(t, svc, 2)

	h, err := svc.Create(ctx, creator, synx.CreateOptions{})
	require.NoError(t, err)
	_, err = svc.Import(ctx, taker, synx.FromHandle(creator, h), synx.ImportFlags{TakeOwnership: true})
	require.NoError(t, err)

	rep, err := svc.Recover(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, rep.Local)
	rep, err = svc.Recover(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Local)
}

func TestService_ImportTakeOwnershipGlobal(t *testing.T) {
	ctx := context.Background()
	region := memory.NewRegion(16)
	svc := newService(t, synx.WithDirectory(region))
	peer := newService(t, synx.WithDirectory(region))
	creator := openSession(t, svc, 1)
	taker := openSession(t, svc, 2)

	h, err := svc.Create(ctx, creator, synx.CreateOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)
	taken, err := svc.Import(ctx, taker, synx.FromHandle(creator, h), synx.ImportFlags{Scope: domain.ScopeGlobal, TakeOwnership: true})
	require.NoError(t, err)
	gid, err := svc.GlobalID(ctx, taker, taken)
	require.NoError(t, err)

	e, err := svc.ReadEntry(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainID(2), e.Owner)

	// Neither this process nor a peer attributes the object to its creator.
	rep, err := svc.Recover(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 1}, rep)
	rep, err = peer.Recover(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 1}, rep)

	st, err := svc.Status(ctx, taker, taken)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, st)

	// A peer process recovering the new owner finds the entry.
	rep, err = peer.Recover(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 2, Directory: 1}, rep)
	e, err = svc.ReadEntry(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSSR, e.Status)
}

func TestService_ImportTakeOwnershipFromPeer(t *testing.T) {
	ctx := context.Background()
	region := memory.NewRegion(16)
	svc := newService(t, synx.WithDirectory(region))
	peer := newService(t, synx.WithDirectory(region))
	creator := openSession(t, svc, 1)
	taker := openSession(t, peer, 2)

	h, err := svc.Create(ctx, creator, synx.CreateOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)
	gid, err := svc.GlobalID(ctx, creator, h)
	require.NoError(t, err)
	_, err = peer.Import(ctx, taker, synx.FromGlobalID(gid), synx.ImportFlags{Scope: domain.ScopeGlobal, TakeOwnership: true})
	require.NoError(t, err)

	rep, err := svc.Recover(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 1}, rep)
	st, err := svc.Status(ctx, creator, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, st)

	rep, err = svc.Recover(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, synx.RecoveryReport{Domain: 2, Local: 1}, rep)
	st, err = svc.Status(ctx, creator, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSSR, st)
}

func TestService_CloseSessionReleasesEverything(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sid := openSession(t, svc, 1)

	for i := 0; i < 4; i++ {
		_, err := svc.Create(ctx, sid, synx.CreateOptions{Scope: domain.Scope(i % 2)})
		require.NoError(t, err)
	}
	require.NoError(t, svc.CloseSession(ctx, sid))

	rows, err := svc.Query(ctx, synx.QueryOptions{IncludeDirectory: true})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.Create(ctx, sid, synx.CreateOptions{})
	assert.Equal(t, domain.CodeNoEnt, domain.CodeOf(err))
	assert.Empty(t, svc.Sessions())
}

func TestService_UnknownMergePolicy(t *testing.T) {
	_, err := synx.New(synx.WithMergePolicy("loudest"))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestService_SharedRegion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	region := memory.NewRegion(64)
	gpu := newService(t, synx.WithDirectory(region))
	display := newService(t, synx.WithDirectory(region), synx.WithPollInterval(5*time.Millisecond))

	var g errgroup.Group
	g.Go(func() error { return display.Run(ctx) })

	gs := openSession(t, gpu, 1)
	ds := openSession(t, display, 2)

	frame, err := gpu.Create(ctx, gs, synx.CreateOptions{Scope: domain.ScopeGlobal})
	require.NoError(t, err)
	gid, err := gpu.GlobalID(ctx, gs, frame)
	require.NoError(t, err)

	imported, err := display.Import(ctx, ds, synx.FromGlobalID(gid), synx.ImportFlags{Scope: domain.ScopeGlobal})
	require.NoError(t, err)

	require.NoError(t, gpu.Signal(ctx, gs, frame, domain.StatusSuccess))
	st, err := display.Wait(ctx, ds, imported, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, st)

	cancel()
	require.NoError(t, g.Wait())
}

func TestService_ConcurrentClients(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	var g errgroup.Group
	for d := domain.DomainID(1); d <= 8; d++ {
		g.Go(func() error {
			sid, err := svc.OpenSession(ctx, d)
			if err != nil {
				return err
			}
			var hs []domain.Handle
			for i := 0; i < 16; i++ {
				h, err := svc.Create(ctx, sid, synx.CreateOptions{Scope: domain.Scope(i % 2)})
				if err != nil {
					return err
				}
				hs = append(hs, h)
			}
			m, err := svc.Merge(ctx, sid, hs, domain.ScopeLocal)
			if err != nil {
				return err
			}
			for _, h := range hs {
				if err := svc.Signal(ctx, sid, h, domain.StatusSuccess); err != nil {
					return err
				}
			}
			if _, err := svc.Wait(ctx, sid, m, time.Second); err != nil {
				return err
			}
			return svc.CloseSession(ctx, sid)
		})
	}
	require.NoError(t, g.Wait())

	rows, err := svc.Query(ctx, synx.QueryOptions{IncludeDirectory: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
