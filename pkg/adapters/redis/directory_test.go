package redis_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/synx/pkg/adapters/redis"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
	"github.com/aretw0/synx/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisDirectory_Contract(t *testing.T) {
	tests.DirectoryContractTest(t, func(t *testing.T, capacity int) ports.Directory {
		_, client := newClient(t)
		return redis.NewFromClient(client, redis.WithCapacity(capacity))
	})
}

func TestRedisDirectory_Prefix(t *testing.T) {
	mr, client := newClient(t)
	dir := redis.NewFromClient(client, redis.WithPrefix("custom:app:"), redis.WithCapacity(4))
	ctx := context.Background()

	id, err := dir.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1})
	require.NoError(t, err)

	assert.True(t, mr.Exists(fmt.Sprintf("custom:app:entry:%d", id)), "Expected entry key with custom prefix")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix")
	assert.True(t, mr.Exists(fmt.Sprintf("custom:app:slot:%d", id)), "Expected slot claim with custom prefix")

	require.NoError(t, dir.Reclaim(ctx, id))
	assert.False(t, mr.Exists(fmt.Sprintf("custom:app:slot:%d", id)), "Reclaim must free the slot claim")
}

func TestRedisDirectory_TwoProcessesShareEntries(t *testing.T) {
	mr, _ := newClient(t)
	a := redis.New(mr.Addr(), "", 0, redis.WithCapacity(8))
	b := redis.New(mr.Addr(), "", 0, redis.WithCapacity(8))
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	idA, err := a.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1, Owner: 1})
	require.NoError(t, err)
	idB, err := b.Publish(ctx, domain.Entry{Status: domain.StatusActive, Refcount: 1, Owner: 2})
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	_, err = b.Adjust(ctx, idA, domain.Delta{Refcount: 1})
	require.NoError(t, err)

	e, err := a.Read(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), e.Refcount)
	assert.Equal(t, domain.DomainID(1), e.Owner)

	ids, err := b.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{idA, idB}, ids)
}

// MockClaimer lets tests force slot contention.
type MockClaimer struct {
	mock.Mock
}

func (m *MockClaimer) Claim(ctx context.Context, id uint32, owner string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockClaimer) Release(ctx context.Context, id uint32) error {
	return m.Called(id).Error(0)
}

func TestRedisDirectory_SkipsClaimedSlots(t *testing.T) {
	_, client := newClient(t)
	claimer := new(MockClaimer)
	claimer.On("Claim", domain.GlobalIDBase).Return(false, nil).Once()
	claimer.On("Claim", domain.GlobalIDBase+1).Return(true, nil).Once()

	dir := redis.NewFromClient(client, redis.WithCapacity(2), redis.WithClaimer(claimer))
	id, err := dir.Publish(context.Background(), domain.Entry{Status: domain.StatusActive, Refcount: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalIDBase+1, id)
	claimer.AssertExpectations(t)
}

func TestRedisDirectory_ClaimErrorSurfaces(t *testing.T) {
	_, client := newClient(t)
	claimer := new(MockClaimer)
	claimer.On("Claim", mock.Anything).Return(false, fmt.Errorf("connection reset"))

	dir := redis.NewFromClient(client, redis.WithCapacity(2), redis.WithClaimer(claimer))
	_, err := dir.Publish(context.Background(), domain.Entry{Status: domain.StatusActive})
	assert.ErrorContains(t, err, "connection reset")
}

func TestClaimer_Owner(t *testing.T) {
	_, client := newClient(t)
	c := redis.NewClaimer(client, "synx:dir:")
	ctx := context.Background()

	ok, err := c.Claim(ctx, domain.GlobalIDBase, "proc-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, domain.GlobalIDBase, "proc-b")
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := c.Owner(ctx, domain.GlobalIDBase)
	require.NoError(t, err)
	assert.Equal(t, "proc-a", owner)

	require.NoError(t, c.Release(ctx, domain.GlobalIDBase))
	owner, err = c.Owner(ctx, domain.GlobalIDBase)
	require.NoError(t, err)
	assert.Empty(t, owner)
}
