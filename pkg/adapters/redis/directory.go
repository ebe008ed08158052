package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultCapacity is the number of directory slots when no capacity is configured.
const DefaultCapacity = 4096

const doorbellBuffer = 64

// Entry hash fields.
const (
	fieldID          = "id"
	fieldStatus      = "status"
	fieldRefcount    = "refcount"
	fieldChildren    = "children"
	fieldSubscribers = "subscribers"
	fieldWaiters     = "waiters"
	fieldOwner       = "owner"
	fieldGen         = "gen"
)

func parentField(i int) string {
	return "p" + strconv.Itoa(i)
}

// signalScript moves an entry out of ACTIVE. Returns -1 if the entry is
// missing, 0 if it already left ACTIVE and 1 when applied.
var signalScript = backend.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return -1
end
if tonumber(cur) ~= 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'gen', 1)
return 1
`)

// adjustScript adds the four counter deltas, clamping at zero.
var adjustScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local fields = {'refcount', 'children', 'subscribers', 'waiters'}
for i, f in ipairs(fields) do
	local d = tonumber(ARGV[i])
	if d ~= 0 then
		local cur = redis.call('HGET', KEYS[1], f)
		local v = tonumber(cur or '0') + d
		if v < 0 then
			v = 0
		end
		redis.call('HSET', KEYS[1], f, tostring(v))
	end
end
redis.call('HINCRBY', KEYS[1], 'gen', 1)
return 1
`)

// addParentScript writes ARGV[1] into the first zero parent field among
// ARGV[2] candidates. Returns -1 if missing, 0 if full, 1 when stored.
var addParentScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local n = tonumber(ARGV[2])
for i = 0, n - 1 do
	local f = 'p' .. i
	local v = redis.call('HGET', KEYS[1], f)
	if (not v) or v == '0' then
		redis.call('HSET', KEYS[1], f, ARGV[1])
		redis.call('HINCRBY', KEYS[1], 'gen', 1)
		return 1
	end
end
return 0
`)

var removeParentScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local n = tonumber(ARGV[2])
for i = 0, n - 1 do
	local f = 'p' .. i
	if redis.call('HGET', KEYS[1], f) == ARGV[1] then
		redis.call('HSET', KEYS[1], f, '0')
		redis.call('HINCRBY', KEYS[1], 'gen', 1)
	end
end
return 1
`)

var ownerScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'gen', 1)
return 1
`)

// Directory implements ports.Directory using Redis, so domains living in
// separate processes can share GLOBAL objects.
//
// Each entry is a hash under prefix+"entry:<id>"; claimed IDs are indexed in
// a sorted set and status changes are announced on a pub/sub channel.
type Directory struct {
	client   *backend.Client
	prefix   string
	capacity int
	claimer  ports.SlotClaimer
	owner    string
}

// Option configures the Directory.
type Option func(*Directory)

// WithPrefix sets the key prefix for directory keys.
func WithPrefix(prefix string) Option {
	return func(d *Directory) {
		d.prefix = prefix
	}
}

// WithCapacity sets the number of slots in the reserved ID region.
func WithCapacity(capacity int) Option {
	return func(d *Directory) {
		if capacity > 0 {
			d.capacity = capacity
		}
	}
}

// WithClaimer replaces the SET NX slot claimer.
func WithClaimer(c ports.SlotClaimer) Option {
	return func(d *Directory) {
		d.claimer = c
	}
}

// New creates a new Redis directory with options.
func New(address, password string, db int, opts ...Option) *Directory {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis directory from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Directory {
	d := &Directory{
		client:   client,
		prefix:   "synx:dir:",
		capacity: DefaultCapacity,
		owner:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.claimer == nil {
		d.claimer = NewClaimer(client, d.prefix)
	}
	return d
}

func (d *Directory) key(id uint32) string {
	return d.prefix + "entry:" + strconv.FormatUint(uint64(id), 10)
}

func (d *Directory) indexKey() string {
	return d.prefix + "index"
}

func (d *Directory) nextKey() string {
	return d.prefix + "next"
}

func (d *Directory) channel() string {
	return d.prefix + "doorbell"
}

func (d *Directory) inRange(id uint32) error {
	if !domain.IsGlobalID(id) || int(id-domain.GlobalIDBase) >= d.capacity {
		return domain.ErrInvalid
	}
	return nil
}

// Capacity returns the number of slots.
func (d *Directory) Capacity() int {
	return d.capacity
}

// Publish claims a slot, starting from a shared rotating cursor so that
// concurrent publishers rarely race for the same ID.
func (d *Directory) Publish(ctx context.Context, e domain.Entry) (uint32, error) {
	start, err := d.client.Incr(ctx, d.nextKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance directory cursor: %w", err)
	}
	for i := 0; i < d.capacity; i++ {
		idx := (int(start-1) + i) % d.capacity
		id := domain.GlobalIDBase + uint32(idx)

		ok, err := d.claimer.Claim(ctx, id, d.owner)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		values := map[string]any{
			fieldID:          id,
			fieldStatus:      uint32(e.Status),
			fieldRefcount:    e.Refcount,
			fieldChildren:    e.NumChildren,
			fieldSubscribers: e.Subscribers,
			fieldWaiters:     e.Waiters,
			fieldOwner:       uint32(e.Owner),
			fieldGen:         1,
		}
		for p, parent := range e.Parents {
			values[parentField(p)] = parent
		}

		pipe := d.client.TxPipeline()
		pipe.HSet(ctx, d.key(id), values)
		pipe.ZAdd(ctx, d.indexKey(), backend.Z{Score: float64(id), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			_ = d.claimer.Release(ctx, id)
			return 0, fmt.Errorf("failed to publish entry %d: %w", id, err)
		}
		return id, nil
	}
	return 0, domain.ErrNoMem
}

// MirrorSignal applies the status with a compare-and-set script and announces it.
func (d *Directory) MirrorSignal(ctx context.Context, id uint32, status domain.Status) (bool, error) {
	if err := d.inRange(id); err != nil {
		return false, err
	}
	res, err := signalScript.Run(ctx, d.client, []string{d.key(id)}, uint32(status)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to signal entry %d: %w", id, err)
	}
	switch res {
	case -1:
		return false, domain.ErrNoEnt
	case 0:
		return false, nil
	}
	if err := d.client.Publish(ctx, d.channel(), id).Err(); err != nil {
		return true, fmt.Errorf("failed to ring doorbell for %d: %w", id, err)
	}
	return true, nil
}

// Read returns the entry hash as a snapshot.
func (d *Directory) Read(ctx context.Context, id uint32) (domain.Entry, error) {
	if err := d.inRange(id); err != nil {
		return domain.Entry{}, err
	}
	vals, err := d.client.HGetAll(ctx, d.key(id)).Result()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to read entry %d: %w", id, err)
	}
	if len(vals) == 0 {
		return domain.Entry{}, nil
	}
	return decodeEntry(vals), nil
}

func decodeEntry(vals map[string]string) domain.Entry {
	u32 := func(field string) uint32 {
		n, _ := strconv.ParseUint(vals[field], 10, 32)
		return uint32(n)
	}
	gen, _ := strconv.ParseUint(vals[fieldGen], 10, 64)
	e := domain.Entry{
		ID:          u32(fieldID),
		Status:      domain.Status(u32(fieldStatus)),
		Refcount:    u32(fieldRefcount),
		NumChildren: u32(fieldChildren),
		Subscribers: u32(fieldSubscribers),
		Waiters:     u32(fieldWaiters),
		Owner:       domain.DomainID(u32(fieldOwner)),
		Generation:  gen,
	}
	for p := range e.Parents {
		e.Parents[p] = u32(parentField(p))
	}
	return e
}

// Adjust applies counter deltas atomically on the server.
func (d *Directory) Adjust(ctx context.Context, id uint32, delta domain.Delta) (domain.Entry, error) {
	if err := d.inRange(id); err != nil {
		return domain.Entry{}, err
	}
	res, err := adjustScript.Run(ctx, d.client, []string{d.key(id)},
		delta.Refcount, delta.NumChildren, delta.Subscribers, delta.Waiters).Int()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to adjust entry %d: %w", id, err)
	}
	if res == -1 {
		return domain.Entry{}, domain.ErrNoEnt
	}
	return d.Read(ctx, id)
}

// AddParent records parent in the first free parent field.
func (d *Directory) AddParent(ctx context.Context, id, parent uint32) error {
	if err := d.inRange(id); err != nil {
		return err
	}
	res, err := addParentScript.Run(ctx, d.client, []string{d.key(id)}, parent, domain.MaxParents).Int()
	if err != nil {
		return fmt.Errorf("failed to add parent to entry %d: %w", id, err)
	}
	switch res {
	case -1:
		return domain.ErrNoEnt
	case 0:
		return domain.ErrNoMem
	}
	return nil
}

// RemoveParent clears parent from the entry.
func (d *Directory) RemoveParent(ctx context.Context, id, parent uint32) error {
	if err := d.inRange(id); err != nil {
		return err
	}
	res, err := removeParentScript.Run(ctx, d.client, []string{d.key(id)}, parent, domain.MaxParents).Int()
	if err != nil {
		return fmt.Errorf("failed to remove parent from entry %d: %w", id, err)
	}
	if res == -1 {
		return domain.ErrNoEnt
	}
	return nil
}

// SetOwner rewrites the owner field of a claimed entry.
func (d *Directory) SetOwner(ctx context.Context, id uint32, owner domain.DomainID) error {
	if err := d.inRange(id); err != nil {
		return err
	}
	res, err := ownerScript.Run(ctx, d.client, []string{d.key(id)}, uint32(owner)).Int()
	if err != nil {
		return fmt.Errorf("failed to set owner of entry %d: %w", id, err)
	}
	if res == -1 {
		return domain.ErrNoEnt
	}
	return nil
}

// Reclaim deletes the entry, drops it from the index and frees the slot.
func (d *Directory) Reclaim(ctx context.Context, id uint32) error {
	if err := d.inRange(id); err != nil {
		return err
	}
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, d.key(id))
	pipe.ZRem(ctx, d.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reclaim entry %d: %w", id, err)
	}
	return d.claimer.Release(ctx, id)
}

// IDs lists claimed IDs from the index.
func (d *Directory) IDs(ctx context.Context) ([]uint32, error) {
	members, err := d.client.ZRange(ctx, d.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Doorbell subscribes to the status channel. The subscription is confirmed
// before returning so no ring published afterwards is missed.
func (d *Directory) Doorbell(ctx context.Context) (<-chan uint32, error) {
	pubsub := d.client.Subscribe(ctx, d.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to doorbell: %w", err)
	}

	out := make(chan uint32, doorbellBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				n, err := strconv.ParseUint(msg.Payload, 10, 32)
				if err != nil {
					continue
				}
				select {
				case out <- uint32(n):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the redis client.
func (d *Directory) Close() error {
	return d.client.Close()
}
