package runtime

import "sync"

const shardCount = 16

type shard struct {
	mu sync.RWMutex
	m  map[uint32]*Object
}

// table is a sharded concurrent map from object ID to object. Each operation
// holds one shard lock for a single map access.
type table struct {
	shards [shardCount]shard
}

func newTable() *table {
	t := &table{}
	for i := range t.shards {
		t.shards[i].m = make(map[uint32]*Object)
	}
	return t
}

func (t *table) shard(id uint32) *shard {
	return &t.shards[id%shardCount]
}

func (t *table) get(id uint32) *Object {
	s := t.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[id]
}

// putIfAbsent stores o unless the ID is taken, returning the stored object.
func (t *table) putIfAbsent(id uint32, o *Object) (*Object, bool) {
	s := t.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[id]; ok {
		return cur, false
	}
	s.m[id] = o
	return o, true
}

// remove deletes id only while it still maps to o.
func (t *table) remove(id uint32, o *Object) {
	s := t.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[id] == o {
		delete(s.m, id)
	}
}

// snapshot copies every stored object.
func (t *table) snapshot() []*Object {
	var out []*Object
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for _, o := range s.m {
			out = append(out, o)
		}
		s.mu.RUnlock()
	}
	return out
}

func (t *table) len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
