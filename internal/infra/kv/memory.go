package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and single-binary dev runs.
// Thread-safe via RWMutex; expired keys are reaped lazily on access.
type Memory struct {
	mu     sync.RWMutex
	kv     map[string]memEntry
	zsets  map[string]map[string]int64 // key → member → score
	closed bool

	// Injectable clock for testing.
	now func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:    make(map[string]memEntry),
		zsets: make(map[string]map[string]int64),
		now:   time.Now,
	}
}

// SetClock overrides the store clock. Test use only.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

// Get returns the value at key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	e, ok := m.kv[key]
	if !ok || m.expired(e) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set writes key unconditionally.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(key, value, ttl)
	return nil
}

func (m *Memory) setLocked(key, value string, ttl time.Duration) {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.kv[key] = e
}

// SetNX writes key only if absent. Returns true when the write happened.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if e, ok := m.kv[key]; ok && !m.expired(e) {
		return false, nil
	}
	m.setLocked(key, value, ttl)
	return true, nil
}

// Del removes a key.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.kv, key)
	return nil
}

// Incr atomically increments an integer counter, creating it at 1.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.incrLocked(key, ttl), nil
}

func (m *Memory) incrLocked(key string, ttl time.Duration) int64 {
	var n int64
	if e, ok := m.kv[key]; ok && !m.expired(e) {
		n, _ = strconv.ParseInt(e.value, 10, 64)
		n++
		// Preserve the window expiry set at creation.
		m.kv[key] = memEntry{value: strconv.FormatInt(n, 10), expiresAt: e.expiresAt}
		return n
	}
	n = 1
	m.setLocked(key, "1", ttl)
	return n
}

// ZAdd adds or updates a member in a sorted set.
func (m *Memory) ZAdd(_ context.Context, key string, mem Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.zaddLocked(key, mem)
	return nil
}

func (m *Memory) zaddLocked(key string, mem Member) {
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]int64)
		m.zsets[key] = set
	}
	set[mem.Member] = mem.Score
}

// ZRem removes a member from a sorted set.
func (m *Memory) ZRem(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.zsets[key], member)
	return nil
}

// ZRange returns members ordered by score.
func (m *Memory) ZRange(_ context.Context, key string, start, stop int64, rev bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return rangeMembers(m.zsets[key], start, stop, rev), nil
}

func rangeMembers(set map[string]int64, start, stop int64, rev bool) []string {
	members := make([]Member, 0, len(set))
	for mem, score := range set {
		members = append(members, Member{Member: mem, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			if rev {
				return members[i].Score > members[j].Score
			}
			return members[i].Score < members[j].Score
		}
		// Deterministic tiebreak on member name.
		if rev {
			return members[i].Member > members[j].Member
		}
		return members[i].Member < members[j].Member
	})

	n := int64(len(members))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]string, 0, stop-start+1)
	for _, mem := range members[start : stop+1] {
		out = append(out, mem.Member)
	}
	return out
}

// ZCard returns the set cardinality.
func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.zsets[key])), nil
}

// ZCount returns the number of members with score >= min.
func (m *Memory) ZCount(_ context.Context, key string, min int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, score := range m.zsets[key] {
		if score >= min {
			n++
		}
	}
	return n, nil
}

// Pipeline starts a write batch.
func (m *Memory) Pipeline() Batch {
	return &memoryBatch{store: m}
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ─── Batch ──────────────────────────────────────────────────────────────────

type batchOp struct {
	kind   string // "set", "del", "incr", "zadd", "zrem"
	key    string
	value  string
	ttl    time.Duration
	member Member
}

type memoryBatch struct {
	store *Memory
	ops   []batchOp
}

func (b *memoryBatch) Set(key, value string, ttl time.Duration) {
	b.ops = append(b.ops, batchOp{kind: "set", key: key, value: value, ttl: ttl})
}

func (b *memoryBatch) Del(key string) {
	b.ops = append(b.ops, batchOp{kind: "del", key: key})
}

func (b *memoryBatch) Incr(key string) {
	b.ops = append(b.ops, batchOp{kind: "incr", key: key})
}

func (b *memoryBatch) ZAdd(key string, m Member) {
	b.ops = append(b.ops, batchOp{kind: "zadd", key: key, member: m})
}

func (b *memoryBatch) ZRem(key, member string) {
	b.ops = append(b.ops, batchOp{kind: "zrem", key: key, member: Member{Member: member}})
}

// Exec applies every queued write under one lock acquisition.
func (b *memoryBatch) Exec(_ context.Context) error {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, op := range b.ops {
		switch op.kind {
		case "set":
			m.setLocked(op.key, op.value, op.ttl)
		case "del":
			delete(m.kv, op.key)
		case "incr":
			m.incrLocked(op.key, 0)
		case "zadd":
			m.zaddLocked(op.key, op.member)
		case "zrem":
			delete(m.zsets[op.key], op.member.Member)
		}
	}
	b.ops = nil
	return nil
}
