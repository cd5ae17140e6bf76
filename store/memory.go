package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is a single-process Store used for local development without a
// Redis instance and for tests. TTLs are enforced with in-process timers
// that feed the same expiry channel the Redis backend exposes.
type Memory struct {
	mu     sync.Mutex
	kv     map[string]string
	timers map[string]*time.Timer
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}

	expired chan string
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		kv:      make(map[string]string),
		timers:  make(map[string]*time.Timer),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expired: make(chan string, 64),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.kv[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	m.resetTimer(key, ttl)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	m.resetTimer(key, ttl)
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.stopTimer(key)
		delete(m.kv, key)
		delete(m.hashes, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return true, nil
	}
	if _, ok := m.hashes[key]; ok {
		return true, nil
	}
	_, ok := m.sets[key]
	return ok, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash(key)[field] = value
	return nil
}

func (m *Memory) HSetNX(_ context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	if _, ok := h[field]; ok {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for field, val := range m.hashes[key] {
		out[field] = val
	}
	return out, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, field := range fields {
		delete(m.hashes[key], field)
	}
	if len(m.hashes[key]) == 0 {
		delete(m.hashes, key)
	}
	return nil
}

func (m *Memory) HKeys(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := make([]string, 0, len(m.hashes[key]))
	for field := range m.hashes[key] {
		fields = append(fields, field)
	}
	return fields, nil
}

func (m *Memory) HLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.hashes[key])), nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, incr int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(key)
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += incr
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	if len(m.sets[key]) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[key])), nil
}

func (m *Memory) Expirations() <-chan string {
	return m.expired
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
	close(m.expired)
	return nil
}

// hash returns the map for key, creating it if needed. Callers hold mu.
func (m *Memory) hash(key string) map[string]string {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	return h
}

// resetTimer arms (or disarms) the expiry timer for key. Callers hold mu.
func (m *Memory) resetTimer(key string, ttl time.Duration) {
	m.stopTimer(key)
	if ttl <= 0 {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(ttl, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// A Set or Del since arming replaces the timer; only the live one fires.
		if m.timers[key] != t || m.closed {
			return
		}
		delete(m.timers, key)
		delete(m.kv, key)
		select {
		case m.expired <- key:
		default:
		}
	})
	m.timers[key] = t
}

func (m *Memory) stopTimer(key string) {
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
}
