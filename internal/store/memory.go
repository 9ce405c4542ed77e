package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/ZanzyTHEbar/concrete-go"
)

// Memory keeps messages in a map. With a TTL, messages expire and a
// background loop removes them until Close.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

type memoryItem struct {
	msg        concrete.Message
	expiration int64
}

// NewMemory creates an in-memory store. A zero ttl keeps messages forever.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanupLoop(ttl)
	}
	return m
}

func (m *Memory) expired(it memoryItem, now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// SaveMessage implements concrete.MessageStore.
func (m *Memory) SaveMessage(ctx context.Context, msg concrete.Message) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}
	if err := validate(msg); err != nil {
		return err
	}

	var expiration int64
	if m.ttl > 0 {
		expiration = time.Now().Add(m.ttl).UnixNano()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[msg.ID] = memoryItem{msg: msg, expiration: expiration}
	return nil
}

// GetMessage returns the message with id.
func (m *Memory) GetMessage(ctx context.Context, id string) (concrete.Message, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return concrete.Message{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	it, found := m.items[id]
	if !found {
		return concrete.Message{}, fmt.Errorf("%w: %w", ErrNotFound, errbuilder.NotFoundErr(errbuilder.GenericErr("message not found", nil)))
	}
	if m.expired(it, time.Now().UnixNano()) {
		return concrete.Message{}, fmt.Errorf("%w: %w", ErrNotFound, errbuilder.NotFoundErr(errbuilder.GenericErr("message expired", nil)))
	}
	return it.msg, nil
}

// ListMessages implements concrete.MessageStore. Messages are returned in
// creation order.
func (m *Memory) ListMessages(ctx context.Context, operatorID string) ([]concrete.Message, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	now := time.Now().UnixNano()
	m.mu.RLock()
	var out []concrete.Message
	for _, it := range m.items {
		if it.msg.OperatorID == operatorID && !m.expired(it, now) {
			out = append(out, it.msg)
		}
	}
	m.mu.RUnlock()
	sortByTime(out)
	return out, nil
}

// Close stops the cleanup loop.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UnixNano()
	for id, it := range m.items {
		if m.expired(it, now) {
			delete(m.items, id)
		}
	}
}
