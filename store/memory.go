package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process DocumentStore. Notifications are delivered on one
// goroutine per subscription and coalesce to the latest version.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]Document
	subs    map[string]map[int]*memorySub
	nextSub int
}

type memorySub struct {
	notify chan struct{}
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string]map[int]*memorySub),
	}
}

func (m *MemoryStore) Create(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	norm, err := normalizeDocument(doc)
	if err != nil {
		return fmt.Errorf("create %s: %w", key(collection, id), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(collection, id)
	m.docs[k] = norm
	m.notifyLocked(k)
	return nil
}

func (m *MemoryStore) ReadOnce(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key(collection, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *MemoryStore) WritePartial(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized := make(map[string]any, len(fields))
	for path, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("write %s.%s: %w", key(collection, id), path, err)
		}
		if _, err := splitPath(path); err != nil {
			return err
		}
		normalized[path] = nv
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(collection, id)
	doc, ok := m.docs[k]
	if !ok {
		return ErrNotFound
	}
	for path, v := range normalized {
		if err := setPath(doc, path, v); err != nil {
			return err
		}
	}
	m.notifyLocked(k)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection, id string, onChange func(Document), onError func(error)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		notify: make(chan struct{}, 1),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	k := key(collection, id)
	m.mu.Lock()
	subID := m.nextSub
	m.nextSub++
	if m.subs[k] == nil {
		m.subs[k] = make(map[int]*memorySub)
	}
	m.subs[k][subID] = sub
	m.mu.Unlock()

	// deliver the current document first
	sub.notify <- struct{}{}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case err := <-sub.errs:
				select {
				case <-sub.done:
				default:
					onError(err)
				}
				return
			case <-sub.notify:
				m.mu.Lock()
				doc, ok := m.docs[k]
				if ok {
					doc = cloneDocument(doc)
				}
				m.mu.Unlock()
				if !ok {
					continue
				}
				select {
				case <-sub.done:
					return
				default:
					onChange(doc)
				}
			}
		}
	}()

	return func() {
		sub.once.Do(func() {
			close(sub.done)
			m.mu.Lock()
			delete(m.subs[k], subID)
			m.mu.Unlock()
		})
	}, nil
}

// Disconnect fails every live subscription on the document with err. It simulates
// a broken change-notification stream.
func (m *MemoryStore) Disconnect(collection, id string, err error) {
	k := key(collection, id)
	m.mu.Lock()
	defer m.mu.Unlock()
	for subID, sub := range m.subs[k] {
		select {
		case sub.errs <- err:
		default:
		}
		delete(m.subs[k], subID)
	}
}

func (m *MemoryStore) notifyLocked(k string) {
	for _, sub := range m.subs[k] {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}
