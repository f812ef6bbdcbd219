package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store. It holds marshaled values in a map guarded
// by a RWMutex; Update callbacks run under the write lock so every
// read-modify-write is linearized.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// View runs fn against a read-only view of the store
func (m *Memory) View(fn func(Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{data: m.data, readOnly: true})
}

// Update runs fn with buffered writes and commits them only if fn returns nil
func (m *Memory) Update(fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{data: m.data, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		m.data[k] = v
	}
	return nil
}

// Close releases the store
func (m *Memory) Close() error {
	return nil
}

type memTx struct {
	data     map[string][]byte
	writes   map[string][]byte
	readOnly bool
}

func (t *memTx) Get(key string, into interface{}) error {
	if t.writes != nil {
		if raw, ok := t.writes[key]; ok {
			return json.Unmarshal(raw, into)
		}
	}
	raw, ok := t.data[key]
	if !ok {
		return ErrKeyNotFound
	}
	return json.Unmarshal(raw, into)
}

func (t *memTx) Put(key string, value interface{}) error {
	if t.readOnly {
		return fmt.Errorf("store: put %q in read-only transaction", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal %q: %w", key, err)
	}
	t.writes[key] = raw
	return nil
}

func (t *memTx) Has(key string) (bool, error) {
	if t.writes != nil {
		if _, ok := t.writes[key]; ok {
			return true, nil
		}
	}
	_, ok := t.data[key]
	return ok, nil
}

func (t *memTx) Scan(prefix string, fn func(key string, value []byte) error) error {
	keys := make([]string, 0)
	for k := range t.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if t.writes != nil {
		for k := range t.writes {
			if _, shadowed := t.data[k]; !shadowed && strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, ok := []byte(nil), false
		if t.writes != nil {
			raw, ok = t.writes[k]
		}
		if !ok {
			raw = t.data[k]
		}
		if err := fn(k, raw); err != nil {
			return err
		}
	}
	return nil
}
