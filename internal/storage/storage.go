// Package storage defines the key-value medium the store persists to.
package storage

// KV is the persistence contract: string keys, JSON-serialized string values.
// Get returns ok=false when the key has never been written.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Memory is an in-process KV used by tests and headless consumers.
type Memory struct {
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	delete(m.values, key)
	return nil
}
