// Package resolve computes final qualified table names and tag sets for
// models from layered configuration sources, and holds the resulting name
// map consumed by ref()/source() during rendering.
package resolve

import "sync"

// NameMap maps model names and (source, table) pairs to qualified
// schema.table identifiers. It is built during Phase 1 of an import run and
// frozen before any rendering starts; lookups after Freeze are lock-free.
type NameMap struct {
	mu     sync.Mutex
	frozen bool

	models  map[string]string
	sources map[[2]string]string
}

// NewNameMap creates an empty name map.
func NewNameMap() *NameMap {
	return &NameMap{
		models:  make(map[string]string),
		sources: make(map[[2]string]string),
	}
}

// SetModel records a model's qualified relation. Panics if called after
// Freeze: no model's render may mutate the map.
func (m *NameMap) SetModel(name, relation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		panic("resolve: NameMap mutated after freeze")
	}
	m.models[name] = relation
}

// SetSource records a source table's qualified relation.
func (m *NameMap) SetSource(sourceName, tableName, relation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		panic("resolve: NameMap mutated after freeze")
	}
	m.sources[[2]string{sourceName, tableName}] = relation
}

// Freeze marks the map read-only. Called once at the Phase 1/Phase 2 barrier.
func (m *NameMap) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Model looks up a model's relation.
func (m *NameMap) Model(name string) (string, bool) {
	rel, ok := m.models[name]
	return rel, ok
}

// Source looks up a source table's relation.
func (m *NameMap) Source(sourceName, tableName string) (string, bool) {
	rel, ok := m.sources[[2]string{sourceName, tableName}]
	return rel, ok
}

// Len returns the number of model entries.
func (m *NameMap) Len() int {
	return len(m.models)
}
