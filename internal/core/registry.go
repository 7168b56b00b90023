package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]*CategorySchema)
	registryMu sync.RWMutex
)

// RegisterCategory adds a category schema to the registry.
// Panics if a schema with the same key is already registered.
func RegisterCategory(schema *CategorySchema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Key]; exists {
		panic(fmt.Sprintf("category already registered: %s", schema.Key))
	}
	if schema.Table == "" {
		schema.Table = schema.Key
	}

	registry[schema.Key] = schema
}

// Category returns a schema by key.
// Returns false if not found.
func Category(key string) (*CategorySchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schema, ok := registry[key]
	return schema, ok
}

// Categories returns all registered schemas sorted by key.
func Categories() []*CategorySchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*CategorySchema, 0, len(registry))
	for _, schema := range registry {
		result = append(result, schema)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}
