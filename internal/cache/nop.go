package cache

import "context"

// Nop is a Cache that never hits and never stores. It is injected when
// caching is disabled so the pipeline needs no conditional cache logic.
type Nop struct{}

// Lookup always misses.
func (Nop) Lookup(context.Context, string) (*Hit, error) { return nil, nil }

// Store discards the entry.
func (Nop) Store(context.Context, Entry) error { return nil }

// Clear does nothing.
func (Nop) Clear() {}

// Stats reports an empty cache.
func (Nop) Stats() Stats { return Stats{} }
