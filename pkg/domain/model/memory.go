package model

import (
	"time"

	"github.com/reverie-dev/reverie/pkg/domain/types"
)

// Memory is a durable fact owned by the memory backend, keyed by
// assistant. It survives across conversations, is never mutated, and is
// deleted only by explicit call.
type Memory struct {
	ID        types.MemoryID
	Content   string
	Score     float64
	CreatedAt time.Time
	Metadata  map[string]any
}

// RetrievedMemory is the per-turn view over a durable memory. Relevance
// is recomputed on every retrieval call and never persisted.
type RetrievedMemory struct {
	ID        types.MemoryID
	Content   string
	Relevance float64
	CreatedAt time.Time
}

// MemoryStats is the aggregate view exposed for debug/admin use
type MemoryStats struct {
	TotalMemories int
}

// ExtractedMemory is a candidate fact produced by the synthesis stage.
// It is not persisted directly; the orchestrator writes it into the
// backend with provenance metadata.
type ExtractedMemory struct {
	Content    string
	Category   types.MemoryCategory
	Confidence float64
}
