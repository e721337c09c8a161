package domain

import "time"

// QueryResponse is the caller-facing result of a knowledge-base query.
// It is always structurally valid: subsystem failures degrade the answer
// text and empty the sources, they never surface as errors.
type QueryResponse struct {
	Answer         string
	Sources        []SearchHit
	ContextUsed    int
	ResponseTimeMS int64
	Timestamp      time.Time
}

// RetrievedChunk records one chunk hit inside a query audit record.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	Similarity float64 `json:"similarity"`
	DocType    DocType `json:"doc_type"`
}

// QueryRecord is the audit log entry written once per query call.
// Created once, never mutated.
type QueryRecord struct {
	ID             string           `json:"id"`
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	Chunks         []RetrievedChunk `json:"chunks"`
	Model          string           `json:"model"`
	ResponseTimeMS int64            `json:"response_time_ms"`
	CreatedAt      time.Time        `json:"created_at"`
}
