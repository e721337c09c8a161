package knowledge

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/fks-trading/intel/internal/domain"
)

// buildDocFields converts a domain Document into a flat map[string]string for HSET.
func buildDocFields(doc *domain.Document) map[string]string {
	m := map[string]string{
		"title":      doc.Title,
		"content":    doc.Content,
		"doc_type":   string(doc.Type),
		"symbol":     doc.Symbol,
		"timeframe":  doc.Timeframe,
		"created_at": doc.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(doc.Metadata) > 0 {
		if data, err := json.Marshal(doc.Metadata); err == nil {
			m["metadata"] = string(data)
		}
	}
	return m
}

// parseDocFields converts a flat hash map back into a domain Document.
func parseDocFields(id string, m map[string]string) domain.Document {
	doc := domain.Document{
		ID:        id,
		Title:     m["title"],
		Content:   m["content"],
		Type:      domain.DocType(m["doc_type"]),
		Symbol:    m["symbol"],
		Timeframe: m["timeframe"],
	}
	if ts, err := time.Parse(time.RFC3339, m["created_at"]); err == nil {
		doc.CreatedAt = ts
	}
	if raw := m["metadata"]; raw != "" {
		var meta map[string]string
		if json.Unmarshal([]byte(raw), &meta) == nil {
			doc.Metadata = meta
		}
	}
	return doc
}

// buildChunkFields flattens a chunk for HSET. Document-level fields are
// denormalized onto every chunk so search hits need no second lookup.
func buildChunkFields(doc *domain.Document, ch *domain.Chunk) map[string]string {
	m := map[string]string{
		"document_id": doc.ID,
		"chunk_index": strconv.Itoa(ch.Index),
		"content":     ch.Content,
		"token_count": strconv.Itoa(ch.TokenCount),
		"doc_type":    string(doc.Type),
		"title":       doc.Title,
		"symbol":      doc.Symbol,
		"timeframe":   doc.Timeframe,
		"created_at":  doc.CreatedAt.UTC().Format(time.RFC3339),
		"vector":      vectorToBytes(ch.Embedding),
	}
	if len(ch.Metadata) > 0 {
		if data, err := json.Marshal(ch.Metadata); err == nil {
			m["metadata"] = string(data)
		}
	}
	return m
}

// parseChunkFields converts a chunk hash back into a domain Chunk.
func parseChunkFields(id string, m map[string]string) domain.Chunk {
	ch := domain.Chunk{
		ID:         id,
		DocumentID: m["document_id"],
		Content:    m["content"],
		Embedding:  bytesToVector(m["vector"]),
	}
	if idx, err := strconv.Atoi(m["chunk_index"]); err == nil {
		ch.Index = idx
	}
	if n, err := strconv.Atoi(m["token_count"]); err == nil {
		ch.TokenCount = n
	}
	if raw := m["metadata"]; raw != "" {
		var meta map[string]string
		if json.Unmarshal([]byte(raw), &meta) == nil {
			ch.Metadata = meta
		}
	}
	return ch
}

// parseHit converts a KNN search entry into a domain SearchHit.
func parseHit(chunkID string, score float64, fields map[string]string) domain.SearchHit {
	hit := domain.SearchHit{
		ChunkID:    chunkID,
		DocumentID: fields["document_id"],
		Content:    fields["content"],
		DocType:    domain.DocType(fields["doc_type"]),
		Title:      fields["title"],
		Symbol:     fields["symbol"],
		Timeframe:  fields["timeframe"],
		Similarity: score,
	}
	if idx, err := strconv.Atoi(fields["chunk_index"]); err == nil {
		hit.ChunkIndex = idx
	}
	if ts, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		hit.CreatedAt = ts
	}
	return hit
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
