// Package knowledge persists documents and their chunks in Redis hashes
// and serves KNN vector search over the chunk index.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/db"
	"github.com/fks-trading/intel/internal/domain"
)

// store is the consumer interface for the knowledge base (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo implements the knowledge base over a Redis store.
type Repo struct {
	store  store
	prefix string
	dim    int
	logger *zap.Logger
}

// New creates a knowledge repository. All keys are namespaced under prefix.
func New(s store, prefix string, logger *zap.Logger) *Repo {
	return &Repo{store: s, prefix: prefix, logger: logger}
}

var searchReturnFields = []string{
	"document_id", "chunk_index", "content", "doc_type",
	"title", "symbol", "timeframe", "created_at", "__vector_score",
}

// EnsureIndex creates the chunk FT index if absent. Safe to call at
// every startup. If the index already exists with a different vector
// dimension the collection would mix incompatible embeddings, so this
// fails with ErrDimensionMismatch instead of proceeding.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	def := &db.IndexDefinition{
		Name:        r.indexName(),
		StorageType: db.StorageHash,
		Prefixes:    []string{r.prefix + "chunk:"},
		Fields: []db.IndexField{
			{Name: "doc_type", Type: db.IndexFieldTag},
			{Name: "symbol", Type: db.IndexFieldTag},
			{Name: "timeframe", Type: db.IndexFieldTag},
			{
				Name:           "vector",
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorHNSW,
				VectorDim:      dim,
				VectorDistance: db.DistanceCosine,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}

	err := r.store.CreateIndex(ctx, def)
	switch {
	case err == nil:
		if err := r.store.Set(ctx, r.dimKey(), []byte(strconv.Itoa(dim))); err != nil {
			return fmt.Errorf("record index dimension: %w", err)
		}
	case errors.Is(err, db.ErrIndexExists):
		existing, err := r.indexDim(ctx)
		if err != nil {
			return err
		}
		if existing == 0 {
			// Index predates the dimension marker. Backfill it.
			if err := r.store.Set(ctx, r.dimKey(), []byte(strconv.Itoa(dim))); err != nil {
				return fmt.Errorf("record index dimension: %w", err)
			}
		} else if existing != dim {
			return fmt.Errorf("index %s holds %d-dim vectors, configured for %d: %w",
				def.Name, existing, dim, domain.ErrDimensionMismatch)
		}
	default:
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}

	r.dim = dim
	return nil
}

// indexDim reads the recorded vector dimension, 0 when none is recorded.
func (r *Repo) indexDim(ctx context.Context) (int, error) {
	raw, err := r.store.Get(ctx, r.dimKey())
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read index dimension: %w", err)
	}
	dim, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("parse index dimension %q: %w", raw, err)
	}
	return dim, nil
}

// SaveDocument stores the document and all of its chunks. Chunks are
// written in a single pipelined round-trip. A chunk carrying a vector
// of a different length than the index dimension is rejected; a chunk
// with no embedding yet is stored but not searchable.
func (r *Repo) SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if r.dim > 0 {
		for i := range chunks {
			if n := len(chunks[i].Embedding); n != 0 && n != r.dim {
				return fmt.Errorf("chunk %d of document %s has a %d-dim vector, index holds %d: %w",
					chunks[i].Index, doc.ID, n, r.dim, domain.ErrDimensionMismatch)
			}
		}
	}

	if err := r.store.HSet(ctx, r.docKey(doc.ID), buildDocFields(doc)); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].ID = chunkID(doc.ID, chunks[i].Index)
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(chunks[i].ID),
			Fields: buildChunkFields(doc, &chunks[i]),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("save chunks for %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (r *Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return parseDocFields(id, m), nil
}

// GetChunk returns a chunk by ID.
func (r *Repo) GetChunk(ctx context.Context, id string) (domain.Chunk, error) {
	m, err := r.store.HGetAll(ctx, r.chunkKey(id))
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("get chunk %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Chunk{}, domain.ErrChunkNotFound
	}
	return parseChunkFields(id, m), nil
}

// DeleteDocument removes a document and cascades to its chunks.
func (r *Repo) DeleteDocument(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, r.docKey(id))
	if err != nil {
		return fmt.Errorf("check document %s: %w", id, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	chunkKeys, err := r.store.Scan(ctx, r.chunkKey(id)+":*")
	if err != nil {
		return fmt.Errorf("scan chunks of %s: %w", id, err)
	}
	if err := r.store.DelMulti(ctx, chunkKeys); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", id, err)
	}

	if err := r.store.Del(ctx, r.docKey(id)); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Search runs a KNN query over chunks and keeps hits at or above floor.
// Storage failures degrade to an empty result set.
func (r *Repo) Search(
	ctx context.Context, vector []float32, k int, floor float64, filters domain.Filters,
) []domain.SearchHit {
	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Filters:      filterMap(filters),
		Vector:       vector,
		K:            k,
		ReturnFields: searchReturnFields,
	})
	if err != nil {
		r.logger.Error("knn search failed, returning no context", zap.Error(err))
		return nil
	}

	hits := make([]domain.SearchHit, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if entry.Score < floor {
			continue
		}
		id := strings.TrimPrefix(entry.Key, r.prefix+"chunk:")
		hits = append(hits, parseHit(id, entry.Score, entry.Fields))
	}
	return hits
}

// FindSimilar returns the chunks most similar to the given chunk,
// excluding the chunk itself.
func (r *Repo) FindSimilar(ctx context.Context, id string, limit int) ([]domain.SearchHit, error) {
	ch, err := r.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(ch.Embedding) == 0 {
		return nil, fmt.Errorf("chunk %s has no embedding: %w", id, domain.ErrChunkNotFound)
	}

	// Over-fetch by one: the source chunk is its own nearest neighbor.
	hits := r.Search(ctx, ch.Embedding, limit+1, 0, domain.Filters{})
	out := make([]domain.SearchHit, 0, limit)
	for _, hit := range hits {
		if hit.ChunkID == id {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountChunks returns the number of indexed chunks.
func (r *Repo) CountChunks(ctx context.Context) (int, error) {
	return r.store.SearchCount(ctx, r.indexName(), "*")
}

// MarkTradeIngested records that a trade has been turned into a document.
func (r *Repo) MarkTradeIngested(ctx context.Context, tradeID string) error {
	if err := r.store.Set(ctx, r.tradeKey(tradeID), []byte("1")); err != nil {
		return fmt.Errorf("mark trade %s: %w", tradeID, err)
	}
	return nil
}

// TradeIngested reports whether a trade was already ingested.
func (r *Repo) TradeIngested(ctx context.Context, tradeID string) (bool, error) {
	_, err := r.store.Get(ctx, r.tradeKey(tradeID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check trade %s: %w", tradeID, err)
	}
	return true, nil
}

func filterMap(f domain.Filters) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	m := make(map[string]string, 3)
	if f.Symbol != "" {
		m["symbol"] = f.Symbol
	}
	if f.DocType != "" {
		m["doc_type"] = string(f.DocType)
	}
	if f.Timeframe != "" {
		m["timeframe"] = f.Timeframe
	}
	return m
}

func chunkID(docID string, index int) string {
	return fmt.Sprintf("%s:%d", docID, index)
}

func (r *Repo) docKey(id string) string {
	return r.prefix + "doc:" + id
}

func (r *Repo) chunkKey(id string) string {
	return r.prefix + "chunk:" + id
}

func (r *Repo) tradeKey(tradeID string) string {
	return r.prefix + "ingested:trade:" + tradeID
}

func (r *Repo) indexName() string {
	return r.prefix + "chunks:idx"
}

func (r *Repo) dimKey() string {
	return r.prefix + "chunks:dim"
}
