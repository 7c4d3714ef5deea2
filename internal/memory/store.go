// Package memory provides durable long-term memory: short natural-language
// facts about a user, stored permanently and retrieved by semantic
// similarity. Records are write-once; a fact that changes is superseded by
// storing a new record, never by mutating an old one.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	chromem "github.com/philippgille/chromem-go"
)

// DefaultProbe is the retrieval query used when the inbound message has
// no usable text (attachment-only turns).
const DefaultProbe = "user preferences and facts"

// Record is a single stored fact about a user.
type Record struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Embedding []float32 `json:"-"`
}

// Embedder generates a vector for a piece of text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Store persists records in SQLite (the authoritative copy) and indexes
// them in an embedded chromem collection per user for similarity search.
// The vector index is rebuilt from SQLite on startup.
type Store struct {
	db     *sql.DB
	embed  Embedder
	logger *slog.Logger

	vectors     *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewStore opens (or creates) the record database at dbPath and rebuilds
// the vector index from it.
func NewStore(dbPath string, embed Embedder, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:          db,
		embed:       embed,
		logger:      logger,
		vectors:     chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadIndex(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuild vector index: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT,
			embedding TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_user ON records(user_id, created_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// collection returns the chromem collection for a user, creating it on
// first use. Each user gets a dedicated collection so cross-user reads
// are impossible by construction.
func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	col, err := s.vectors.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

// loadIndex replays every stored record into the vector index.
func (s *Store) loadIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, embedding, created_at FROM records
	`)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, userID, content, embeddingStr, createdStr string
		if err := rows.Scan(&id, &userID, &content, &embeddingStr, &createdStr); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingStr), &embedding); err != nil {
			return fmt.Errorf("decode embedding for %s: %w", id, err)
		}

		col, err := s.collection(userID)
		if err != nil {
			return err
		}
		if err := col.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   content,
			Embedding: embedding,
			Metadata:  map[string]string{"user_id": userID, "created_at": createdStr},
		}); err != nil {
			return fmt.Errorf("index record %s: %w", id, err)
		}
		count++
	}
	if count > 0 {
		s.logger.Info("rebuilt memory vector index", "records", count)
	}
	return rows.Err()
}

// Save embeds and stores a new record for the user. Failures are
// reported, never swallowed; a record is only stored with its vector.
func (s *Store) Save(ctx context.Context, userID, content, source string) (*Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("content required")
	}

	embedding, err := s.embed.Generate(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	id, _ := uuid.NewV7()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, user_id, content, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), userID, content, source, string(embeddingJSON), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        id.String(),
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"user_id": userID, "created_at": now.Format(time.RFC3339)},
	}); err != nil {
		return nil, fmt.Errorf("index record: %w", err)
	}

	s.logger.Debug("memory record saved", "user_id", userID, "id", id.String())

	return &Record{
		ID:        id,
		UserID:    userID,
		Content:   content,
		Source:    source,
		CreatedAt: now,
		Embedding: embedding,
	}, nil
}

// Search returns up to k records most similar to the query text, ranked
// by similarity with ties broken by recency. An empty query falls back
// to DefaultProbe. A user with no records yields an empty slice.
func (s *Store) Search(ctx context.Context, userID, query string, k int) ([]Record, error) {
	if k <= 0 {
		k = 4
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultProbe
	}

	embedding, err := s.embed.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection; walk the
	// limit down until the query fits or the collection is empty.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return []Record{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("vector query: %w", err)
	}

	type hit struct {
		record     Record
		similarity float32
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		rec, err := s.get(ctx, r.ID)
		if err != nil {
			s.logger.Warn("indexed record missing from database", "id", r.ID, "error", err)
			continue
		}
		if rec.UserID != userID {
			// Collections are per-user; a foreign record here means
			// corruption, not a near-miss.
			return nil, fmt.Errorf("record %s belongs to another user", r.ID)
		}
		hits = append(hits, hit{record: *rec, similarity: r.Similarity})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].similarity != hits[j].similarity {
			return hits[i].similarity > hits[j].similarity
		}
		return hits[i].record.CreatedAt.After(hits[j].record.CreatedAt)
	})

	records := make([]Record, len(hits))
	for i, h := range hits {
		records[i] = h.record
	}
	return records, nil
}

// List returns every record for the user, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, source, embedding, created_at
		FROM records
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// get loads one record by id.
func (s *Store) get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, source, embedding, created_at
		FROM records WHERE id = ?
	`, id)

	var rec Record
	var idStr, embeddingStr, createdStr string
	var source sql.NullString
	if err := row.Scan(&idStr, &rec.UserID, &rec.Content, &source, &embeddingStr, &createdStr); err != nil {
		return nil, err
	}
	rec.ID, _ = uuid.Parse(idStr)
	if source.Valid {
		rec.Source = source.String
	}
	if err := json.Unmarshal([]byte(embeddingStr), &rec.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &rec, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var rec Record
	var idStr, embeddingStr, createdStr string
	var source sql.NullString

	if err := rows.Scan(&idStr, &rec.UserID, &rec.Content, &source, &embeddingStr, &createdStr); err != nil {
		return nil, err
	}
	rec.ID, _ = uuid.Parse(idStr)
	if source.Valid {
		rec.Source = source.String
	}
	if err := json.Unmarshal([]byte(embeddingStr), &rec.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &rec, nil
}

// isInsufficientDocsError matches chromem's complaint when nResults
// exceeds the number of stored documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
