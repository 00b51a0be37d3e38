package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// VectorStore 基于 sqlite 的向量库，相似度在进程内计算
type VectorStore struct {
	db         *sql.DB
	collection string
	size       int
}

// NewVectorStore 打开 sqlite 并建表，path 为 ":memory:" 时使用内存库
func NewVectorStore(path, collection string, size int) (*VectorStore, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 内存库每个连接各自独立
	db.SetMaxOpenConns(1)

	v := &VectorStore{db: db, collection: collection, size: size}
	if err := v.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return v, nil
}

func (v *VectorStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(collection, user_id);
	`
	_, err := v.db.Exec(schema)
	return err
}

// Store 写入一条记忆
func (v *VectorStore) Store(ctx context.Context, userID, content string, vec []float32, metadata map[string]any) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if v.size > 0 && len(vec) != v.size {
		return fmt.Errorf("embedding size %d, want %d", len(vec), v.size)
	}

	embJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = v.db.ExecContext(ctx,
		`INSERT INTO memories (id, collection, user_id, content, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), v.collection, userID, content, string(embJSON), string(metaJSON), time.Now().UTC(),
	)
	return err
}

// Search 返回该用户最相似的 topK 条记忆，按分数降序
func (v *VectorStore) Search(ctx context.Context, userID string, vec []float32, topK int) ([]Hit, error) {
	if topK <= 0 || len(vec) == 0 {
		return nil, nil
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, content, embedding, metadata, created_at FROM memories WHERE collection = ? AND user_id = ?`,
		v.collection, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h        Hit
			embJSON  string
			metaJSON sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.Content, &embJSON, &metaJSON, &h.CreatedAt); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			continue
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &h.Metadata)
		}
		h.Score = cosine(vec, emb)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (v *VectorStore) Ping(ctx context.Context) error {
	return v.db.PingContext(ctx)
}

func (v *VectorStore) Close() error {
	return v.db.Close()
}

// cosine 维度不一致或零向量时返回 0
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
