package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// UsageRecord is one completion call's token accounting.
type UsageRecord struct {
	TS               int64  `json:"ts"`
	RequestID        string `json:"request_id"`
	Model            string `json:"model"`
	Kind             string `json:"kind"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	DurationMs       int64  `json:"duration_ms"`
	Success          bool   `json:"success"`
	ErrorMessage     string `json:"error_message,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// AnalysisRecord is one orchestration run as seen by the caller.
type AnalysisRecord struct {
	RequestID string `json:"request_id"`
	TS        int64  `json:"ts"`
	Code      string `json:"code"`
	Market    string `json:"market"`
	Kind      string `json:"kind"`
	Model     string `json:"model"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// UsageStats aggregates UsageRecords over a window.
type UsageStats struct {
	Requests         int64 `json:"requests"`
	Failures         int64 `json:"failures"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/app.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS llm_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			request_id TEXT,
			model TEXT,
			kind TEXT,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			total_tokens INTEGER,
			duration_ms INTEGER,
			success INTEGER,
			error_message TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_llm_usage_ts ON llm_usage(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_llm_usage_model ON llm_usage(model);`,
		`CREATE TABLE IF NOT EXISTS analysis_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT,
			ts INTEGER NOT NULL,
			code TEXT,
			market TEXT,
			kind TEXT,
			model TEXT,
			source TEXT,
			status TEXT,
			error TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_ts ON analysis_records(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_code ON analysis_records(code);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertUsage(u UsageRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO llm_usage (ts, request_id, model, kind, prompt_tokens, completion_tokens, total_tokens, duration_ms, success, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.TS, u.RequestID, u.Model, u.Kind, u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.DurationMs, boolToInt(u.Success), u.ErrorMessage, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *Store) InsertAnalysis(a AnalysisRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO analysis_records (request_id, ts, code, market, kind, model, source, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.TS, a.Code, a.Market, a.Kind, a.Model, a.Source, a.Status, a.Error, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *Store) UsageStats(days int) (UsageStats, error) {
	if s == nil || s.db == nil {
		return UsageStats{}, fmt.Errorf("store not initialized")
	}
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).Unix()
	row := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		 FROM llm_usage WHERE ts >= ?`,
		since,
	)
	var st UsageStats
	if err := row.Scan(&st.Requests, &st.Failures, &st.PromptTokens, &st.CompletionTokens, &st.TotalTokens); err != nil {
		return UsageStats{}, fmt.Errorf("usage stats: %w", err)
	}
	return st, nil
}

func (s *Store) RecentAnalyses(limit int) ([]AnalysisRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT request_id, ts, code, market, kind, model, source, status, error, created_at
		 FROM analysis_records ORDER BY ts DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	out := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		var a AnalysisRecord
		if err := rows.Scan(&a.RequestID, &a.TS, &a.Code, &a.Market, &a.Kind, &a.Model, &a.Source, &a.Status, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
