package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/protocanvas/protocanvas/pkg/models"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		workspace TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		workspace TEXT NOT NULL,
		functionality_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (workspace, functionality_id, seq)
	)`,
}

// SQLStore implements Store on database/sql. Queries are written with "?"
// placeholders and rebound to "$N" for PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens a SQL store. driver is DriverSQLite or DriverPostgres.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	log.Info().Str("driver", driver).Msg("SQL store opened")
	return &SQLStore{db: db, driver: driver}, nil
}

func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ── Document Store ──────────────────────────────────────────

func (s *SQLStore) Load(ctx context.Context, workspace string) (*models.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE workspace = ?`), workspace).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "document", Key: workspace}
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", workspace, err)
	}
	return &doc, nil
}

func (s *SQLStore) Save(ctx context.Context, doc *models.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	query := s.rebind(`
		INSERT INTO documents (workspace, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (workspace) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`)
	if _, err := s.db.ExecContext(ctx, query, doc.ID, string(body), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// ── History Store ───────────────────────────────────────────

func (s *SQLStore) History(ctx context.Context, workspace, functionalityID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT role, content FROM chat_messages
		WHERE workspace = ? AND functionality_id = ?
		ORDER BY seq
	`), workspace, functionalityID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Append writes msgs after the current last message in one transaction so
// a user/assistant pair is never split.
func (s *SQLStore) Append(ctx context.Context, workspace, functionalityID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(MAX(seq), 0) FROM chat_messages WHERE workspace = ? AND functionality_id = ?
	`), workspace, functionalityID).Scan(&last)
	if err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}

	insert := s.rebind(`
		INSERT INTO chat_messages (workspace, functionality_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	now := time.Now().UnixMilli()
	for i, m := range msgs {
		if _, err := tx.ExecContext(ctx, insert, workspace, functionalityID, last+int64(i)+1, m.Role, m.Content, now); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Reset(ctx context.Context, workspace, functionalityID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM chat_messages WHERE workspace = ? AND functionality_id = ?
	`), workspace, functionalityID)
	if err != nil {
		return fmt.Errorf("reset history: %w", err)
	}
	return nil
}
