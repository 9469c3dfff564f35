// Package history 持久化索引迁移的执行记录
//
// 记录仅用于运维排查（哪次运行应用了哪些迁移、在哪个迁移失败、
// Finalize 删除了哪些索引），迁移是否已应用仍以索引名中的标识为准。
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind 事件类型
type Kind string

const (
	KindApplied   Kind = "applied"
	KindFailed    Kind = "failed"
	KindFinalized Kind = "finalized"
)

// Event 一条执行记录
type Event struct {
	ID          int64         `json:"id"`
	Kind        Kind          `json:"kind"`
	MigrationID int64         `json:"migration_id,omitempty"`
	Name        string        `json:"name,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Duration    time.Duration `json:"duration"`
	Host        string        `json:"host"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store SQLite 执行记录存储
type Store struct {
	db   *sql.DB
	host string
	now  func() time.Time
}

// Open 打开（必要时创建）执行记录数据库并升级到最新表结构
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	_, _ = db.Exec("PRAGMA synchronous=NORMAL")

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	host, _ := os.Hostname()
	return &Store{db: db, host: host, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) insert(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_events (kind, migration_id, name, detail, duration_ms, host, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.MigrationID, e.Name, e.Detail, e.Duration.Milliseconds(), s.host, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", e.Kind, err)
	}
	return nil
}

// RecordApplied 记录成功应用的迁移
func (s *Store) RecordApplied(ctx context.Context, id int64, name string, elapsed time.Duration) error {
	return s.insert(ctx, Event{Kind: KindApplied, MigrationID: id, Name: name, Duration: elapsed})
}

// RecordFailed 记录失败的迁移及原因
func (s *Store) RecordFailed(ctx context.Context, id int64, name string, cause error, elapsed time.Duration) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return s.insert(ctx, Event{Kind: KindFailed, MigrationID: id, Name: name, Detail: detail, Duration: elapsed})
}

// RecordFinalized 记录 Finalize 删除成功与失败的索引
func (s *Store) RecordFinalized(ctx context.Context, deleted, failed []string) error {
	detail := "deleted=" + strings.Join(deleted, ",")
	if len(failed) > 0 {
		detail += " failed=" + strings.Join(failed, ",")
	}
	return s.insert(ctx, Event{Kind: KindFinalized, Detail: detail})
}

// Recent 返回最近的 limit 条记录，最新的在前
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, migration_id, name, detail, duration_ms, host, created_at
		 FROM migration_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			kind       string
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.MigrationID, &e.Name, &e.Detail, &durationMs, &e.Host, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Kind = Kind(kind)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
