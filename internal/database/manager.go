package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"counselrelay/pkg/interfaces"
	dbconfig "counselrelay/pkg/database"
	"counselrelay/pkg/types"
)

// ErrManagerClosed is returned by writes after Close
var ErrManagerClosed = errors.New("database manager is closed")

// Manager implements interfaces.RelationshipStore on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine serializes every write,
	// so conditional inserts never interleave
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies pending schema migrations
func (m *Manager) Migrate() error {
	migrations := dbconfig.NewMigrationManager(m.db, dbconfig.MigrationsFS(m.config.MigrationsPath))
	if err := migrations.ApplyMigrations(); err != nil {
		return err
	}
	return migrations.ValidateSchema()
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isBusy(err) {
				// FUNCTIONAL DISCOVERY: Only lock contention is retried, once
				log.Printf("Database write busy, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
			}
			if err != nil && !errors.Is(err, interfaces.ErrRelationshipNotFound) {
				log.Printf("Database write failed: %v", err)
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued the operation runs to completion; the result channel is buffered
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FindRelationship loads a counselor and its students in insertion order
func (m *Manager) FindRelationship(ctx context.Context, counselorID string) (*types.Relationship, error) {
	rel := &types.Relationship{Students: []types.StudentConversation{}}

	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM counselors WHERE id = ?`, counselorID,
	).Scan(&rel.CounselorID, &rel.Name, &rel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("failed to query counselor: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT student_id, last_message_at
		FROM counselor_students
		WHERE counselor_id = ?
		ORDER BY seq ASC
	`, counselorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s types.StudentConversation
		if err := rows.Scan(&s.StudentID, &s.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		rel.Students = append(rel.Students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student rows: %w", err)
	}

	return rel, nil
}

// SaveRelationship upserts the counselor row and inserts students not yet stored
func (m *Manager) SaveRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil || rel.CounselorID == "" {
		return fmt.Errorf("relationship requires a counselor id")
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		createdAt := rel.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO counselors (id, name, created_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`, rel.CounselorID, rel.Name, createdAt)
		if err != nil {
			return fmt.Errorf("failed to upsert counselor: %w", err)
		}

		for _, s := range rel.Students {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO counselor_students (counselor_id, student_id, last_message_at)
				VALUES (?, ?, ?)
				ON CONFLICT(counselor_id, student_id) DO NOTHING
			`, rel.CounselorID, s.StudentID, s.LastMessageAt)
			if err != nil {
				return fmt.Errorf("failed to insert student %s: %w", s.StudentID, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit relationship: %w", err)
		}
		return nil
	})
}

// AddStudentIfAbsent is the atomic conditional insert behind first-contact bootstrap
func (m *Manager) AddStudentIfAbsent(ctx context.Context, counselorID, studentID string, at time.Time) (bool, error) {
	var added bool

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		added = false

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM counselors WHERE id = ?`, counselorID,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to query counselor: %w", err)
		}
		if count == 0 {
			return interfaces.ErrRelationshipNotFound
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO counselor_students (counselor_id, student_id, last_message_at)
			VALUES (?, ?, ?)
		`, counselorID, studentID, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert student: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit student insert: %w", err)
		}
		added = affected == 1
		return nil
	})

	return added, err
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM counselors").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer goroutine and the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
