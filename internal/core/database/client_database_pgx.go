package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/kbchat/internal/config"
	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

// DatabaseClient is a Postgres-backed core.SessionStore. Transcripts
// outlive a server restart but are still reachable only through the
// browser's session cookie.
type DatabaseClient struct {
	db *sql.DB
}

var _ core.SessionStore = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends certificate verification to the URL when a CA bundle is
// configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Create(ctx context.Context, modelID string) (*models.Session, error) {
	s := models.NewSession(modelID)
	const q = `
		INSERT INTO chat_sessions (id, authenticated, model_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := c.db.ExecContext(ctx, q, s.ID, s.Authenticated, s.ModelID, s.CreatedAt, s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (c *DatabaseClient) Get(ctx context.Context, id string) (*models.Session, error) {
	const q = `
		SELECT id, authenticated, model_id, last_exchange, created_at, updated_at
		FROM chat_sessions WHERE id = $1
	`
	var (
		s        models.Session
		exchange []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.Authenticated, &s.ModelID, &exchange, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if len(exchange) > 0 {
		var ex models.Exchange
		if err := json.Unmarshal(exchange, &ex); err != nil {
			return nil, fmt.Errorf("decode last exchange: %w", err)
		}
		s.LastExchange = &ex
	}

	if s.Messages, err = c.messages(ctx, id); err != nil {
		return nil, err
	}
	if s.SourceLocations, err = c.sources(ctx, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) messages(ctx context.Context, sessionID string) ([]models.Turn, error) {
	const q = `
		SELECT id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	out := []models.Turn{}
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) sources(ctx context.Context, sessionID string) ([]string, error) {
	const q = `SELECT uri FROM session_sources WHERE session_id = $1 ORDER BY position ASC`
	rows, err := c.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select sources: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		out = append(out, uri)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkAuthenticated(ctx context.Context, id string) error {
	const q = `UPDATE chat_sessions SET authenticated = TRUE, updated_at = now() WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark authenticated: %w", err)
	}
	return requireRow(res)
}

// AppendTurn inserts the turn after the current last position in one
// transaction; the unique (session_id, position) constraint rejects a racing
// writer instead of reordering history.
func (c *DatabaseClient) AppendTurn(ctx context.Context, id string, turn models.Turn) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch session: %w", err)
	}
	if err := requireRow(res); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO chat_messages (id, session_id, position, role, content, created_at)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3, $4, $5
		FROM chat_messages WHERE session_id = $2
	`
	if _, err := tx.ExecContext(ctx, q, turn.ID, id, string(turn.Role), turn.Content, turn.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

func (c *DatabaseClient) RecordExchange(ctx context.Context, id string, ex models.Exchange) error {
	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_exchange = $2, updated_at = now() WHERE id = $1`, id, payload)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update exchange: %w", err)
	}
	if err := requireRow(res); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO session_sources (session_id, position, uri)
		SELECT $1, COALESCE(MAX(position) + 1, 0), $2
		FROM session_sources WHERE session_id = $1
		ON CONFLICT (session_id, uri) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, uri := range ex.SourceLocations {
		if _, err := stmt.ExecContext(ctx, id, uri); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert source: %w", err)
		}
	}
	return tx.Commit()
}

// Delete drops the session; messages and sources go with it via ON DELETE CASCADE.
func (c *DatabaseClient) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}
