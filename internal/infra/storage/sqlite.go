package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/i18n"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	voice_id      TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	relationship  TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL DEFAULT '',
	created_ts    INTEGER NOT NULL,
	updated_ts    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_history (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_agent ON chat_history (agent_id, seq);
`

// SQLiteStore is an agents.Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ agents.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one writer keeps ":memory:" on a single connection and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *agents.Agent) error {
	stmt := `INSERT INTO agent (id, name, description, system_prompt, voice_id, avatar_url, relationship, language, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		a.ID, a.Name, a.Description, a.SystemPrompt, a.VoiceID, a.AvatarURL, a.Relationship, string(a.Language),
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
	); err != nil {
		return errors.Wrap(err, "failed to create agent")
	}
	return nil
}

const agentColumns = `id, name, description, system_prompt, voice_id, avatar_url, relationship, language, created_ts, updated_ts`

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agent ORDER BY created_ts ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query agents")
	}
	defer rows.Close()

	list := make([]*agents.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate agents")
	}
	return list, nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agent WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agents.ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *agents.Agent) error {
	set := []string{
		"name = ?", "description = ?", "system_prompt = ?", "voice_id = ?",
		"avatar_url = ?", "relationship = ?", "language = ?", "updated_ts = ?",
	}
	args := []any{
		a.Name, a.Description, a.SystemPrompt, a.VoiceID,
		a.AvatarURL, a.Relationship, string(a.Language), a.UpdatedAt.UnixMilli(),
		a.ID,
	}
	res, err := s.db.ExecContext(ctx, `UPDATE agent SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update agent")
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM agent WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete agent")
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_history WHERE agent_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete agent history")
	}
	return errors.Wrap(tx.Commit(), "commit delete")
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, agentID string, e agents.HistoryEntry) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, agent_id, role, content, created_ts) VALUES (?, ?, ?, ?, ?)`,
		e.ID, agentID, e.Role, e.Content, e.Timestamp.UnixMilli(),
	); err != nil {
		return errors.Wrap(err, "failed to append history")
	}
	return nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, agentID string, limit int) ([]agents.HistoryEntry, error) {
	query := `SELECT id, role, content, created_ts FROM chat_history WHERE agent_id = ? ORDER BY seq ASC`
	args := []any{agentID}
	if limit > 0 {
		query = `SELECT id, role, content, created_ts FROM (
			SELECT seq, id, role, content, created_ts FROM chat_history WHERE agent_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query history")
	}
	defer rows.Close()

	list := make([]agents.HistoryEntry, 0)
	for rows.Next() {
		var e agents.HistoryEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.Role, &e.Content, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan history")
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		list = append(list, e)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate history")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*agents.Agent, error) {
	var a agents.Agent
	var lang string
	var created, updated int64
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.SystemPrompt, &a.VoiceID, &a.AvatarURL,
		&a.Relationship, &lang, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan agent")
	}
	a.Language = i18n.Language(lang)
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return &a, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return agents.ErrNotFound
	}
	return nil
}
