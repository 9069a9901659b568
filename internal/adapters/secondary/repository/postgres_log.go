package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	media_url  TEXT NOT NULL DEFAULT '',
	ts         BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_sort_idx ON posts (ts DESC, id DESC);

CREATE TABLE IF NOT EXISTS feed_entries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	operation  TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	ts         BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_entries_sort_idx ON feed_entries (ts DESC, id DESC);
`

// DB est la partie de *pgxpool.Pool dont les journaux ont besoin.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// EnsureSchema crée les deux journaux et leur index de tri.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, schema)
	return err
}

// PostgresPostLog est le journal Posts du compte.
type PostgresPostLog struct {
	db DB
}

func NewPostgresPostLog(db DB) ports.PostLog {
	return &PostgresPostLog{db: db}
}

// Append est indexé par l'ID : réécrire le même post remplace la ligne.
func (r *PostgresPostLog) Append(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (id, user_id, type, body, media_url, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, type = EXCLUDED.type, body = EXCLUDED.body,
		    media_url = EXCLUDED.media_url, ts = EXCLUDED.ts
	`
	_, err := r.db.Exec(ctx, query, post.ID, post.UserID, string(post.Type), post.Body, post.MediaURL, post.Timestamp)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Page : PAGINATION KEYSET sur (ts, id), strictement après le curseur
func (r *PostgresPostLog) Page(ctx context.Context, after *domain.Cursor, limit int) ([]*domain.Post, error) {
	rows, err := keysetQuery(ctx, r.db, "SELECT id, user_id, type, body, media_url, ts FROM posts", after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0, limit)
	for rows.Next() {
		var p domain.Post
		var postType string
		if err := rows.Scan(&p.ID, &p.UserID, &postType, &p.Body, &p.MediaURL, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Type = domain.PostType(postType)
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// PostgresFeedLog est le journal Feed (copies des posts des comptes suivis).
type PostgresFeedLog struct {
	db DB
}

func NewPostgresFeedLog(db DB) ports.FeedLog {
	return &PostgresFeedLog{db: db}
}

func (r *PostgresFeedLog) Append(ctx context.Context, entry *domain.FeedEntry) error {
	query := `
		INSERT INTO feed_entries (id, user_id, type, operation, body, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, type = EXCLUDED.type, operation = EXCLUDED.operation,
		    body = EXCLUDED.body, ts = EXCLUDED.ts
	`
	_, err := r.db.Exec(ctx, query, entry.ID, entry.UserID, string(entry.Type), string(entry.Operation), entry.Body, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert feed entry: %w", err)
	}
	return nil
}

func (r *PostgresFeedLog) Page(ctx context.Context, after *domain.Cursor, limit int) ([]*domain.FeedEntry, error) {
	rows, err := keysetQuery(ctx, r.db, "SELECT id, user_id, type, operation, body, ts FROM feed_entries", after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.FeedEntry, 0, limit)
	for rows.Next() {
		var e domain.FeedEntry
		var entryType, operation string
		if err := rows.Scan(&e.ID, &e.UserID, &entryType, &operation, &e.Body, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = domain.PostType(entryType)
		e.Operation = domain.Operation(operation)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func keysetQuery(ctx context.Context, db DB, selectClause string, after *domain.Cursor, limit int) (pgx.Rows, error) {
	// Cas 1: Première page
	if after == nil {
		return db.Query(ctx, selectClause+` ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	}
	// Cas 2: Page suivante, comparaison de tuple pour départager les timestamps égaux
	return db.Query(ctx, selectClause+` WHERE (ts, id) < ($1, $2) ORDER BY ts DESC, id DESC LIMIT $3`,
		after.Timestamp, after.ID, limit)
}
