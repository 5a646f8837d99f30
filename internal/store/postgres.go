package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSlugTaken reports a unique violation on notes.slug. The insert and
	// the uniqueness check are one atomic statement, so two concurrent
	// creations can never both claim the same slug.
	ErrSlugTaken = errors.New("slug already taken")
	// ErrUserNameTaken reports a unique violation on users.user_name.
	ErrUserNameTaken = errors.New("user name already taken")
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, user_name, password_hash)
		VALUES ($1, $2, $3)
	`, user.ID, user.UserName, user.PasswordHash)
	if err != nil {
		if isUniqueViolation(err, "users_user_name_key") {
			return ErrUserNameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByName(ctx context.Context, userName string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, password_hash, created_at FROM users WHERE user_name=$1
	`, userName).Scan(&user.ID, &user.UserName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, password_hash, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.UserName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ── Sessions ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.user_name
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.UserName)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Notes ──

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, author_id, title, text, slug)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.AuthorID, note.Title, note.Text, note.Slug)
	if err != nil {
		if isUniqueViolation(err, "notes_slug_key") {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNoteBySlug(ctx context.Context, slug string) (Note, error) {
	var note Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, title, text, slug, created_at, updated_at
		FROM notes WHERE slug=$1
	`, slug).Scan(&note.ID, &note.AuthorID, &note.Title, &note.Text, &note.Slug, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (s *PostgresStore) ListNotesByAuthor(ctx context.Context, authorID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, title, text, slug, created_at, updated_at
		FROM notes WHERE author_id=$1
		ORDER BY created_at ASC, id ASC
	`, authorID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.AuthorID, &note.Title, &note.Text, &note.Slug, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) NoteSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notes WHERE slug=$1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, note Note) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title=$2, text=$3, slug=$4, updated_at=NOW() WHERE id=$1
	`, note.ID, note.Title, note.Text, note.Slug)
	if err != nil {
		if isUniqueViolation(err, "notes_slug_key") {
			return ErrSlugTaken
		}
		return fmt.Errorf("update note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ── News ──

func (s *PostgresStore) InsertNewsItem(ctx context.Context, item NewsItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news (id, title, text, date)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Title, item.Text, item.Date)
	if err != nil {
		return fmt.Errorf("insert news item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNewsItem(ctx context.Context, newsID string) (NewsItem, error) {
	var item NewsItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, text, date, created_at FROM news WHERE id=$1
	`, newsID).Scan(&item.ID, &item.Title, &item.Text, &item.Date, &item.CreatedAt)
	if err != nil {
		return NewsItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListRecentNews(ctx context.Context, limit int) ([]NewsItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, text, date, created_at
		FROM news
		ORDER BY date DESC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	var items []NewsItem
	for rows.Next() {
		var item NewsItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Text, &item.Date, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountNews(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count news: %w", err)
	}
	return count, nil
}

// ── Comments ──

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (news_id, author_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created
	`, comment.NewsID, comment.AuthorID, comment.Text).Scan(&comment.ID, &comment.Created)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID int64) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, news_id, author_id, text, created FROM comments WHERE id=$1
	`, commentID).Scan(&comment.ID, &comment.NewsID, &comment.AuthorID, &comment.Text, &comment.Created)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

// ListComments returns the thread in display order: oldest first, the
// serial id breaking created ties by insertion order.
func (s *PostgresStore) ListComments(ctx context.Context, newsID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, news_id, author_id, text, created
		FROM comments WHERE news_id=$1
		ORDER BY created ASC, id ASC
	`, newsID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.NewsID, &comment.AuthorID, &comment.Text, &comment.Created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID int64, text string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE comments SET text=$2 WHERE id=$1`, commentID, text)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
