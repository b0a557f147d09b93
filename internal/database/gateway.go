package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"content-tasks/internal/faults"
)

// Gateway wraps pgxpool for the platform's relational tables. Every call
// is its own short transaction; no long-lived locks are held across the
// object-store steps that surround these updates.
type Gateway struct {
	pool *pgxpool.Pool
}

// User is the subset of the users table the task handlers touch.
type User struct {
	ID           string
	Handle       string
	ProfileImage *string
	BannerImage  *string
}

// Post is the subset of the posts table the task handlers touch.
type Post struct {
	ID             string
	UserID         string
	Slug           string
	Title          string
	Content        string
	ThumbnailImage *string
	CreatedAt      time.Time
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Gateway, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Gateway{pool: pool}, nil
}

func (g *Gateway) Close() {
	if g.pool != nil {
		g.pool.Close()
	}
}

// GetUserByID fetches a user by primary key.
func (g *Gateway) GetUserByID(ctx context.Context, id string) (User, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT id, handle, profile_image, banner_image FROM users WHERE id = $1
	`, id)
	var u User
	var profile, banner pgtype.Text
	if err := row.Scan(&u.ID, &u.Handle, &profile, &banner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, faults.NotFound("user not found: %s", id)
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ProfileImage = textPtr(profile)
	u.BannerImage = textPtr(banner)
	return u, nil
}

// UpdateUserProfileImage sets or clears (nil) the profile image URL column.
func (g *Gateway) UpdateUserProfileImage(ctx context.Context, id string, url *string) error {
	return g.updateURLColumn(ctx, `UPDATE users SET profile_image = $2, updated_at = NOW() WHERE id = $1`, id, url, "user")
}

// UpdateUserBannerImage sets or clears (nil) the banner image URL column.
func (g *Gateway) UpdateUserBannerImage(ctx context.Context, id string, url *string) error {
	return g.updateURLColumn(ctx, `UPDATE users SET banner_image = $2, updated_at = NOW() WHERE id = $1`, id, url, "user")
}

// GetPostByID fetches a post by primary key.
func (g *Gateway) GetPostByID(ctx context.Context, id string) (Post, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT id, user_id, slug, title, content, thumbnail_image, created_at FROM posts WHERE id = $1
	`, id)
	var p Post
	var thumb pgtype.Text
	if err := row.Scan(&p.ID, &p.UserID, &p.Slug, &p.Title, &p.Content, &thumb, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, faults.NotFound("post not found: %s", id)
		}
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	p.ThumbnailImage = textPtr(thumb)
	return p, nil
}

// UpdatePostThumbnail sets or clears (nil) the thumbnail URL column.
func (g *Gateway) UpdatePostThumbnail(ctx context.Context, id string, url *string) error {
	return g.updateURLColumn(ctx, `UPDATE posts SET thumbnail_image = $2, updated_at = NOW() WHERE id = $1`, id, url, "post")
}

func (g *Gateway) updateURLColumn(ctx context.Context, sql, id string, url *string, entity string) error {
	tag, err := g.pool.Exec(ctx, sql, id, url)
	if err != nil {
		return faults.Infrastructure(err, "update %s %s", entity, id)
	}
	if tag.RowsAffected() == 0 {
		return faults.NotFound("%s not found: %s", entity, id)
	}
	return nil
}

// CleanupRefreshTokens removes expired and revoked refresh tokens in one
// transaction: tokens expiring strictly before now, and tokens with a
// non-null revocation timestamp. Re-running with the same or a later now
// never errors and only shrinks the table.
func (g *Gateway) CleanupRefreshTokens(ctx context.Context, now time.Time) (expired, revoked int64, err error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, faults.Infrastructure(err, "begin token cleanup")
	}
	defer tx.Rollback(ctx)

	expiredTag, err := tx.Exec(ctx, `
		DELETE FROM user_refresh_tokens WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, 0, faults.Infrastructure(err, "delete expired tokens")
	}
	revokedTag, err := tx.Exec(ctx, `
		DELETE FROM user_refresh_tokens WHERE revoked_at IS NOT NULL
	`)
	if err != nil {
		return 0, 0, faults.Infrastructure(err, "delete revoked tokens")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, faults.Infrastructure(err, "commit token cleanup")
	}
	return expiredTag.RowsAffected(), revokedTag.RowsAffected(), nil
}

// ListPosts pages through posts in insertion order for reindexing.
func (g *Gateway) ListPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, user_id, slug, title, content, thumbnail_image, created_at
		FROM posts ORDER BY created_at, id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, faults.Infrastructure(err, "list posts")
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var thumb pgtype.Text
		if err := rows.Scan(&p.ID, &p.UserID, &p.Slug, &p.Title, &p.Content, &thumb, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.ThumbnailImage = textPtr(thumb)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
