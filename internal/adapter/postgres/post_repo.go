package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"journal/internal/domain"
)

var _ domain.PostRepository = (*DB)(nil)

// CreatePost inserts a post with its media list encoded as JSONB.
func (d *DB) CreatePost(ctx context.Context, p domain.Post) error {
	media, err := encodeMedia(p.Media)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx,
		"INSERT INTO posts (id, content, media, created_at) VALUES ($1, $2, $3, $4)",
		p.ID, p.Content, media, p.CreatedAt.UTC(),
	)
	return err
}

// ListPosts returns all posts, newest first.
func (d *DB) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, content, media, created_at FROM posts ORDER BY created_at DESC;")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Post, 0)
	for rows.Next() {
		var (
			p   domain.Post
			raw []byte
		)
		if err := rows.Scan(&p.ID, &p.Content, &raw, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Media, err = decodeMedia(raw); err != nil {
			return nil, fmt.Errorf("post %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePost removes a post and reports whether a row was deleted.
func (d *DB) DeletePost(ctx context.Context, id string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func encodeMedia(media []domain.Media) ([]byte, error) {
	if media == nil {
		media = []domain.Media{}
	}
	return json.Marshal(media)
}

func decodeMedia(raw []byte) ([]domain.Media, error) {
	media := []domain.Media{}
	if len(raw) == 0 {
		return media, nil
	}
	if err := json.Unmarshal(raw, &media); err != nil {
		return nil, err
	}
	return media, nil
}
