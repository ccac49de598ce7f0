package domain

import (
	"context"
	"time"
)

// Media kinds accepted by uploads.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
)

// Media is an uploaded file attached to a post.
type Media struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
}

// Post is a single published entry.
type Post struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Media     []Media   `json:"media"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostRepository is the port for post persistence.
type PostRepository interface {
	CreatePost(ctx context.Context, p Post) error
	ListPosts(ctx context.Context) ([]Post, error)
	DeletePost(ctx context.Context, id string) (bool, error)
}

// MediaStore persists uploaded bytes and returns the public URL path.
type MediaStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
