package app

import (
	"context"
	"errors"
	"strings"

	"journal/internal/domain"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

var (
	// ErrContentRequired indicates an empty post body.
	ErrContentRequired = errors.New("content is required")
	// ErrPostNotFound indicates that no post matches the given id.
	ErrPostNotFound = errors.New("post not found")
)

// PostService encapsulates publishing use cases.
type PostService struct {
	repo  domain.PostRepository
	clock clock.PassiveClock
}

// NewPostService creates a PostService backed by the given repository.
func NewPostService(repo domain.PostRepository, clk clock.PassiveClock) *PostService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &PostService{repo: repo, clock: clk}
}

// List returns all posts, newest first.
func (s *PostService) List(ctx context.Context) ([]domain.Post, error) {
	return s.repo.ListPosts(ctx)
}

// Create validates and stores a new post.
func (s *PostService) Create(ctx context.Context, content string, media []domain.Media) (*domain.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentRequired
	}
	if media == nil {
		media = []domain.Media{}
	}

	p := domain.Post{
		ID:        uuid.NewString(),
		Content:   content,
		Media:     media,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes the post with the given id.
func (s *PostService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrPostNotFound
	}
	ok, err := s.repo.DeletePost(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPostNotFound
	}
	return nil
}
