package platform

import (
	"context"

	"github.com/bzz-bot/bzz/internal/models"
)

// ReplyFetcher returns the full current set of replies below a post
type ReplyFetcher interface {
	FetchReplies(ctx context.Context, postID string) ([]models.Reply, error)
}

// Client is the subset of the social platform the engine consumes
type Client interface {
	ReplyFetcher
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	CreatePost(ctx context.Context, body, visibility, contentWarning string) (*models.Post, error)
	UpdatePost(ctx context.Context, postID, body, contentWarning string) (*models.Post, error)
}
