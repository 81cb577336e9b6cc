package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bzz-bot/bzz/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// MastodonClient talks to a Mastodon-compatible REST API
type MastodonClient struct {
	baseURL     string
	accessToken string
	client      *resty.Client
}

// Ensure MastodonClient implements Client
var _ Client = (*MastodonClient)(nil)

type mastodonAccount struct {
	Acct string `json:"acct"`
}

type mastodonStatus struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	InReplyToID *string         `json:"in_reply_to_id"`
	Content     string          `json:"content"`
	SpoilerText string          `json:"spoiler_text"`
	Visibility  string          `json:"visibility"`
	URL         string          `json:"url"`
	Account     mastodonAccount `json:"account"`
}

type mastodonContext struct {
	Ancestors   []mastodonStatus `json:"ancestors"`
	Descendants []mastodonStatus `json:"descendants"`
}

type mastodonSource struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	SpoilerText string `json:"spoiler_text"`
}

// NewMastodonClient creates a client for the instance at baseURL
func NewMastodonClient(baseURL, accessToken string) *MastodonClient {
	return &MastodonClient{
		baseURL:     baseURL,
		accessToken: accessToken,
		client: resty.New().
			SetTimeout(30*time.Second).
			SetBaseURL(baseURL).
			SetAuthToken(accessToken).
			SetHeader("User-Agent", "Bzz/1.0"),
	}
}

// FetchReplies returns all descendants of the post
func (m *MastodonClient) FetchReplies(ctx context.Context, postID string) ([]models.Reply, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		Get("/api/v1/statuses/{id}/context")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch context for %s: %w", postID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mastodon API returned status %d for context of %s", resp.StatusCode(), postID)
	}

	var thread mastodonContext
	if err := json.Unmarshal(resp.Body(), &thread); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}

	replies := make([]models.Reply, 0, len(thread.Descendants))
	for _, status := range thread.Descendants {
		replies = append(replies, status.toReply())
	}

	logrus.Debugf("Fetched %d replies for post %s", len(replies), postID)
	return replies, nil
}

// GetPost fetches a status. The returned content and content warning are the editable
// source text when the instance exposes it.
func (m *MastodonClient) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var status mastodonStatus
	if err := m.getJSON(ctx, "/api/v1/statuses/{id}", postID, &status); err != nil {
		return nil, err
	}
	post := status.toPost()

	var source mastodonSource
	if err := m.getJSON(ctx, "/api/v1/statuses/{id}/source", postID, &source); err != nil {
		logrus.Debugf("Status source unavailable for %s, using rendered content: %v", postID, err)
		return post, nil
	}
	post.Content = source.Text
	post.ContentWarning = source.SpoilerText
	return post, nil
}

// CreatePost publishes a new status
func (m *MastodonClient) CreatePost(ctx context.Context, body, visibility, contentWarning string) (*models.Post, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"status":       body,
			"visibility":   visibility,
			"spoiler_text": contentWarning,
		}).
		Post("/api/v1/statuses")
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mastodon API returned status %d creating post: %s", resp.StatusCode(), string(resp.Body()))
	}

	var status mastodonStatus
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("failed to decode created post: %w", err)
	}
	return status.toPost(), nil
}

// UpdatePost edits the text and content warning of an existing status
func (m *MastodonClient) UpdatePost(ctx context.Context, postID, body, contentWarning string) (*models.Post, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetFormData(map[string]string{
			"status":       body,
			"spoiler_text": contentWarning,
		}).
		Put("/api/v1/statuses/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to update post %s: %w", postID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mastodon API returned status %d updating post %s: %s", resp.StatusCode(), postID, string(resp.Body()))
	}

	var status mastodonStatus
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("failed to decode updated post: %w", err)
	}
	return status.toPost(), nil
}

func (m *MastodonClient) getJSON(ctx context.Context, path, postID string, out interface{}) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", postID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("mastodon API returned status %d for %s", resp.StatusCode(), postID)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", postID, err)
	}
	return nil
}

func (s mastodonStatus) toReply() models.Reply {
	reply := models.Reply{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Content:   s.Content,
		Author:    s.Account.Acct,
	}
	if s.InReplyToID != nil {
		reply.InReplyToID = *s.InReplyToID
	}
	return reply
}

func (s mastodonStatus) toPost() *models.Post {
	return &models.Post{
		ID:             s.ID,
		URL:            s.URL,
		Content:        s.Content,
		ContentWarning: s.SpoilerText,
		Visibility:     s.Visibility,
	}
}
