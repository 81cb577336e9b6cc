package models

import (
	"time"

	"github.com/samber/mo"
)

// Reply represents one message in the monitored thread
type Reply struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`        // account handle, e.g. "user@instance"
	InReplyToID string    `json:"in_reply_to_id"` // empty when unknown
}

// Post represents the monitored status
type Post struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Content        string `json:"content"`
	ContentWarning string `json:"spoiler_text"`
	Visibility     string `json:"visibility"`
}

// Attribution ties a trigger to the user and reply that caused it
type Attribution struct {
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Trigger is a unit of work for the actuator
type Trigger struct {
	Intensity int                     `json:"intensity"`
	Source    mo.Option[Attribution] `json:"source"`
}

// NewUserTrigger creates a trigger attributed to the author of a reply
func NewUserTrigger(intensity int, author string, createdAt time.Time) Trigger {
	return Trigger{
		Intensity: intensity,
		Source:    mo.Some(Attribution{Author: author, CreatedAt: createdAt}),
	}
}

// NewSystemTrigger creates a trigger not attributable to any user
func NewSystemTrigger(intensity int) Trigger {
	return Trigger{
		Intensity: intensity,
		Source:    mo.None[Attribution](),
	}
}

// IsSystem reports whether the trigger was generated by the host rather than a user
func (t Trigger) IsSystem() bool {
	return t.Source.IsAbsent()
}

// AuthorOrHost returns the author handle, or "host" for system triggers
func (t Trigger) AuthorOrHost() string {
	if src, ok := t.Source.Get(); ok {
		return src.Author
	}
	return "host"
}

// CloseSummary describes a closed post, used for archiving and notifications
type CloseSummary struct {
	PostID         string    `json:"post_id"`
	PostURL        string    `json:"post_url"`
	ContentWarning string    `json:"content_warning"`
	Stats          string    `json:"stats"`
	ClosedAt       time.Time `json:"closed_at"`
	TriggerCount   int       `json:"trigger_count"`
}
