package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends close-time summaries via the configured channels
type Service struct {
	config *config.Config
	client *resty.Client
	dialer func() mailSender
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.dialer = func() mailSender {
		return gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}
	return s
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendClosed sends the summary to every configured channel
func (s *Service) SendClosed(summary *models.CloseSummary) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(summary); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Sent close summary to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(summary); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Sent close summary via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (s *Service) sendToTeams(summary *models.CloseSummary) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(s.buildTeamsMessage(summary)).
		Post(s.config.TeamsWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func (s *Service) buildTeamsMessage(summary *models.CloseSummary) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("%s closed post %s", s.config.Name, summary.PostID),
		Text:    fmt.Sprintf("%d triggers were actuated", summary.TriggerCount),
	}

	facts := []TeamsFact{
		{Name: "Post", Value: summary.PostURL},
		{Name: "Content warning", Value: summary.ContentWarning},
		{Name: "Closed", Value: summary.ClosedAt.Format("2006-01-02 15:04:05 MST")},
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if stats := strings.TrimSpace(summary.Stats); stats != "" {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Stats",
			ActivityText:  strings.ReplaceAll(stats, "\n", "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(summary *models.CloseSummary) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", fmt.Sprintf("%s: post %s closed (%d triggers)", s.config.Name, summary.PostID, summary.TriggerCount))
	m.SetBody("text/plain", s.buildEmailText(summary))

	if err := s.dialer().DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *Service) buildEmailText(summary *models.CloseSummary) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Post %s was closed at %s\n", summary.PostID, summary.ClosedAt.Format("2006-01-02 15:04:05 MST")))
	if summary.PostURL != "" {
		text.WriteString(fmt.Sprintf("URL: %s\n", summary.PostURL))
	}
	text.WriteString(fmt.Sprintf("Content warning: %s\n", summary.ContentWarning))
	text.WriteString(fmt.Sprintf("Triggers actuated: %d\n", summary.TriggerCount))

	if stats := strings.TrimSpace(summary.Stats); stats != "" {
		text.WriteString("\nSTATS\n=====\n")
		text.WriteString(stats)
		text.WriteString("\n")
	}

	return text.String()
}
