package notifications

import "github.com/bzz-bot/bzz/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendClosed(summary *models.CloseSummary) error
}
