package device

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const defaultPiShockURL = "https://do.pishock.com/api/apioperate"

// PiShock operations
const (
	OpShock   = 0
	OpVibrate = 1
	OpBeep    = 2
)

// PiShockCredentials identify the account and shared shocker
type PiShockCredentials struct {
	Username  string
	APIKey    string
	ShareCode string
	AppName   string
}

// PiShock drives a shocker through the PiShock HTTP API.
// Each Apply is a discrete operation lasting duration seconds.
type PiShock struct {
	creds     PiShockCredentials
	duration  int
	operation int
	url       string
	client    *resty.Client
}

// Ensure PiShock implements Device
var _ Device = (*PiShock)(nil)

type piShockRequest struct {
	Username  string `json:"Username"`
	Name      string `json:"Name"`
	Code      string `json:"Code"`
	Intensity int    `json:"Intensity"`
	Duration  int    `json:"Duration"`
	APIKey    string `json:"Apikey"`
	Op        int    `json:"Op"`
}

// NewPiShock creates a PiShock device
func NewPiShock(creds PiShockCredentials, duration, operation int) *PiShock {
	if duration <= 0 {
		duration = 1
	}
	return &PiShock{
		creds:     creds,
		duration:  duration,
		operation: operation,
		url:       defaultPiShockURL,
		client:    resty.New().SetTimeout(30 * time.Second),
	}
}

// WithURL overrides the API endpoint
func (p *PiShock) WithURL(url string) *PiShock {
	p.url = url
	return p
}

func (p *PiShock) Apply(ctx context.Context, level float64) error {
	intensity := int(math.Round(clampLevel(level) * 100))
	if intensity == 0 {
		logrus.Debug("PiShock level rounds to zero; nothing to send")
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(piShockRequest{
			Username:  p.creds.Username,
			Name:      p.creds.AppName,
			Code:      p.creds.ShareCode,
			Intensity: intensity,
			Duration:  p.duration,
			APIKey:    p.creds.APIKey,
			Op:        p.operation,
		}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("failed to call PiShock: %w", err)
	}

	body := strings.TrimSpace(string(resp.Body()))
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("PiShock returned status %d: %s", resp.StatusCode(), body)
	}
	// The API answers 200 with a human-readable message, even for failures
	if !strings.Contains(strings.ToLower(body), "succeeded") {
		return fmt.Errorf("PiShock rejected operation: %s", body)
	}

	logrus.Debugf("PiShock applied intensity %d for %ds", intensity, p.duration)
	return nil
}

// Stop is a no-op: PiShock operations end on their own after the duration
func (p *PiShock) Stop(ctx context.Context) error {
	return nil
}

func (p *PiShock) Close() error {
	return nil
}
