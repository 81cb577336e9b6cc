package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("MASTODON_BASE_URL", "https://example.social/")
	t.Setenv("MASTODON_ACCESS_TOKEN", "token")
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "bzz.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_CreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bzz.conf")

	cfg, err := Load(path)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrConfigCreated)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	// The written default must load once credentials are present
	setRequiredEnv(t)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "unlisted", cfg.PostPrivacy)
	assert.Equal(t, 10, cfg.Matcher.MaxRepeat)
	assert.Equal(t, "https://example.social", cfg.MastodonBaseURL)
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	setRequiredEnv(t)
	path := writeConfig(t, `{
		"deny_list": ["Troll@Example.social"],
		"allow_list": [" Friend@example.social "],
		"parse_interval": 3,
		"act_interval": 2,
		"post_privacy": "public",
		"strict": true
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"troll@example.social"}, cfg.DenyList)
	assert.Equal(t, []string{"friend@example.social"}, cfg.AllowList)
	assert.Equal(t, 3, cfg.ParseInterval)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "[FINISHED]", cfg.ClosedMarker, "unset fields keep defaults")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{
			name: "Invalid privacy",
			body: `{"post_privacy": "friends"}`,
		},
		{
			name: "Invalid strategy",
			body: `{"strategy": "pulse"}`,
		},
		{
			name: "Zero interval",
			body: `{"act_interval": 0}`,
		},
		{
			name: "Multi-character marker",
			body: `{"matcher": {"prefix": "b", "marker": "zz", "max_repeat": 10, "unit": 10}}`,
		},
		{
			name: "PiShock without credentials",
			body: `{"actuator": "pishock"}`,
		},
		{
			name: "Email without SMTP",
			body: `{}`,
			env:  map[string]string{"NOTIFICATION_EMAIL": "ops@example.com"},
		},
		{
			name: "Ramp ceiling below baseline",
			body: `{"strategy": "ramp", "ramp": {"baseline": 50, "ceiling": 40, "stats_file": "s.json"}}`,
		},
		{
			name: "Negative matcher unit",
			body: `{"matcher": {"prefix": "b", "marker": "z", "max_repeat": 10, "unit": -10}}`,
		},
		{
			name: "Ramp without reduction",
			body: `{"strategy": "ramp", "ramp": {"reduction": 0}}`,
		},
		{
			name: "Ramp with negative reduction",
			body: `{"strategy": "ramp", "ramp": {"reduction": -5}}`,
		},
		{
			name: "Ramp without hold",
			body: `{"strategy": "ramp", "ramp": {"hold_seconds": 0}}`,
		},
		{
			name: "Ramp with negative decay",
			body: `{"strategy": "ramp", "ramp": {"decay_seconds": -1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_RampDefaultsAreValid(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load(writeConfig(t, `{"strategy": "ramp", "ramp": {"decay_seconds": 0}}`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Ramp.Reduction)
	assert.Equal(t, 0, cfg.Ramp.DecaySeconds)
}

func TestLoad_MalformedJSON(t *testing.T) {
	setRequiredEnv(t)
	_, err := Load(writeConfig(t, `{"parse_interval": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed configuration")
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("MASTODON_BASE_URL", "")
	t.Setenv("MASTODON_ACCESS_TOKEN", "")
	_, err := Load(writeConfig(t, `{}`))
	assert.Error(t, err)
}
