package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNothingSet(t *testing.T) {
	os.Unsetenv("TICKETFLOW_ENVIRONMENT")
	os.Unsetenv("TICKETFLOW_OUTBOX_POLL_SECONDS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 30, cfg.OutboxPollSeconds)
	assert.Equal(t, 60, cfg.SLAReminderLeadMinutes)
	assert.Equal(t, 24*60, cfg.DefaultApprovalSLAMinutes)
}

func TestLoad_EnvVarsOverrideDefaults(t *testing.T) {
	os.Setenv("TICKETFLOW_ENVIRONMENT", "production")
	os.Setenv("TICKETFLOW_OUTBOX_POLL_SECONDS", "45")
	defer os.Unsetenv("TICKETFLOW_ENVIRONMENT")
	defer os.Unsetenv("TICKETFLOW_OUTBOX_POLL_SECONDS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 45, cfg.OutboxPollSeconds)
}

func TestConfig_CronSpec(t *testing.T) {
	cfg := &Config{OutboxPollSeconds: 20}
	assert.Equal(t, "@every 20s", cfg.CronSpec())
}

func TestConfig_StringRedactsNothingSensitive(t *testing.T) {
	cfg := &Config{Environment: "staging", Debug: true, WorkflowDefinitionsDir: "./workflows", OutboxPollSeconds: 30, SLAReminderLeadMinutes: 60}
	s := cfg.String()
	assert.Contains(t, s, "environment=staging")
	assert.Contains(t, s, "debug=true")
	assert.Contains(t, s, "outbox_poll=30s")
}
