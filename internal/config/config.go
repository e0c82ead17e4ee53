// Package config loads ticketflow's runtime configuration: a config file
// (if present) read first, environment variables layered on top so they
// always win, matching the teacher's defaults-then-env-override style.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide runtime configuration.
type Config struct {
	Environment string // development, staging, production
	Debug       bool

	// WorkflowDefinitionsDir names a directory for workflow
	// template/version documents. It is only reported in String(); nothing
	// in this module loads workflows from it.
	WorkflowDefinitionsDir string

	// OutboxPollSeconds is the cron tick interval the notification
	// outbox scheduler runs delivery attempts on (§4 notification outbox).
	OutboxPollSeconds int

	// SLAReminderLeadMinutes is a lead time before due_at for SLA
	// reminders. It is only reported in String(); no component in this
	// module schedules reminders.
	SLAReminderLeadMinutes int

	// DefaultApprovalSLAMinutes is a default approval SLA. Nothing reads
	// it: step activation sets due_at only from the step definition's own
	// SLA, and a step without one gets no due_at.
	DefaultApprovalSLAMinutes int
}

// InitViper wires up config file discovery: an explicit path, else
// ./config.yaml, else $XDG_CONFIG_HOME/ticketflow/config.yaml. Must run
// before Load.
func InitViper(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if cwd, err := os.Getwd(); err == nil {
			if _, err := os.Stat(filepath.Join(cwd, "config.yaml")); err == nil {
				viper.AddConfigPath(cwd)
			}
		}
		viper.AddConfigPath(configDir())
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "[CONFIG] using config file: %s\n", viper.ConfigFileUsed())
	}

	viper.AutomaticEnv()
	bindEnvVars()
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ticketflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ticketflow"
	}
	return filepath.Join(home, ".config", "ticketflow")
}

func bindEnvVars() {
	viper.BindEnv("environment", "TICKETFLOW_ENVIRONMENT")
	viper.BindEnv("debug", "TICKETFLOW_DEBUG")
	viper.BindEnv("workflow_definitions_dir", "TICKETFLOW_WORKFLOW_DEFINITIONS_DIR")
	viper.BindEnv("outbox_poll_seconds", "TICKETFLOW_OUTBOX_POLL_SECONDS")
	viper.BindEnv("sla_reminder_lead_minutes", "TICKETFLOW_SLA_REMINDER_LEAD_MINUTES")
	viper.BindEnv("default_approval_sla_minutes", "TICKETFLOW_DEFAULT_APPROVAL_SLA_MINUTES")
}

// Load assembles Config from whatever InitViper discovered, falling back
// to sane defaults when a key was never set.
func Load() (*Config, error) {
	bindEnvVars()
	return &Config{
		Environment:               getStringOrDefault("environment", "development"),
		Debug:                     getBoolOrDefault("debug", false),
		WorkflowDefinitionsDir:    getStringOrDefault("workflow_definitions_dir", "./workflows"),
		OutboxPollSeconds:         getIntOrDefault("outbox_poll_seconds", 30),
		SLAReminderLeadMinutes:    getIntOrDefault("sla_reminder_lead_minutes", 60),
		DefaultApprovalSLAMinutes: getIntOrDefault("default_approval_sla_minutes", 24*60),
	}, nil
}

func getStringOrDefault(key, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}

func getBoolOrDefault(key string, def bool) bool {
	if !viper.IsSet(key) {
		return def
	}
	return viper.GetBool(key)
}

func getIntOrDefault(key string, def int) int {
	if !viper.IsSet(key) {
		return def
	}
	if v := viper.GetInt(key); v != 0 {
		return v
	}
	return def
}

// CronSpec renders OutboxPollSeconds into a robfig/cron schedule
// expression understood by outbox.NewScheduler.
func (c *Config) CronSpec() string {
	return "@every " + strconv.Itoa(c.OutboxPollSeconds) + "s"
}

// String renders a redacted one-line summary for startup logs.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "environment=%s debug=%v workflows=%s outbox_poll=%ds sla_lead=%dm",
		c.Environment, c.Debug, c.WorkflowDefinitionsDir, c.OutboxPollSeconds, c.SLAReminderLeadMinutes)
	return b.String()
}
