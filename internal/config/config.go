// Package config handles configuration loading from files, environment variables, and flags.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is read when present and no other file is given.
	DefaultConfigFile = "hvmigrate-config.env"

	defaultTicketStates = "Working On Pre Bios,Pre Bios Failed,Draining,Drained,Ready For Reinstall," +
		"Working On Reinstall,Working On Post Reinstall,Ready For Adoption,Working On Adoption,Ready For Test"
)

// Config holds all runtime configuration for hvmigrate.
type Config struct {
	NetboxURL         string
	JiraURL           string
	AlertmanagerURL   string
	AquilonHost       string
	AquilonScriptsDir string
	KayobeScriptsDir  string
	KnownHostsFile    string

	SourceOSMajor  string
	TargetOSMajor  string
	ProductionRole string
	DisableReason  string
	SilenceComment string

	TicketStates []string
	// FailureTransitions maps a step name to the ticket state its failures move to.
	FailureTransitions map[string]string

	MaxWorkers  int
	Serial      bool
	Debug       bool
	LogFile     string
	MetricsFile string
}

// Load initializes configuration from file, environment variables, and flags.
func Load(configFile string) (*Config, error) {
	viper.SetDefault("netbox_url", "https://netbox.esc.rl.ac.uk/")
	viper.SetDefault("jira_url", "https://stfc.atlassian.net/")
	viper.SetDefault("alertmanager_url", "https://openstack.stfc.ac.uk:9093")
	viper.SetDefault("aquilon_host", "aquilon.gridpp.rl.ac.uk")
	viper.SetDefault("aquilon_scripts_dir", "hv-migration-scripts")
	viper.SetDefault("kayobe_scripts_dir", "hv-migration-scripts")
	viper.SetDefault("source_os_major", "8")
	viper.SetDefault("target_os_major", "9")
	viper.SetDefault("production_role", "Openstack Prod Kolla_Compute")
	viper.SetDefault("disable_reason", "Migration to Rocky 9")
	viper.SetDefault("silence_comment", "RL9 Reinstall")
	viper.SetDefault("ticket_states", defaultTicketStates)
	viper.SetDefault("ticket_failure_transitions", "pre_reinstall=Pre Bios Failed")
	viper.SetDefault("max_workers", 0)

	viper.AutomaticEnv()

	if configFile == "" {
		configFile = DefaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		viper.SetConfigFile(configFile)
		viper.SetConfigType("env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	transitions, err := ParseTransitions(viper.GetString("ticket_failure_transitions"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NetboxURL:          strings.TrimRight(viper.GetString("netbox_url"), "/"),
		JiraURL:            strings.TrimRight(viper.GetString("jira_url"), "/"),
		AlertmanagerURL:    strings.TrimRight(viper.GetString("alertmanager_url"), "/"),
		AquilonHost:        viper.GetString("aquilon_host"),
		AquilonScriptsDir:  viper.GetString("aquilon_scripts_dir"),
		KayobeScriptsDir:   viper.GetString("kayobe_scripts_dir"),
		KnownHostsFile:     viper.GetString("known_hosts_file"),
		SourceOSMajor:      viper.GetString("source_os_major"),
		TargetOSMajor:      viper.GetString("target_os_major"),
		ProductionRole:     viper.GetString("production_role"),
		DisableReason:      viper.GetString("disable_reason"),
		SilenceComment:     viper.GetString("silence_comment"),
		TicketStates:       splitList(viper.GetString("ticket_states")),
		FailureTransitions: transitions,
		MaxWorkers:         viper.GetInt("max_workers"),
		Serial:             viper.GetBool("serial"),
		Debug:              viper.GetBool("debug"),
		LogFile:            viper.GetString("log_file"),
		MetricsFile:        viper.GetString("metrics_file"),
	}

	return cfg, nil
}

// ParseTransitions parses "step=State;step=State". Blank entries are ignored.
func ParseTransitions(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		step, state, ok := strings.Cut(entry, "=")
		step, state = strings.TrimSpace(step), strings.TrimSpace(state)
		if !ok || step == "" || state == "" {
			return nil, fmt.Errorf("invalid ticket transition %q, expected step=State", entry)
		}
		out[step] = state
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.SourceOSMajor == "" || c.TargetOSMajor == "" {
		return fmt.Errorf("source_os_major and target_os_major are required")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative, got %d", c.MaxWorkers)
	}
	if c.ProductionRole == "" {
		return fmt.Errorf("production_role is required")
	}
	if c.AquilonHost == "" {
		return fmt.Errorf("aquilon_host is required")
	}
	known := make(map[string]bool, len(c.TicketStates))
	for _, s := range c.TicketStates {
		known[s] = true
	}
	steps := make([]string, 0, len(c.FailureTransitions))
	for step := range c.FailureTransitions {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		if state := c.FailureTransitions[step]; !known[state] {
			return fmt.Errorf("ticket transition for %s names unknown state %q", step, state)
		}
	}
	return nil
}

// FailureTransition returns the ticket state a failed step moves to, if any.
func (c *Config) FailureTransition(step string) (string, bool) {
	state, ok := c.FailureTransitions[step]
	return state, ok
}
