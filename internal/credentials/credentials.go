// Package credentials loads the per-subsystem credential document.
//
// Every section is optional. A section missing from the document stays nil,
// and Require reports it as a configuration error before any host work starts.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// Section names a credential subsystem.
type Section string

const (
	OpenStack    Section = "openstack"
	Alertmanager Section = "alertmanager"
	Netbox       Section = "netbox"
	Jira         Section = "jira"
	SSH          Section = "ssh"
	Aquilon      Section = "aquilon"
	Kayobe       Section = "kayobe"
	General      Section = "general"
)

// ErrMissingSection is wrapped by errors about absent sections.
var ErrMissingSection = errors.New("credential section not configured")

type OpenStackCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Cloud    string `yaml:"cloud"`
}

type AlertmanagerCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type NetboxCredentials struct {
	APIToken string `yaml:"api_token"`
}

type JiraCredentials struct {
	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`
}

type SSHCredentials struct {
	KeyPath    string `yaml:"key_path"`
	Username   string `yaml:"username"`
	Passphrase string `yaml:"passphrase"`
}

// PublicKeyPath is the public half of KeyPath.
func (s *SSHCredentials) PublicKeyPath() string { return s.KeyPath + ".pub" }

type AquilonCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type KayobeCredentials struct {
	NoPassFile  string `yaml:"nopassfile"`
	Username    string `yaml:"username"`
	Hostname    string `yaml:"hostname"`
	ProdEnvPath string `yaml:"prod_env_path"`
}

type GeneralCredentials struct {
	Initials string `yaml:"initials"`
}

// Set holds every credential section. It is read-only after Load and shared by all hosts.
type Set struct {
	OpenStack    *OpenStackCredentials    `yaml:"openstack"`
	Alertmanager *AlertmanagerCredentials `yaml:"alertmanager"`
	Netbox       *NetboxCredentials       `yaml:"netbox"`
	Jira         *JiraCredentials         `yaml:"jira"`
	SSH          *SSHCredentials          `yaml:"ssh"`
	Aquilon      *AquilonCredentials      `yaml:"aquilon"`
	Kayobe       *KayobeCredentials       `yaml:"kayobe"`
	General      *GeneralCredentials      `yaml:"general"`
}

// Load reads the YAML credential document at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, result.NewConfigError("credentials", fmt.Errorf("failed to read credentials file: %w", err))
	}
	set, err := Parse(data)
	if err != nil {
		return nil, result.NewConfigError("credentials", fmt.Errorf("%s: %w", path, err))
	}
	return set, nil
}

// Parse decodes a credential document. An empty document yields an empty Set.
func Parse(data []byte) (*Set, error) {
	set := &Set{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return set, nil
	}
	if err := yaml.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return set, nil
}

// Has reports whether a section is configured.
func (s *Set) Has(section Section) bool {
	switch section {
	case OpenStack:
		return s.OpenStack != nil
	case Alertmanager:
		return s.Alertmanager != nil
	case Netbox:
		return s.Netbox != nil
	case Jira:
		return s.Jira != nil
	case SSH:
		return s.SSH != nil
	case Aquilon:
		return s.Aquilon != nil
	case Kayobe:
		return s.Kayobe != nil
	case General:
		return s.General != nil
	}
	return false
}

// Require fails with a *result.ConfigError listing every absent section.
func (s *Set) Require(sections ...Section) error {
	var missing []string
	seen := make(map[Section]bool, len(sections))
	for _, sec := range sections {
		if seen[sec] {
			continue
		}
		seen[sec] = true
		if !s.Has(sec) {
			missing = append(missing, string(sec))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return result.NewConfigError("credentials", fmt.Errorf("%w: %s", ErrMissingSection, strings.Join(missing, ", ")))
}

// Initials returns the operator initials, or an empty string when the general section is absent.
func (s *Set) Initials() string {
	if s.General == nil {
		return ""
	}
	return s.General.Initials
}
