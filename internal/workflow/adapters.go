package workflow

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/hvmigrate/hvmigrate/internal/config"
	"github.com/hvmigrate/hvmigrate/internal/credentials"
	"github.com/hvmigrate/hvmigrate/internal/provider/alertmanager"
	"github.com/hvmigrate/hvmigrate/internal/provider/aquilon"
	"github.com/hvmigrate/hvmigrate/internal/provider/jira"
	"github.com/hvmigrate/hvmigrate/internal/provider/kayobe"
	"github.com/hvmigrate/hvmigrate/internal/provider/netbox"
	"github.com/hvmigrate/hvmigrate/internal/provider/openstack"
	"github.com/hvmigrate/hvmigrate/internal/provider/sshexec"
	"github.com/hvmigrate/hvmigrate/internal/report"
	"github.com/hvmigrate/hvmigrate/internal/result"
)

// AdapterFactory builds the adapters for one host. Record, Log and the shared
// fields of h are set; Adapters is still empty.
type AdapterFactory func(h *HostContext) (Adapters, error)

// clients holds the connections shared by every host of a run.
type clients struct {
	cfg        *config.Config
	creds      *credentials.Set
	header     string
	hostKeys   ssh.HostKeyCallback
	privateKey []byte

	jira         *jira.Client
	alertmanager *alertmanager.Provider
	aquilon      *sshexec.Client
	kayobe       *sshexec.Client
}

// NewAdapterFactory builds the shared clients for every configured credential
// section and returns a factory that wires them to each host.
func NewAdapterFactory(cfg *config.Config, creds *credentials.Set, header string) (AdapterFactory, error) {
	c := &clients{cfg: cfg, creds: creds, header: header}

	hostKeys, err := sshexec.KnownHosts(cfg.KnownHostsFile)
	if err != nil {
		return nil, result.NewConfigError("known_hosts", err)
	}
	c.hostKeys = hostKeys

	if creds.SSH != nil {
		key, err := os.ReadFile(creds.SSH.KeyPath)
		if err != nil {
			return nil, result.NewConfigError("ssh", fmt.Errorf("failed to read private key: %w", err))
		}
		c.privateKey = key
	}
	if creds.Jira != nil {
		c.jira = jira.NewClient(cfg.JiraURL, creds.Jira.Username, creds.Jira.APIToken)
	}
	if creds.Alertmanager != nil {
		c.alertmanager = alertmanager.NewProvider(cfg.AlertmanagerURL, creds.Alertmanager.Username, creds.Alertmanager.Password)
	}
	if creds.Aquilon != nil {
		c.aquilon, err = sshexec.NewClient(&sshexec.Config{
			Host:            cfg.AquilonHost,
			User:            creds.Aquilon.Username,
			Password:        creds.Aquilon.Password,
			HostKeyCallback: hostKeys,
		})
		if err != nil {
			return nil, result.NewConfigError("aquilon", err)
		}
	}
	if creds.Kayobe != nil {
		c.kayobe, err = sshexec.NewClientFromKeyFile(sshexec.Config{
			Host:            creds.Kayobe.Hostname,
			User:            creds.Kayobe.Username,
			ForwardAgent:    true,
			HostKeyCallback: hostKeys,
		}, creds.Kayobe.NoPassFile)
		if err != nil {
			return nil, result.NewConfigError("kayobe", err)
		}
	}

	return c.forHost, nil
}

func (c *clients) forHost(h *HostContext) (Adapters, error) {
	hostname := h.Hostname()
	var a Adapters

	var ticket report.Ticket
	if c.jira != nil {
		ticket = c.jira.Issue(h.Record.TicketID)
	}
	a.Sink = report.NewSink(ticket, h.Log, report.WithHeader(c.header))

	if c.creds.SSH != nil {
		remote, err := sshexec.NewClient(&sshexec.Config{
			Host:            hostname,
			User:            c.creds.SSH.Username,
			PrivateKey:      c.privateKey,
			Passphrase:      c.creds.SSH.Passphrase,
			HostKeyCallback: c.hostKeys,
		})
		if err != nil {
			return Adapters{}, result.NewConfigError("ssh", err)
		}
		a.Remote = remote
	}
	if c.creds.Netbox != nil {
		a.Inventory = netbox.NewProvider(c.cfg.NetboxURL, c.creds.Netbox.APIToken, hostname)
	}
	if oc := c.creds.OpenStack; oc != nil {
		a.Compute = openstack.NewProvider(oc.Cloud, oc.Username, oc.Password, hostname)
	}
	if c.alertmanager != nil {
		a.Monitoring = c.alertmanager
	}
	if c.aquilon != nil {
		a.Provisioning = aquilon.NewProvider(c.aquilon, c.cfg.AquilonHost, c.cfg.AquilonScriptsDir, hostname)
	}
	if c.kayobe != nil {
		a.Playbooks = kayobe.NewProvider(c.kayobe, c.cfg.KayobeScriptsDir, hostname)
	}
	return a, nil
}
