// Package sshexec runs commands on remote hosts over SSH and reports their
// output and exit status.
//
// A connection is opened per command, so one Client can serve several users
// on the same host. Host key verification is skipped unless a known_hosts
// file is configured.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host string
	Port int
	// User is used when Run is called without an explicit user.
	User string

	// PrivateKey is a PEM private key, optionally protected by Passphrase.
	PrivateKey []byte
	Passphrase string
	// Password enables password authentication, alone or alongside PrivateKey.
	Password string
	// ForwardAgent offers PrivateKey to the remote side through agent forwarding.
	ForwardAgent bool

	// DialTimeout bounds connection establishment. If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on one remote host.
type Client struct {
	config  *Config
	auth    []ssh.AuthMethod
	keyring agent.Agent
}

// NewClient validates cfg and parses the private key once.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 && cfg.Password == "" {
		return nil, fmt.Errorf("config needs a private key or a password")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in verification via known_hosts
	}

	c := &Client{config: &configCopy}
	if len(configCopy.PrivateKey) > 0 {
		signer, err := parseKey(configCopy.PrivateKey, configCopy.Passphrase)
		if err != nil {
			return nil, err
		}
		c.auth = append(c.auth, ssh.PublicKeys(signer))
	}
	if configCopy.Password != "" {
		c.auth = append(c.auth, ssh.Password(configCopy.Password))
	}
	if configCopy.ForwardAgent {
		keyring, err := newKeyring(configCopy.PrivateKey, configCopy.Passphrase)
		if err != nil {
			return nil, err
		}
		c.keyring = keyring
	}

	return c, nil
}

// NewClientFromKeyFile reads the private key at keyPath and creates a Client.
func NewClientFromKeyFile(cfg Config, keyPath string) (*Client, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	cfg.PrivateKey = key
	return NewClient(&cfg)
}

func parseKey(key []byte, passphrase string) (ssh.Signer, error) {
	var (
		signer ssh.Signer
		err    error
	)
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

func newKeyring(key []byte, passphrase string) (agent.Agent, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("agent forwarding needs a private key")
	}
	var (
		raw interface{}
		err error
	)
	if passphrase != "" {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		raw, err = ssh.ParseRawPrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{PrivateKey: raw}); err != nil {
		return nil, fmt.Errorf("failed to load key into agent: %w", err)
	}
	return keyring, nil
}

// KnownHosts returns a host key callback backed by the given known_hosts
// files. With no files it returns nil, which NewClient treats as "don't verify".
func KnownHosts(files ...string) (ssh.HostKeyCallback, error) {
	var present []string
	for _, f := range files {
		if f != "" {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}
	cb, err := knownhosts.New(present...)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Host returns the remote host name.
func (c *Client) Host() string { return c.config.Host }

// Run executes command as user, or as the configured user when user is empty.
// A nonzero exit status is reported in the returned Command; err is only set
// when the command could not be run at all.
func (c *Client) Run(ctx context.Context, command, user string) (result.Command, error) {
	detail := result.Command{Command: command}
	if user == "" {
		user = c.config.User
	}

	client, err := c.connect(ctx, user)
	if err != nil {
		return detail, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return detail, fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	if c.keyring != nil {
		if err := agent.ForwardToAgent(client, c.keyring); err != nil {
			return detail, fmt.Errorf("failed to set up agent forwarding: %w", err)
		}
		if err := agent.RequestAgentForwarding(session); err != nil {
			return detail, fmt.Errorf("failed to request agent forwarding on %s: %w", c.config.Host, err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = client.Close()
		<-done
		return detail, fmt.Errorf("command on %s interrupted: %w", c.config.Host, ctx.Err())
	}

	detail.Stdout = strings.TrimSpace(stdout.String())
	detail.Stderr = strings.TrimSpace(stderr.String())
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			detail.ExitCode = exitErr.ExitStatus()
			return detail, nil
		}
		return detail, fmt.Errorf("command failed on %s: %w", c.config.Host, err)
	}
	return detail, nil
}

func (c *Client) connect(ctx context.Context, user string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            c.auth,
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection to %s as %s: %w", addr, user, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}
