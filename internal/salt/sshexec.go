package salt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Master is an SSH endpoint for a Salt master, parsed from
// user@host[:port] format.
type Master struct {
	User string
	Host string
	Port string
}

// ParseMaster parses a string like "root@salt" or "ops@salt:2222".
func ParseMaster(s string) (Master, error) {
	m := Master{Port: "22"}

	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return m, fmt.Errorf("invalid master address %q (expected user@host[:port])", s)
	}

	m.User = parts[0]
	hostPort := parts[1]

	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		m.Host = h
		m.Port = p
	} else {
		m.Host = hostPort
	}

	return m, nil
}

// Addr returns the host:port for dialing.
func (m Master) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// sshConn holds a reusable SSH connection to the master. One session is
// opened per command.
type sshConn struct {
	client *ssh.Client
	mu     sync.Mutex
}

// NewSSHExecutor connects to a remote Salt master over SSH and returns
// an executor that runs the salt CLI there. This lets an operator drive
// a rollout from a workstation without a local salt installation.
func NewSSHExecutor(master string, mode Mode) (*CLIExecutor, error) {
	m, err := ParseMaster(master)
	if err != nil {
		return nil, err
	}

	config, err := buildSSHConfig(m.User)
	if err != nil {
		return nil, fmt.Errorf("ssh config: %w", err)
	}

	client, err := ssh.Dial("tcp", m.Addr(), config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", m.Addr(), err)
	}

	conn := &sshConn{client: client}
	return &CLIExecutor{
		mode: mode,
		run:  conn.run,
		log:  slog.Default().With("component", "salt-ssh-master", "master", m.Addr()),
	}, nil
}

// run executes one salt CLI invocation on the master.
func (c *sshConn) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	// Support context cancellation
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Signal(ssh.SIGTERM)
			session.Close()
		case <-done:
		}
	}()

	cmd := shellJoin(name, args)
	out, err := session.Output(cmd)
	close(done)

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if err != nil {
		return out, fmt.Errorf("remote command %q failed: %w", cmd, err)
	}
	return out, nil
}

// shellJoin quotes each argument for the remote shell.
func shellJoin(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, "'"+strings.ReplaceAll(a, "'", `'\''`)+"'")
	}
	return strings.Join(parts, " ")
}

// buildSSHConfig creates an SSH client config with key auth and agent
// support.
func buildSSHConfig(user string) (*ssh.ClientConfig, error) {
	var signers []ssh.Signer

	// Try SSH agent first
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			agentSigners, err := agentClient.Signers()
			if err == nil {
				signers = append(signers, agentSigners...)
			}
		}
	}

	// Fall back to default key files
	home, _ := os.UserHomeDir()
	keyFiles := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}

	for _, keyFile := range keyFiles {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("no SSH keys available (no agent and no key files found)")
	}

	// Try to use known_hosts for host key verification
	var hostKeyCallback ssh.HostKeyCallback
	knownHostsFile := filepath.Join(home, ".ssh", "known_hosts")
	if cb, err := knownhosts.New(knownHostsFile); err == nil {
		hostKeyCallback = cb
	} else {
		// Fall back to insecure if known_hosts can't be loaded
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: hostKeyCallback,
	}, nil
}
