// ABOUTME: SSH connection pool keyed by host id, built on golang.org/x/crypto/ssh.
// ABOUTME: Exec plus cat/base64/stat/rm file operations with remote ~ resolution.

package sshpool

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/YHlorra/clawpal/internal/config"
)

const (
	connectTimeout = 15 * time.Second
	defaultPort    = 22
	// fallbackHome is used when the remote $HOME cannot be resolved.
	fallbackHome = "/root"
)

// ErrNotConnected is returned for operations against a host id that has no
// live connection.
var ErrNotConnected = errors.New("ssh host not connected")

// ErrPasswordAuth rejects password authentication outright; keys or the
// local ssh-agent are the only supported methods.
var ErrPasswordAuth = errors.New("password authentication is not supported; use a private key or ssh-agent")

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Entry is one remote directory entry.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

type conn struct {
	client *ssh.Client
	home   string
}

// Pool holds at most one connection per configured host id.
type Pool struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// New creates an empty pool.
func New(logger *slog.Logger) *Pool {
	return &Pool{
		logger: logger,
		conns:  make(map[string]*conn),
	}
}

// Connect dials the host and stores the connection under its id, replacing
// any previous one. The remote $HOME is resolved here so later ~ paths do
// not need an extra round trip.
func (p *Pool) Connect(ctx context.Context, host config.SSHHost) error {
	auth, err := authMethods(host)
	if err != nil {
		return err
	}

	port := host.Port
	if port <= 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(host.Host, strconv.Itoa(port))

	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ssh connection to %s failed: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	home := fallbackHome
	if res, err := runOn(client, "echo $HOME"); err == nil {
		if h := strings.TrimSpace(res.Stdout); h != "" {
			home = h
		}
	}

	p.mu.Lock()
	old := p.conns[host.ID]
	p.conns[host.ID] = &conn{client: client, home: home}
	p.mu.Unlock()

	if old != nil {
		old.client.Close()
	}

	p.logger.Info("ssh host connected", "host_id", host.ID, "addr", addr, "home", home)
	return nil
}

// Disconnect closes and removes the connection for id. Unknown ids are a
// no-op.
func (p *Pool) Disconnect(id string) error {
	p.mu.Lock()
	c := p.conns[id]
	delete(p.conns, id)
	p.mu.Unlock()

	if c == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("ssh disconnect failed: %w", err)
	}
	p.logger.Info("ssh host disconnected", "host_id", id)
	return nil
}

// IsConnected reports whether the connection for id is present and still
// answering keepalives.
func (p *Pool) IsConnected(id string) bool {
	c := p.get(id)
	if c == nil {
		return false
	}
	_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// HomeDir returns the remote $HOME captured at connect time.
func (p *Pool) HomeDir(id string) (string, error) {
	c := p.get(id)
	if c == nil {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return c.home, nil
}

// ResolvePath expands a leading ~ against the remote home directory.
func (p *Pool) ResolvePath(id, path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := p.HomeDir(id)
	if err != nil {
		return "", err
	}
	return resolveAgainstHome(path, home), nil
}

// Exec runs command on the host and returns its captured output. A non-zero
// exit status is not an error; it is reported in the result.
func (p *Pool) Exec(id, command string) (ExecResult, error) {
	c := p.get(id)
	if c == nil {
		return ExecResult{}, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return runOn(c.client, command)
}

// ExecLogin runs command wrapped in login-shell setup so PATH additions from
// the user's profile (nvm, fnm) are visible. Needed for the openclaw CLI,
// which is typically installed through a node version manager.
func (p *Pool) ExecLogin(id, command string) (ExecResult, error) {
	return p.Exec(id, loginWrap(command))
}

// ReadFile reads a remote file via cat.
func (p *Pool) ReadFile(id, path string) (string, error) {
	resolved, err := p.ResolvePath(id, path)
	if err != nil {
		return "", err
	}
	res, err := p.Exec(id, "cat "+quote(resolved))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("reading %s: %s", resolved, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// WriteFile writes content to a remote file. The content travels
// base64-encoded so arbitrary bytes survive the shell; parent directories
// are created.
func (p *Pool) WriteFile(id, path, content string) error {
	resolved, err := p.ResolvePath(id, path)
	if err != nil {
		return err
	}
	b64 := base64.StdEncoding.EncodeToString([]byte(content))
	cmd := fmt.Sprintf("mkdir -p \"$(dirname %s)\" && printf '%%s' '%s' | base64 -d > %s",
		quote(resolved), b64, quote(resolved))
	res, err := p.Exec(id, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("writing %s: %s", resolved, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ListDir lists a remote directory via GNU stat.
func (p *Pool) ListDir(id, path string) ([]Entry, error) {
	resolved, err := p.ResolvePath(id, path)
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("stat --format='%%n\t%%F\t%%s' %s/* 2>/dev/null || true", quote(resolved))
	res, err := p.Exec(id, cmd)
	if err != nil {
		return nil, err
	}
	return parseStatListing(res.Stdout), nil
}

// Remove deletes a remote file via rm.
func (p *Pool) Remove(id, path string) error {
	resolved, err := p.ResolvePath(id, path)
	if err != nil {
		return err
	}
	res, err := p.Exec(id, "rm "+quote(resolved))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("removing %s: %s", resolved, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Close disconnects every host.
func (p *Pool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*conn)
	p.mu.Unlock()

	for _, c := range conns {
		c.client.Close()
	}
}

func (p *Pool) get(id string) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[id]
}

// authMethods builds the client auth chain for a host. "key" loads the
// configured private key; otherwise the local ssh-agent is used when
// available.
func authMethods(host config.SSHHost) ([]ssh.AuthMethod, error) {
	if host.AuthMethod == "password" {
		return nil, ErrPasswordAuth
	}

	if host.AuthMethod == "key" && host.KeyPath != "" {
		keyPath := expandLocalTilde(host.KeyPath)
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key %s: %w", keyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh key %s: %w", keyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("no ssh key configured and no ssh-agent available")
	}
	agentConn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to ssh-agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers)}, nil
}

func runOn(client *ssh.Client, command string) (ExecResult, error) {
	sess, err := client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("opening ssh session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	exitCode := 0
	if err := sess.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitStatus()
		} else {
			return ExecResult{}, fmt.Errorf("running remote command: %w", err)
		}
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// quote single-quotes s for POSIX shells.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// expandLocalTilde expands a leading ~ against the local home directory.
func expandLocalTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// resolveAgainstHome substitutes the leading ~ of path with home.
func resolveAgainstHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return home + path[1:]
	}
	return path
}

// loginWrap sources the common shell profiles and node version managers
// before running command, then falls back to scanning nvm's install tree for
// the target binary.
func loginWrap(command string) string {
	targetBin := ""
	if fields := strings.Fields(command); len(fields) > 0 {
		targetBin = fields[0]
	}
	var b strings.Builder
	b.WriteString(`. "$HOME/.profile" 2>/dev/null; `)
	b.WriteString(`. "$HOME/.bashrc" 2>/dev/null; `)
	b.WriteString(`. "$HOME/.zshrc" 2>/dev/null; `)
	b.WriteString(`export NVM_DIR="${NVM_DIR:-$HOME/.nvm}"; `)
	b.WriteString(`[ -s "$NVM_DIR/nvm.sh" ] && . "$NVM_DIR/nvm.sh" 2>/dev/null; `)
	b.WriteString(`[ -s "$HOME/.fnm/fnm" ] && eval "$($HOME/.fnm/fnm env)" 2>/dev/null; `)
	fmt.Fprintf(&b, `if ! command -v %[1]s >/dev/null 2>&1; then `+
		`for d in "$HOME"/.nvm/versions/node/*/bin; do `+
		`[ -x "$d/%[1]s" ] && export PATH="$d:$PATH" && break; `+
		`done; `+
		`fi; `, targetBin)
	b.WriteString(command)
	return b.String()
}

// parseStatListing parses the tab-separated stat output into entries,
// skipping dot entries and malformed lines.
func parseStatListing(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		name := parts[0]
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if name == "" || name == "." || name == ".." {
			continue
		}
		size, _ := strconv.ParseInt(parts[2], 10, 64)
		entries = append(entries, Entry{
			Name:  name,
			IsDir: parts[1] == "directory",
			Size:  size,
		})
	}
	return entries
}
