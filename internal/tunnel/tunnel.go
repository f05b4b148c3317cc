// Package tunnel implements the SSH Tunnel Manager: an asynchronous local
// TCP forwarder over a reusable SSH connection with host-key verification,
// automatic reconnection with exponential backoff, keepalive, and clean
// teardown of in-flight forwarded sockets.
//
// Grounded on gravitational-teleport's api/utils/sshutils for
// golang.org/x/crypto/ssh client-config construction; the event-driven
// reconnect state machine itself is a from-scratch Go state machine
// replacing the "event-based tunnel with closures captured across
// reconnect" anti-pattern the specification calls out — each transition
// is an explicit method, and the manager owns the SSH client, listener,
// and forwarded-socket set exclusively.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// State is one point in the tunnel's state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config configures a Manager.
type Config struct {
	SSHHost                string
	SSHPort                int
	SSHUser                string
	PrivateKeyPath         string
	PrivateKeyPassphrase   string
	Password               string
	TargetHost             string
	TargetPort             int
	KnownHostsPath         string
	StrictHostKeyChecking  bool
	TrustOnFirstUse        bool
	KeepaliveInterval      time.Duration
	KeepaliveMaxMissed     int
	MaxReconnectAttempts   int // -1 means unlimited
	ReadinessTimeout       time.Duration
}

// Events delivers the three tunnel lifecycle notifications. Each field is
// optional; a nil handler is simply not invoked.
type Events struct {
	Disconnecting func(oldPort int)
	Reconnected   func(oldPort, newPort int)
	Failed        func(err error)
}

// Manager is the SSH Tunnel Manager (C2). One Manager owns at most one
// live SSH client and one local listener at a time.
type Manager struct {
	cfg      Config
	verifier *HostKeyVerifier
	events   Events

	mu          sync.Mutex
	state       State
	localPort   int
	attempts    int
	shutdown    bool
	sshClient   *ssh.Client
	listener    net.Listener
	sockets     map[net.Conn]struct{}
	stateDoneCh chan struct{} // not assigned or closed anywhere in this package
}

// New constructs a Manager. It does not connect.
func New(cfg Config, events Events) (*Manager, error) {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	if cfg.KeepaliveMaxMissed <= 0 {
		cfg.KeepaliveMaxMissed = 3
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 20 * time.Second
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	verifier, err := NewHostKeyVerifier(cfg.KnownHostsPath, cfg.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("construct host key verifier: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		verifier: verifier,
		events:   events,
		state:    StateDisconnected,
		sockets:  make(map[net.Conn]struct{}),
	}, nil
}

// State returns the manager's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the tunnel is currently serving traffic.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// LocalPort returns the current local listener port, or 0 when not connected.
func (m *Manager) LocalPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localPort
}

// Connect performs the initial connect protocol and blocks until the
// tunnel is connected or the attempt fails outright. Subsequent
// disconnects are handled by the background reconnect loop, which calls
// Connect again for each reconnect attempt.
func (m *Manager) Connect(ctx context.Context) (int, error) {
	m.setState(StateConnecting)

	if err := checkKeyPermissions(m.cfg.PrivateKeyPath); err != nil {
		m.setState(StateFailed)
		return 0, err
	}

	client, err := m.dial(ctx)
	if err != nil {
		m.setState(StateFailed)
		return 0, err
	}

	port, listener, err := m.bindListener()
	if err != nil {
		client.Close()
		m.setState(StateFailed)
		return 0, fmt.Errorf("bind local listener: %w", err)
	}

	m.mu.Lock()
	m.sshClient = client
	m.listener = listener
	m.localPort = port
	m.attempts = 0
	m.mu.Unlock()

	go m.acceptLoop(listener, client)
	go m.monitorConn(client)

	m.setState(StateConnected)
	return port, nil
}

func (m *Manager) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := m.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback := m.verifier.HostKeyCallback()
	if !m.cfg.StrictHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	clientCfg := &ssh.ClientConfig{
		User:            m.cfg.SSHUser,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         m.cfg.ReadinessTimeout,
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SSHHost, m.cfg.SSHPort)
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadinessTimeout)
	defer cancel()

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resCh := make(chan dialResult, 1)
	go func() {
		conn, err := net.DialTimeout("tcp", addr, m.cfg.ReadinessTimeout)
		if err != nil {
			resCh <- dialResult{nil, err}
			return
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
		if err != nil {
			conn.Close()
			resCh <- dialResult{nil, err}
			return
		}
		resCh <- dialResult{ssh.NewClient(c, chans, reqs), nil}
	}()

	select {
	case <-dialCtx.Done():
		return nil, fmt.Errorf("ssh dial to %s timed out", addr)
	case r := <-resCh:
		if r.err != nil {
			return nil, fmt.Errorf("ssh dial to %s: %w", addr, r.err)
		}
		return r.client, nil
	}
}

func (m *Manager) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if m.cfg.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(m.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %q: %w", m.cfg.PrivateKeyPath, err)
		}
		var signer ssh.Signer
		if m.cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(m.cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key %q: %w", m.cfg.PrivateKeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if m.cfg.Password != "" {
		methods = append(methods, ssh.Password(m.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no SSH authentication method configured (set SSH_PRIVATE_KEY_PATH or SSH_PASSWORD)")
	}
	return methods, nil
}

// checkKeyPermissions rejects a private key file readable/writable by
// group or other, matching standard ssh-keygen expectations.
func checkKeyPermissions(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat private key %q: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("private key %q has overly permissive mode %04o; it must not be readable or writable by group or other", path, mode)
	}
	return nil
}

func (m *Manager) bindListener() (int, net.Listener, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, nil, err
	}
	return listener.Addr().(*net.TCPAddr).Port, listener, nil
}

// acceptLoop forwards each inbound local connection to the remote
// target over a direct-tcpip channel, piping bytes bidirectionally.
func (m *Manager) acceptLoop(listener net.Listener, client *ssh.Client) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return // listener closed during teardown/reconnect
		}
		m.trackSocket(conn)
		go m.forward(conn, client)
	}
}

func (m *Manager) forward(local net.Conn, client *ssh.Client) {
	defer m.untrackSocket(local)
	defer local.Close()

	remote, err := client.Dial("tcp", fmt.Sprintf("%s:%d", m.cfg.TargetHost, m.cfg.TargetPort))
	if err != nil {
		return
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(remote, local) }() //nolint:errcheck
	go func() { defer wg.Done(); io.Copy(local, remote) }() //nolint:errcheck
	wg.Wait()
}

func (m *Manager) trackSocket(c net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sockets[c] = struct{}{}
}

func (m *Manager) untrackSocket(c net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sockets, c)
}

// monitorConn waits for the SSH connection to close or keepalive to fail,
// then triggers the disconnect/reconnect sequence.
func (m *Manager) monitorConn(client *ssh.Client) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	missed := 0
	waitErr := make(chan error, 1)
	go func() { waitErr <- client.Wait() }()

	for {
		select {
		case err := <-waitErr:
			m.handleDisconnect(client, err)
			return
		case <-ticker.C:
			_, _, err := client.SendRequest("keepalive@postgres-ssh-mcp", true, nil)
			if err != nil {
				missed++
				if missed >= m.cfg.KeepaliveMaxMissed {
					client.Close()
					m.handleDisconnect(client, fmt.Errorf("keepalive missed %d times", missed))
					return
				}
			} else {
				missed = 0
			}
		}
	}
}

func (m *Manager) handleDisconnect(client *ssh.Client, cause error) {
	m.mu.Lock()
	if m.shutdown || m.sshClient != client {
		m.mu.Unlock()
		return
	}
	oldPort := m.localPort
	if m.listener != nil {
		m.listener.Close()
	}
	for c := range m.sockets {
		c.Close()
	}
	m.sockets = make(map[net.Conn]struct{})
	m.sshClient = nil
	m.listener = nil
	m.localPort = 0
	m.mu.Unlock()

	m.setState(StateReconnecting)
	if m.events.Disconnecting != nil {
		m.events.Disconnecting(oldPort)
	}

	go m.reconnectLoop(oldPort, cause)
}

func (m *Manager) reconnectLoop(oldPort int, _ error) {
	attempt := 0
	for {
		m.mu.Lock()
		if m.shutdown {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if m.cfg.MaxReconnectAttempts >= 0 && attempt >= m.cfg.MaxReconnectAttempts {
			m.setState(StateFailed)
			if m.events.Failed != nil {
				m.events.Failed(fmt.Errorf("exhausted %d reconnect attempts", attempt))
			}
			return
		}

		backoff := backoffFor(attempt)
		time.Sleep(backoff)
		attempt++

		m.setState(StateConnecting)
		newPort, err := m.Connect(context.Background())
		if err != nil {
			continue
		}

		m.mu.Lock()
		m.attempts = 0
		m.mu.Unlock()

		if m.events.Reconnected != nil {
			m.events.Reconnected(oldPort, newPort)
		}
		return
	}
}

func backoffFor(attempt int) time.Duration {
	d := time.Second * time.Duration(1<<uint(attempt))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Close tears down the tunnel: active sockets, listener, SSH client, and
// suppresses any further reconnect scheduling.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.shutdown = true
	for c := range m.sockets {
		c.Close()
	}
	m.sockets = make(map[net.Conn]struct{})
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}
	client := m.sshClient
	m.sshClient = nil
	m.localPort = 0
	m.mu.Unlock()

	m.setState(StateDisconnected)

	if client != nil {
		return client.Close()
	}
	return nil
}
