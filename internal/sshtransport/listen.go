package sshtransport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinstash/sshgatewayd/internal/sshmetrics"
)

// ListenerConfig configures the TCP listener wrapper: where to bind, the
// per-connection Server policy and host keys, the async collaborator, and
// the optional rate limiter and metrics sink.
type ListenerConfig struct {
	Address   string
	HostKeys  *HostKeys
	Policy    Policy
	Callbacks HostCallbacks
	Limiter   *ConnectionLimiter  // nil disables rate limiting
	Metrics   *sshmetrics.Metrics // nil uses sshmetrics.Default()
	Log       *slog.Logger
}

// Listener accepts TCP connections and drives each one with its own
// Server/Driver pair, mirroring the teacher's socks5.Server accept-loop
// shape (net.Listener + connTracker + stopCh + sync.WaitGroup).
type Listener struct {
	cfg ListenerConfig

	listener  net.Listener
	tracker   *connTracker
	startedAt time.Time

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewListener builds a Listener. It does not bind until Start is called.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = sshmetrics.Default()
	}
	return &Listener{
		cfg:     cfg,
		tracker: newConnTracker(),
		stopCh:  make(chan struct{}),
	}
}

// Start binds the listening socket and begins accepting connections.
func (l *Listener) Start() error {
	if l.running.Load() {
		return fmt.Errorf("ssh listener already running")
	}

	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("ssh listen: %w", err)
	}

	l.listener = ln
	l.startedAt = time.Now()
	l.running.Store(true)

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

// Stop closes the listener and every active connection, and waits for
// their driving goroutines to exit.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		l.running.Store(false)
		close(l.stopCh)
		if l.listener != nil {
			err = l.listener.Close()
		}
		l.tracker.closeAll()
	})
	l.wg.Wait()
	return err
}

// Address returns the bound listening address.
func (l *Listener) Address() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// ListenAddr returns the bound listening address as a string, satisfying
// internal/control.ServerInfo.
func (l *Listener) ListenAddr() string {
	if l.listener == nil {
		return l.cfg.Address
	}
	return l.listener.Addr().String()
}

// ConnectionCount returns the number of currently active connections.
func (l *Listener) ConnectionCount() int64 {
	return l.tracker.count()
}

// StartedAt returns when the listener began accepting connections,
// satisfying internal/control.ServerInfo.
func (l *Listener) StartedAt() time.Time {
	return l.startedAt
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
				l.cfg.Log.Warn("ssh accept error", "error", err)
				continue
			}
		}

		if l.cfg.Limiter != nil && !l.cfg.Limiter.Allow(conn.RemoteAddr()) {
			l.cfg.Log.Info("ssh connection rejected by rate limiter", "peer", conn.RemoteAddr())
			conn.Close()
			continue
		}

		l.tracker.add(conn)
		l.cfg.Metrics.RecordConnect()
		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	defer l.tracker.remove(conn)

	server := NewServer(l.cfg.HostKeys, l.cfg.Policy)
	server.SetMetrics(l.cfg.Metrics)
	driver := NewDriver(conn, server, l.cfg.Callbacks, l.cfg.Log, l.cfg.Metrics)

	err := driver.Run(context.Background())
	if err != nil {
		l.cfg.Log.Info("ssh connection ended with error", "peer", conn.RemoteAddr(), "error", err)
	}
	l.cfg.Metrics.RecordDisconnect(disconnectReasonLabel(server, err))
}

// disconnectReasonLabel produces the ssh_disconnects_total{reason} label:
// the peer- or self-issued disconnect reason code if one was recorded, or
// "read-error"/"clean" otherwise.
func disconnectReasonLabel(server *Server, runErr error) string {
	if disconnected, reason, _ := server.Disconnected(); disconnected {
		return fmt.Sprintf("reason-%d", reason)
	}
	if runErr != nil {
		return "read-error"
	}
	return "clean"
}
