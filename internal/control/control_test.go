package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// mockServerInfo implements ServerInfo for testing.
type mockServerInfo struct {
	listenAddr string
	conns      int64
	startedAt  time.Time
}

func (m *mockServerInfo) ListenAddr() string     { return m.listenAddr }
func (m *mockServerInfo) ConnectionCount() int64 { return m.conns }
func (m *mockServerInfo) StartedAt() time.Time   { return m.startedAt }

func TestNewServer(t *testing.T) {
	cfg := DefaultServerConfig()
	info := &mockServerInfo{listenAddr: ":2222", startedAt: time.Now()}

	s := NewServer(cfg, info)
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestServer_StartStop(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "control.sock")

	cfg := ServerConfig{
		SocketPath:   socketPath,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	info := &mockServerInfo{listenAddr: ":2222", startedAt: time.Now()}
	s := NewServer(cfg, info)

	if err := s.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	if !s.IsRunning() {
		t.Error("expected server to be running")
	}

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		t.Error("socket file does not exist")
	}

	if err := s.Stop(); err != nil {
		t.Errorf("failed to stop: %v", err)
	}

	if s.IsRunning() {
		t.Error("expected server to be stopped")
	}
}

func TestServer_ClientIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "control.sock")

	cfg := ServerConfig{
		SocketPath:   socketPath,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	started := time.Now().Add(-90 * time.Second)
	info := &mockServerInfo{listenAddr: "0.0.0.0:2222", conns: 3, startedAt: started}

	s := NewServer(cfg, info)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer s.Stop()

	client := NewClient(socketPath)
	defer client.Close()

	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.ListenAddr != "0.0.0.0:2222" {
		t.Errorf("ListenAddr = %s, want 0.0.0.0:2222", status.ListenAddr)
	}
	if status.ActiveConnections != 3 {
		t.Errorf("ActiveConnections = %d, want 3", status.ActiveConnections)
	}
	if status.UptimeSeconds < 89 {
		t.Errorf("UptimeSeconds = %d, want at least 89", status.UptimeSeconds)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "control.sock")

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "control_test_total"})
	counter.Inc()
	reg.MustRegister(counter)

	cfg := ServerConfig{
		SocketPath:   socketPath,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Registry:     reg,
	}

	info := &mockServerInfo{listenAddr: ":2222", startedAt: time.Now()}
	s := NewServer(cfg, info)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer s.Stop()

	client := NewClient(socketPath)
	defer client.Close()

	resp, err := client.get(context.Background(), "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
