package sshtransport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
	"github.com/coinstash/sshgatewayd/internal/sshtransport/sshtransportmock"
	"go.uber.org/mock/gomock"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	hk, err := sshhostkey.GenerateEd25519HostKey()
	if err != nil {
		t.Fatalf("GenerateEd25519HostKey: %v", err)
	}

	ctrl := gomock.NewController(t)
	cb := sshtransportmock.NewMockHostCallbacks(ctrl)

	l := NewListener(ListenerConfig{
		Address:   "127.0.0.1:0",
		HostKeys:  NewHostKeys([]sshhostkey.HostKey{hk}),
		Policy:    Policy{MaxAuthAttempts: 20, InitialWindow: 1 << 20, MaxPacketSize: 32768},
		Callbacks: cb,
	})
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

func waitForCount(t *testing.T, l *Listener, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ConnectionCount never reached %d, last was %d", want, l.ConnectionCount())
}

func TestListenerAcceptsAndSendsIdentLine(t *testing.T) {
	l := newTestListener(t)

	conn, err := net.Dial("tcp", l.Address().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitForCount(t, l, 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading server ident line: %v", err)
	}
	if line[:4] != "SSH-" {
		t.Fatalf("ident line = %q, want SSH- prefix", line)
	}

	conn.Close()
	waitForCount(t, l, 0)
}

func TestListenerRateLimiterRejectsBurst(t *testing.T) {
	hk, err := sshhostkey.GenerateEd25519HostKey()
	if err != nil {
		t.Fatalf("GenerateEd25519HostKey: %v", err)
	}
	ctrl := gomock.NewController(t)
	cb := sshtransportmock.NewMockHostCallbacks(ctrl)

	l := NewListener(ListenerConfig{
		Address:   "127.0.0.1:0",
		HostKeys:  NewHostKeys([]sshhostkey.HostKey{hk}),
		Policy:    Policy{MaxAuthAttempts: 20, InitialWindow: 1 << 20, MaxPacketSize: 32768},
		Callbacks: cb,
		Limiter:   NewConnectionLimiter(0.001, 1),
	})
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	addr := l.Address().String()
	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	defer first.Close()
	waitForCount(t, l, 1)

	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	defer second.Close()

	// The rate limiter should have refused the second attempt before it was
	// ever tracked, so the count must stay at 1; the connection itself gets
	// closed by the server immediately after accept.
	time.Sleep(50 * time.Millisecond)
	if got := l.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount = %d, want 1 (second connection should have been throttled)", got)
	}
}
