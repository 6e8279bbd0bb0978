package sshtransport

import (
	"net"
	"testing"
)

func TestConnectionLimiterAllowsWithinBurst(t *testing.T) {
	l := NewConnectionLimiter(1, 3)
	addr := &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 22}

	for i := 0; i < 3; i++ {
		if !l.Allow(addr) {
			t.Fatalf("attempt %d: expected allow within burst", i)
		}
	}
	if l.Allow(addr) {
		t.Fatal("expected the 4th rapid attempt to be throttled")
	}
}

func TestConnectionLimiterIsPerSourceIP(t *testing.T) {
	l := NewConnectionLimiter(1, 1)
	a := &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 22}
	b := &net.TCPAddr{IP: net.ParseIP("203.0.113.2"), Port: 22}

	if !l.Allow(a) {
		t.Fatal("expected first connection from a to be allowed")
	}
	if l.Allow(a) {
		t.Fatal("expected second immediate connection from a to be throttled")
	}
	if !l.Allow(b) {
		t.Fatal("a different source IP must have its own independent bucket")
	}
}

func TestConnectionLimiterZeroRateDisablesLimiting(t *testing.T) {
	l := NewConnectionLimiter(0, 1)
	addr := &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 22}
	for i := 0; i < 100; i++ {
		if !l.Allow(addr) {
			t.Fatalf("attempt %d: zero rate must never throttle", i)
		}
	}
}
