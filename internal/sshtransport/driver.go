package sshtransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/coinstash/sshgatewayd/internal/sshauth"
	"github.com/coinstash/sshgatewayd/internal/sshchannel"
	"github.com/coinstash/sshgatewayd/internal/sshlog"
	"github.com/coinstash/sshgatewayd/internal/sshmetrics"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// HostCallbacks is the async collaborator interface the driver dispatches
// to on a short-lived goroutine per outstanding request: host-key signing
// and the three userauth verification methods. Implementations must be
// safe for concurrent use, since a slow signing call and a concurrent
// password check on two different connections may both be in flight.
type HostCallbacks interface {
	SignKex(ctx context.Context, params KexParams) (KexResponse, error)
	VerifyPassword(ctx context.Context, user, service, password string) (bool, error)
	CheckPublicKey(ctx context.Context, user, service, algo string, pubKeyBlob []byte) (bool, error)
	VerifySignature(ctx context.Context, user, service, algo string, pubKeyBlob, signature, signedData []byte) (bool, error)
}

// Driver is the session driver (component J): it owns a net.Conn, pumps
// bytes through the Framer, forwards decoded packets to the Server, and
// dispatches the three async suspension points named in the concurrency
// model (more bytes, host-key/auth callback, host channel operation) from
// one cooperative per-connection goroutine plus short-lived worker
// goroutines for callback dispatch.
type Driver struct {
	conn    net.Conn
	server  *Server
	cb      HostCallbacks
	log     *slog.Logger
	metrics *sshmetrics.Metrics
	peer    string

	bytesIn  uint64
	bytesOut uint64

	results chan callbackResult
}

type callbackResult struct {
	apply func() error
}

// NewDriver builds a Driver around an accepted connection. log may be nil,
// in which case a no-op logger is used. metrics may be nil, in which case
// auth-failure counters aren't recorded.
func NewDriver(conn net.Conn, server *Server, cb HostCallbacks, log *slog.Logger, metrics *sshmetrics.Metrics) *Driver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		conn:    conn,
		server:  server,
		cb:      cb,
		log:     log,
		metrics: metrics,
		peer:    conn.RemoteAddr().String(),
		results: make(chan callbackResult, 4),
	}
}

// Run drives the connection to completion: identification exchange,
// handshake, authentication, and open-channel operation, until the peer
// disconnects, an unrecoverable protocol error occurs, or ctx is
// cancelled. It returns nil on a clean peer-initiated disconnect.
func (d *Driver) Run(ctx context.Context) error {
	defer d.conn.Close()

	peer := d.peer
	d.log.Info("ssh connection accepted", "peer", peer)

	if err := d.flushIdentLine(); err != nil {
		return err
	}

	readErrCh := make(chan error, 1)
	readCh := make(chan []byte, 4)
	go d.readLoop(readCh, readErrCh)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("ssh connection context cancelled", "peer", peer, "transferred", d.transferredSummary())
			return ctx.Err()

		case chunk, ok := <-readCh:
			if !ok {
				continue
			}
			if err := d.handleInbound(chunk); err != nil {
				d.log.Error("ssh connection terminated", "peer", peer, "error", err, "transferred", d.transferredSummary())
				d.flushOutbound()
				return err
			}
			if err := d.flushOutbound(); err != nil {
				return err
			}
			if disconnected, reason, msg := d.server.Disconnected(); disconnected {
				d.log.Info("ssh connection closed", "peer", peer, "reason", reason, "message", msg, "transferred", d.transferredSummary())
				return nil
			}
			d.dispatchPendingCallbacks(ctx)

		case err := <-readErrCh:
			if err != nil && !errors.Is(err, io.EOF) {
				d.log.Error("ssh connection read error", "peer", peer, "error", err, "transferred", d.transferredSummary())
				return err
			}
			d.log.Info("ssh connection closed by peer", "peer", peer, "transferred", d.transferredSummary())
			return nil

		case res := <-d.results:
			if err := res.apply(); err != nil {
				d.log.Error("ssh connection terminated after callback", "peer", peer, "error", err, "transferred", d.transferredSummary())
				d.flushOutbound()
				return err
			}
			if err := d.flushOutbound(); err != nil {
				return err
			}
			d.dispatchPendingCallbacks(ctx)
		}
	}
}

// transferredSummary renders the connection's cumulative byte counts for
// the disconnect log line, in and out relative to the server.
func (d *Driver) transferredSummary() string {
	return sshlog.Bytes(d.bytesIn) + " in, " + sshlog.Bytes(d.bytesOut) + " out"
}

func (d *Driver) readLoop(out chan<- []byte, errc chan<- error) {
	buf := make([]byte, 32*1024)
	for {
		n, err := d.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			out <- chunk
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (d *Driver) flushIdentLine() error {
	line, ok := d.server.IdentLineToSend()
	if !ok {
		return nil
	}
	_, err := d.conn.Write(line)
	return err
}

func (d *Driver) handleInbound(chunk []byte) error {
	d.bytesIn += uint64(len(chunk))

	if d.server.State() == StateProtoExchange {
		consumed, err := d.server.FeedIdentBytes(chunk)
		if err != nil {
			return err
		}
		if err := d.flushIdentLine(); err != nil {
			return err
		}
		chunk = chunk[consumed:]
		if len(chunk) == 0 {
			return nil
		}
	}

	packets, _, err := d.framer().Feed(chunk)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := d.server.HandlePacket(p); err != nil {
			return err
		}
		if d.server.State() == StateOpen {
			d.drainChannelUpdates()
		}
	}
	return nil
}

func (d *Driver) framer() *sshproto.Framer {
	return d.server.framer
}

func (d *Driver) flushOutbound() error {
	for {
		p, ok := d.server.NextPacketToSend()
		if !ok {
			break
		}
		if err := d.writeFrame(p); err != nil {
			return err
		}
	}
	if ch := d.server.Channels(); ch != nil {
		for {
			p, ok := ch.NextPacketToSend()
			if !ok {
				break
			}
			if err := d.writeFrame(p); err != nil {
				return err
			}
		}
	}
	if a := d.server.Auth(); a != nil {
		for {
			p, ok := a.NextPacketToSend()
			if !ok {
				break
			}
			if err := d.writeFrame(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) writeFrame(p sshproto.Packet) error {
	framed := d.framer().Send(p)
	n, err := d.conn.Write(framed)
	d.bytesOut += uint64(n)
	if err != nil {
		return fmt.Errorf("ssh write: %w", err)
	}
	return nil
}

// drainChannelUpdates pops every pending channel update off the
// multiplexer and discards it: no PTY/exec host is attached in this
// repository. Host-issued operations enter via SubmitChannelOperation.
func (d *Driver) drainChannelUpdates() {
	ch := d.server.Channels()
	if ch == nil {
		return
	}
	for {
		_, ok := ch.NextUpdate()
		if !ok {
			return
		}
		// A real deployment would forward u to the PTY/exec host here; the
		// host is an external collaborator (§1) not present in this repo.
	}
}

// SubmitChannelOperation forwards a host-issued channel operation (Data,
// Request, Close, ...) into the multiplexer and flushes any resulting
// outbound packets.
func (d *Driver) SubmitChannelOperation(op sshchannel.Operation) error {
	ch := d.server.Channels()
	if ch == nil {
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "connection not open")
	}
	if err := ch.DoOperation(op); err != nil {
		return err
	}
	return d.flushOutbound()
}

// dispatchPendingCallbacks spawns a worker goroutine for each outstanding
// host-callback suspension point (key-exchange signing, or a userauth
// verification request), feeding its result back through d.results.
func (d *Driver) dispatchPendingCallbacks(ctx context.Context) {
	if params, ok := d.server.IsWaitingOnKeyExchange(); ok {
		p := *params
		go func() {
			resp, err := d.cb.SignKex(ctx, p)
			d.results <- callbackResult{apply: func() error {
				return d.server.DoKeyExchange(resp, err)
			}}
		}()
		return
	}

	req, ok := d.server.PendingAuthRequest()
	if !ok {
		return
	}
	switch req.Kind {
	case sshauth.RequestVerifyPassword:
		user, service, password := req.User, req.Service, req.Password
		go func() {
			ok, err := d.cb.VerifyPassword(ctx, user, service, password)
			d.results <- callbackResult{apply: func() error {
				if err != nil {
					ok = false
				}
				d.logAuthResult(user, "password", ok)
				if !ok && d.metrics != nil {
					d.metrics.RecordAuthFailure("password")
				}
				return d.server.ResolveAuthRequest(func(a *sshauth.State) sshauth.Outcome {
					return a.ResolveVerifyPassword(user, ok)
				})
			}}
		}()
	case sshauth.RequestCheckPublicKey:
		user, service, algo, blob := req.User, req.Service, req.Algorithm, req.PubKeyBlob
		go func() {
			ok, err := d.cb.CheckPublicKey(ctx, user, service, algo, blob)
			d.results <- callbackResult{apply: func() error {
				if err != nil {
					ok = false
				}
				return d.server.ResolveAuthRequest(func(a *sshauth.State) sshauth.Outcome {
					return a.ResolveCheckPublicKey(algo, blob, ok)
				})
			}}
		}()
	case sshauth.RequestVerifySignature:
		user, service, algo, blob, sig, signed := req.User, req.Service, req.Algorithm, req.PubKeyBlob, req.Signature, req.SignedData
		go func() {
			ok, err := d.cb.VerifySignature(ctx, user, service, algo, blob, sig, signed)
			d.results <- callbackResult{apply: func() error {
				if err != nil {
					ok = false
				}
				d.logAuthResult(user, "publickey", ok)
				if !ok && d.metrics != nil {
					d.metrics.RecordAuthFailure("publickey")
				}
				return d.server.ResolveAuthRequest(func(a *sshauth.State) sshauth.Outcome {
					return a.ResolveVerifySignature(user, ok)
				})
			}}
		}()
	}
}

// logAuthResult records an authentication attempt's outcome at info level;
// the probe half of publickey auth (CheckPublicKey) isn't a real attempt
// and isn't logged here.
func (d *Driver) logAuthResult(user, method string, success bool) {
	d.log.Info("ssh auth attempt", "peer", d.peer, "user", user, "method", method, "success", success)
}
