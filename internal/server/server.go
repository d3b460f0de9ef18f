// Package server runs Speakeasy's three network-facing tasks — the TCP
// signaling listener, the UDP voice engine, and the ops HTTP surface —
// against one cancellable context via golang.org/x/sync/errgroup. This
// replaces the teacher's cmd/root.go shutdown pattern (a sync.WaitGroup
// racing a 10-second time.After, forcing os.Exit on timeout) with
// structured concurrency: canceling the context stops every task, and
// Run returns the first task's error (or nil on clean ctx cancellation).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/metrics"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling/frame"
	"github.com/speakeasy-rtc/speakeasy/internal/voice"
)

// shutdownTimeout bounds how long the ops HTTP server gets to drain
// in-flight requests once the context is canceled.
const shutdownTimeout = 5 * time.Second

// inactivityTimeout closes a control connection that sends no frame for
// this long; a client's periodic Ping keeps it open (§4.4).
const inactivityTimeout = 90 * time.Second

// ConnRegistry tracks the live net.Conn backing each authenticated
// session, so a broadcast event that must never be silently dropped
// (kick, ban, key rotation) can force-close a connection whose send
// queue is full instead of giving up on delivery (§4.12).
type ConnRegistry struct {
	mu    sync.Mutex
	conns map[identifiers.UserID]net.Conn
}

// NewConnRegistry builds an empty ConnRegistry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[identifiers.UserID]net.Conn)}
}

func (r *ConnRegistry) add(user identifiers.UserID, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[user] = conn
}

func (r *ConnRegistry) remove(user identifiers.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, user)
}

// Disconnect implements broadcast.Disconnector: it closes user's
// connection, if one is currently registered.
func (r *ConnRegistry) Disconnect(user identifiers.UserID) {
	r.mu.Lock()
	conn, ok := r.conns[user]
	r.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Options bundles everything Server needs to run the three tasks.
type Options struct {
	Config     *config.Config
	Dispatcher *signaling.Dispatcher
	Presence   *presence.Map
	Registry   *ConnRegistry

	// Voice is nil in configurations/tests that never exercise the UDP
	// path (e.g. crypto.mode=none without a transport to test against).
	Voice *voice.Engine

	// OpsHandler serves the ops HTTP surface (§6: /healthz, setup wizard).
	// Nil disables the listener entirely. pprof is served separately.
	OpsHandler http.Handler

	// Metrics, when non-nil, is served on its own listener per
	// cfg.Metrics.Bind/Port (internal/metrics.CreateMetricsServer).
	Metrics *metrics.Metrics
}

// Server coordinates the signaling listener, voice engine, metrics
// listener, and ops HTTP surface's lifetimes.
type Server struct {
	cfg        *config.Config
	dispatcher *signaling.Dispatcher
	presence   *presence.Map
	registry   *ConnRegistry
	voice      *voice.Engine
	opsHandler http.Handler
	metrics    *metrics.Metrics
}

// New builds a Server from opts.
func New(opts Options) *Server {
	return &Server{
		cfg:        opts.Config,
		dispatcher: opts.Dispatcher,
		presence:   opts.Presence,
		registry:   opts.Registry,
		voice:      opts.Voice,
		opsHandler: opts.OpsHandler,
		metrics:    opts.Metrics,
	}
}

// Run starts every configured task and blocks until ctx is canceled or a
// task returns a non-nil error, in which case every other task is
// canceled too and that error is returned.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.voice != nil {
		if err := s.voice.Start(ctx); err != nil {
			return fmt.Errorf("server: starting voice engine: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			s.voice.Stop()
			return nil
		})
	}

	g.Go(func() error { return s.serveSignaling(ctx) })

	if s.opsHandler != nil {
		g.Go(func() error { return s.serveOpsHTTP(ctx) })
	}

	if s.metrics != nil && s.cfg.Metrics.Enabled {
		g.Go(func() error { return metrics.CreateMetricsServer(s.cfg, s.metrics) })
	}

	if s.cfg.PProf.Enabled {
		g.Go(func() error { return createPProfServer(s.cfg) })
	}

	return g.Wait()
}

// serveSignaling accepts TCP control connections until ctx is canceled.
func (s *Server) serveSignaling(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.cfg.Network.TCPPort))
	if err != nil {
		return fmt.Errorf("server: listening on tcp: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("server: signaling listener started", "port", s.cfg.Network.TCPPort)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accepting connection: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn owns one TCP connection's lifetime: a writer goroutine
// drains the session's send queue (responses and async broadcasts
// interleave safely since frame.Writer serializes its own writes), while
// this goroutine reads and dispatches one request at a time, matching
// §4.4's "concurrent per-connection dispatch is forbidden" rule.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	fr := frame.NewReader(conn)
	fw := frame.NewWriter(conn)
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.writeLoop(sess, fw)
	}()

	defer func() {
		sess.Close()
		writerWG.Wait()
		if !sess.ID.IsNil() {
			s.registry.remove(sess.ID)
			s.presence.Remove(sess.ID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(inactivityTimeout)); err != nil {
			return
		}
		raw, err := fr.ReadRaw()
		if err != nil {
			return
		}

		resp := s.dispatchRaw(sess, raw)

		payload, err := json.Marshal(resp)
		if err != nil {
			slog.Error("server: encoding response envelope", "error", err)
			return
		}
		if err := fw.WriteRaw(payload); err != nil {
			return
		}

		if !sess.ID.IsNil() {
			s.registry.add(sess.ID, conn)
		}
	}
}

// writeLoop drains sess.Queue until the session closes, writing each
// frame to fw. This is the only path broadcast/voice notifications reach
// the wire; request/response frames are written directly by handleConn.
func (s *Server) writeLoop(sess *signaling.Session, fw *frame.Writer) {
	for {
		select {
		case <-sess.Done():
			return
		case f, ok := <-sess.Queue.Outbound():
			if !ok {
				return
			}
			if err := fw.WriteRaw(f); err != nil {
				return
			}
		}
	}
}

// dispatchRaw unmarshals raw into a request envelope and dispatches it.
// A malformed envelope can't carry a request ID to echo, so it gets a
// zero-ID error response rather than closing the connection.
func (s *Server) dispatchRaw(sess *signaling.Session, raw []byte) signaling.Envelope {
	var req signaling.Envelope
	if err := json.Unmarshal(raw, &req); err != nil {
		payload, _ := json.Marshal(signaling.WireError{
			Code:    signaling.ErrCodeBadInput,
			Message: "malformed request envelope",
		})
		return signaling.Envelope{Kind: signaling.KindError, Payload: payload}
	}
	return s.dispatcher.Dispatch(sess, req)
}
