package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/speakeasy-rtc/speakeasy/internal/permission"
)

// CommandExecutor runs one command against sess and returns the response
// payload (marshaled into the Response envelope) or a WireError. This is
// the "command-executor trait (Command, Session) → CommandResult" of §6,
// shared by the TCP commander and any external REST/gRPC commander.
type CommandExecutor func(sess *Session, req Envelope) (response any, wireErr *WireError)

// handlerEntry pairs a CommandExecutor with the permission (if any) its
// command requires, checked after the state precondition (§4.4 handler
// precondition order: (a) state, (b) permission, (c) entity invariants).
type handlerEntry struct {
	fn   CommandExecutor
	perm string // empty means "no permission check, entity invariants only"
}

// Dispatcher routes incoming request envelopes to registered command
// handlers, enforcing the precondition order every command shares.
// Dispatch is called serially by one connection's read loop; it does not
// itself serialize concurrent calls for the same session, matching
// §4.4's "concurrent per-connection dispatch is forbidden" rule being
// the caller's responsibility, not the Dispatcher's.
type Dispatcher struct {
	handlers map[string]handlerEntry
	perms    *permission.Resolver
}

// NewDispatcher builds an empty Dispatcher backed by resolver for
// permission checks.
func NewDispatcher(resolver *permission.Resolver) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]handlerEntry),
		perms:    resolver,
	}
}

// Register binds cmd to fn. If perm is non-empty, Dispatch checks it via
// the permission resolver before invoking fn, using the session's
// current channel as scope.
func (d *Dispatcher) Register(cmd string, fn CommandExecutor, perm string) {
	d.handlers[cmd] = handlerEntry{fn: fn, perm: perm}
}

// Dispatch routes req through the registered handler for req.Cmd,
// returning the envelope to send back (Response or Error). Unknown
// commands produce a structured error without closing the connection
// (§4.4).
func (d *Dispatcher) Dispatch(sess *Session, req Envelope) Envelope {
	entry, ok := d.handlers[req.Cmd]
	if !ok {
		return errorEnvelope(req.ID, ErrCodeBadInput, fmt.Sprintf("unknown command %q", req.Cmd))
	}

	if err := d.checkState(sess, req.Cmd); err != nil {
		return errorEnvelope(req.ID, ErrCodeAuth, err.Error())
	}

	if entry.perm != "" {
		allowed, err := d.checkPermission(sess, entry.perm)
		if err != nil {
			slog.Error("signaling: permission check failed", "cmd", req.Cmd, "error", err)
			return errorEnvelope(req.ID, ErrCodeDB, "permission check failed")
		}
		if !allowed {
			return errorEnvelope(req.ID, ErrCodeAuthz, fmt.Sprintf("missing permission %q", entry.perm))
		}
	}

	resp, wireErr := entry.fn(sess, req)
	if wireErr != nil {
		return errorEnvelope(req.ID, wireErr.Code, wireErr.Message)
	}

	envelope, err := responseEnvelope(req.ID, req.Cmd, resp)
	if err != nil {
		slog.Error("signaling: marshaling response", "cmd", req.Cmd, "error", err)
		return errorEnvelope(req.ID, ErrCodeInternal, "internal error")
	}
	return envelope
}

// checkState enforces precondition (a): pre-auth commands always run;
// everything else requires at least Authenticated.
func (d *Dispatcher) checkState(sess *Session, cmd string) error {
	if IsPreAuth(cmd) {
		return nil
	}
	switch sess.State() {
	case StateAuthenticated, StateInChannel:
		return nil
	default:
		return fmt.Errorf("command %q requires authentication", cmd)
	}
}

// checkPermission enforces precondition (b) via §4.3's layered resolver,
// scoped to the session's current channel (zero value means server-wide).
func (d *Dispatcher) checkPermission(sess *Session, perm string) (bool, error) {
	res, err := d.perms.Can(permission.Query{
		User:    sess.ID,
		Channel: sess.Channel(),
		Perm:    perm,
	})
	if err != nil {
		return false, err
	}
	return res.Decision != permission.Deny, nil
}

// DecodePayload is a small helper handlers use to unmarshal req.Payload
// into a concrete request struct.
func DecodePayload[T any](req Envelope) (T, error) {
	var v T
	if len(req.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(req.Payload, &v); err != nil {
		return v, fmt.Errorf("signaling: decoding payload for %q: %w", req.Cmd, err)
	}
	return v, nil
}
