package handshake

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// SupportedVersion is the only Sec-WebSocket-Version the relay speaks.
const SupportedVersion = "13"

// acceptGUID is the fixed GUID from RFC 6455 section 1.3
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// State is the negotiation state of one connection.
type State int

const (
	AwaitingRequest State = iota
	Validating
	Upgraded
	Rejected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case AwaitingRequest:
		return "awaiting_request"
	case Validating:
		return "validating"
	case Upgraded:
		return "upgraded"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Upgraded || s == Rejected
}

var (
	ErrMalformedRequest   = errors.New("malformed HTTP request")
	ErrMissingUpgrade     = errors.New("missing or invalid Upgrade header (expected websocket)")
	ErrPathMismatch       = errors.New("request path does not match WebSocket endpoint")
	ErrUnsupportedVersion = errors.New("unsupported Sec-WebSocket-Version")
	ErrMissingKey         = errors.New("missing Sec-WebSocket-Key header")
	ErrAlreadyNegotiated  = errors.New("handshake already negotiated")
)

// Context is the handshake state retained by an upgraded connection.
type Context struct {
	Path         string
	Version      string
	Key          string
	Accept       string
	Subprotocols []string
}

// Result is the outcome of a negotiation.
type Result struct {
	State   State
	Status  int
	Body    string
	Header  http.Header
	Err     error
	Context *Context
}

// Upgraded reports whether the request may proceed to the upgrade exchange.
func (r Result) Upgraded() bool {
	return r.State == Upgraded
}

// Write sends a rejection response as plain text and asks the transport to
// close the connection once it is flushed. It does nothing for upgraded
// results; the WebSocket codec writes the 101 response itself.
func (r Result) Write(w http.ResponseWriter) {
	if r.Upgraded() {
		return
	}
	h := w.Header()
	for k, vs := range r.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Connection", "close")
	w.WriteHeader(r.Status)
	_, _ = fmt.Fprintln(w, r.Body)
}

func reject(status int, err error) Result {
	return Result{
		State:  Rejected,
		Status: status,
		Body:   err.Error(),
		Err:    err,
	}
}

// Negotiator validates upgrade requests against a fixed endpoint path.
type Negotiator struct {
	path string
}

// NewNegotiator creates a negotiator for the given endpoint path.
// An empty path accepts "/".
func NewNegotiator(path string) *Negotiator {
	if path == "" {
		path = "/"
	}
	return &Negotiator{path: path}
}

// Path returns the endpoint path.
func (n *Negotiator) Path() string {
	return n.path
}

// Begin starts the negotiation for a newly accepted connection.
func (n *Negotiator) Begin() *Negotiation {
	return &Negotiation{negotiator: n, state: AwaitingRequest}
}

// Negotiation is the per-connection handshake state machine.
// It is not safe for concurrent use; a connection's requests are handled in
// order by a single goroutine.
type Negotiation struct {
	negotiator *Negotiator
	state      State
	context    *Context
}

// State returns the current state.
func (n *Negotiation) State() State {
	return n.state
}

// Context returns the retained handshake context, or nil unless upgraded.
func (n *Negotiation) Context() *Context {
	return n.context
}

// Handle validates a complete HTTP request. decodeErr is the error reported
// by the HTTP decoder, if any.
func (n *Negotiation) Handle(req *http.Request, decodeErr error) Result {
	if n.state != AwaitingRequest {
		return reject(http.StatusBadRequest,
			fmt.Errorf("%w (state %s)", ErrAlreadyNegotiated, n.state))
	}
	n.state = Validating

	res := n.validate(req, decodeErr)
	n.state = res.State
	if res.Upgraded() {
		n.context = res.Context
	}
	return res
}

func (n *Negotiation) validate(req *http.Request, decodeErr error) Result {
	if decodeErr != nil {
		return reject(http.StatusBadRequest, fmt.Errorf("%w: %v", ErrMalformedRequest, decodeErr))
	}
	if req == nil {
		return reject(http.StatusBadRequest, fmt.Errorf("%w: no request", ErrMalformedRequest))
	}

	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return reject(http.StatusBadRequest, ErrMissingUpgrade)
	}

	if req.URL == nil || req.URL.Path != n.negotiator.path {
		path := ""
		if req.URL != nil {
			path = req.URL.Path
		}
		return reject(http.StatusBadRequest,
			fmt.Errorf("%w: %q (expected %q)", ErrPathMismatch, path, n.negotiator.path))
	}

	ctx, res, ok := n.newContext(req)
	if !ok {
		return res
	}

	return Result{
		State:   Upgraded,
		Status:  http.StatusSwitchingProtocols,
		Context: ctx,
	}
}

// newContext builds the handshake context; it fails the same way a
// handshaker factory does when the client speaks another protocol version.
func (n *Negotiation) newContext(req *http.Request) (*Context, Result, bool) {
	version := req.Header.Get("Sec-WebSocket-Version")
	if version != SupportedVersion {
		res := reject(http.StatusUpgradeRequired,
			fmt.Errorf("%w: %q (expected %s)", ErrUnsupportedVersion, version, SupportedVersion))
		res.Header = http.Header{"Sec-Websocket-Version": {SupportedVersion}}
		return nil, res, false
	}

	key := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, reject(http.StatusBadRequest, ErrMissingKey), false
	}

	return &Context{
		Path:         n.negotiator.path,
		Version:      version,
		Key:          key,
		Accept:       ComputeAccept(key),
		Subprotocols: websocket.Subprotocols(req),
	}, Result{}, true
}

// ComputeAccept returns the Sec-WebSocket-Accept value for a client key.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
