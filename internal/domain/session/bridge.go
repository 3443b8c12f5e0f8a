package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gurutvapay/checkout-api/internal/domain/intent"
)

// Bridge frame kinds sent by the checkout surface
const (
	FrameHello      = "hello"
	FrameConsole    = "console"
	FrameMessage    = "message"
	FrameNavigation = "navigation"
	FrameCancel     = "cancel"
)

// BridgeConn is one surface's WebSocket connection. It implements both the
// Surface the session pushes commands to and the Launcher the intent resolver
// probes, using the handler set the surface reports in its hello frame.
type BridgeConn struct {
	SessionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte

	hub *Hub

	mu      sync.RWMutex
	schemes map[string]bool
}

// NewBridgeConn wraps an upgraded WebSocket connection
func NewBridgeConn(sessionID uuid.UUID, conn *websocket.Conn, hub *Hub) *BridgeConn {
	return &BridgeConn{
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		hub:       hub,
		schemes:   make(map[string]bool),
	}
}

// SetHandlers records the launchable URL schemes from the hello payload, a
// comma-separated list like "upi,phonepe,paytmmp,tez,intent".
func (b *BridgeConn) SetHandlers(payload string) {
	schemes := make(map[string]bool)
	for _, s := range strings.Split(payload, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			schemes[s] = true
		}
	}
	b.mu.Lock()
	b.schemes = schemes
	b.mu.Unlock()
}

// CanResolve reports whether the surface declared a handler for the scheme
func (b *BridgeConn) CanResolve(scheme string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schemes[strings.ToLower(scheme)]
}

// Launch hands the URL to its dedicated handler on the surface
func (b *BridgeConn) Launch(url string) error {
	if !b.CanResolve(intent.SchemeOf(url)) {
		return intent.ErrNoHandler
	}
	b.hub.Send(b.SessionID, HostCommand{Command: CommandLaunch, URL: url})
	return nil
}

// OpenExternal opens the URL as a generic external-view action
func (b *BridgeConn) OpenExternal(url string) error {
	b.hub.Send(b.SessionID, HostCommand{Command: CommandOpenExternal, URL: url})
	return nil
}

// Navigate instructs the surface to load the checkout URL
func (b *BridgeConn) Navigate(url string) {
	b.hub.Send(b.SessionID, HostCommand{Command: CommandNavigate, URL: url})
}

// Advisory shows a non-fatal notice on the surface
func (b *BridgeConn) Advisory(message string) {
	b.hub.Send(b.SessionID, HostCommand{Command: CommandAdvisory, Message: message})
}

// Completed delivers the terminal outcome to the surface
func (b *BridgeConn) Completed(out Outcome) {
	b.hub.Send(b.SessionID, HostCommand{Command: CommandOutcome, Outcome: &out})
}
