package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/domain/intent"
	"github.com/gurutvapay/checkout-api/internal/pkg/sessiontoken"
)

// SnapshotStore extends the write-side Store with historical lookup, backing
// queries for sessions no longer live in the registry.
type SnapshotStore interface {
	Store
	GetSnapshot(ctx context.Context, id uuid.UUID) (Snapshot, error)
}

// Service orchestrates session lifecycle: creation, lookup, signal routing
// and bridge attachment.
type Service struct {
	registry  *Registry
	hub       *Hub
	gateway   Gateway
	store     SnapshotStore
	tokens    *sessiontoken.Service
	intentCfg intent.Config
}

// NewService creates the session service
func NewService(registry *Registry, hub *Hub, gw Gateway, store SnapshotStore, tokens *sessiontoken.Service, intentCfg intent.Config) *Service {
	return &Service{
		registry:  registry,
		hub:       hub,
		gateway:   gw,
		store:     store,
		tokens:    tokens,
		intentCfg: intentCfg,
	}
}

// Create starts a new payment session and mints its bridge token
func (s *Service) Create(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	if _, exists := s.registry.GetByOrder(req.MerchantOrderID); exists {
		return nil, ErrDuplicateOrder
	}

	id := uuid.New()
	order := Order{
		Amount:          req.Amount,
		MerchantOrderID: req.MerchantOrderID,
		Channel:         req.Channel,
		Purpose:         req.Purpose,
		Customer: Customer{
			BuyerName: req.Customer.BuyerName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
			Address1:  req.Customer.Address1,
			Address2:  req.Customer.Address2,
		},
	}

	sess := New(id, order, Options{
		Gateway:      s.gateway,
		Store:        s.store,
		IntentConfig: s.intentCfg,
		OnClosed: func(closed *Session) {
			s.registry.Remove(closed.ID())
		},
	})

	if !s.registry.Add(sess) {
		return nil, ErrDuplicateOrder
	}

	token, err := s.tokens.Generate(id)
	if err != nil {
		s.registry.Remove(id)
		return nil, err
	}

	// Record the created row before the machine starts transitioning
	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, sess.Snapshot()); err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to persist new session")
		}
	}

	sess.Start()

	log.Info().
		Str("session_id", id.String()).
		Str("merchant_order_id", order.MerchantOrderID).
		Int64("amount", order.Amount).
		Msg("Payment session created")

	return SessionResponseFromSnapshot(sess.Snapshot(), token), nil
}

// Get returns the session view, falling back to the store for sessions that
// have already closed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	if sess, ok := s.registry.Get(id); ok {
		return sess.Snapshot(), nil
	}
	if s.store == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.store.GetSnapshot(ctx, id)
}

// Cancel requests cancellation. Live sessions cancel through the machine;
// orphaned non-terminal rows are marked cancelled directly.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if sess, ok := s.registry.Get(id); ok {
		sess.Cancel()
		return nil
	}
	if s.store == nil {
		return ErrSessionNotFound
	}
	snap, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snap.State.Terminal() {
		return ErrSessionTerminal
	}
	snap.State = StateCancelled
	snap.UpdatedAt = time.Now()
	return s.store.SaveSnapshot(ctx, snap)
}

// CheckStatus triggers a gateway status round-trip for a live session and
// returns the current view. Closed sessions return their stored snapshot.
func (s *Service) CheckStatus(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	if sess, ok := s.registry.Get(id); ok {
		sess.CheckStatus()
		return sess.Snapshot(), nil
	}
	if s.store == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.store.GetSnapshot(ctx, id)
}

// VerifyBridgeToken validates a bridge token and returns its session id
func (s *Service) VerifyBridgeToken(token string) (uuid.UUID, error) {
	return s.tokens.Verify(token)
}

// HandleFrame routes one bridge frame into the session
func (s *Service) HandleFrame(sessionID uuid.UUID, frame BridgeFrame) error {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	switch frame.Kind {
	case FrameConsole, FrameMessage:
		sess.Deliver(Parse(frame.Payload))

	case FrameNavigation:
		if sess.IsExternalURL(frame.Payload) {
			sess.Deliver(Signal{Kind: SignalExternalApp, URL: frame.Payload})
		} else {
			// In-surface navigation needs no host action, but completion
			// pages sometimes only announce themselves in the URL
			sess.Deliver(Parse(frame.Payload))
		}

	case FrameCancel:
		sess.Cancel()

	default:
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("kind", frame.Kind).
			Msg("Unknown bridge frame kind")
	}
	return nil
}

// Attach binds a bridge connection to its session. A session that already
// closed still gets its stored outcome replayed.
func (s *Service) Attach(ctx context.Context, conn *BridgeConn) error {
	if sess, ok := s.registry.Get(conn.SessionID); ok {
		sess.AttachBridge(conn, conn)
		return nil
	}
	if s.store == nil {
		return ErrSessionNotFound
	}
	snap, err := s.store.GetSnapshot(ctx, conn.SessionID)
	if err != nil {
		return err
	}
	if snap.State.Terminal() {
		out := snap.Outcome()
		s.hub.Send(conn.SessionID, HostCommand{Command: CommandOutcome, Outcome: &out})
		return nil
	}
	return ErrSessionNotFound
}

// BridgeClosed handles surface disconnect. Losing the surface mid-payment
// cancels the attempt, matching host-surface teardown semantics.
func (s *Service) BridgeClosed(conn *BridgeConn) {
	sess, ok := s.registry.Get(conn.SessionID)
	if !ok {
		return
	}
	sess.DetachBridge()
	if !sess.Snapshot().State.Terminal() {
		sess.Cancel()
	}
}
