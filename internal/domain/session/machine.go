package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/domain/intent"
	"github.com/gurutvapay/checkout-api/internal/pkg/gateway"
)

// Gateway is the payment API contract the engine depends on. Transport
// mechanics live in internal/pkg/gateway.
type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	CheckStatus(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error)
}

// Surface is the host side of a checkout session: wherever the embedded
// browser lives. Implemented by the bridge connection.
type Surface interface {
	// Navigate instructs the surface to load the checkout URL
	Navigate(url string)
	// Advisory shows a non-fatal notice (toast equivalent)
	Advisory(message string)
	// Completed delivers the terminal outcome
	Completed(out Outcome)
}

// AppResolver dispatches external-app launch requests.
// *intent.Resolver satisfies it.
type AppResolver interface {
	Resolve(ctx context.Context, url, appHint string) intent.LaunchResult
}

// Store persists session state transitions. Persistence is best-effort; a
// store failure never stalls the session.
type Store interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Options configures a session state machine
type Options struct {
	Gateway      Gateway
	Store        Store
	IntentConfig intent.Config
	// OnClosed runs once, on the control loop, after the terminal outcome
	// has been delivered and all outstanding work has drained
	OnClosed func(*Session)
}

// Control loop events. All state mutation happens on the loop; workers only
// post results back.
type event any

type beginEvent struct{}
type signalEvent struct{ sig Signal }
type cancelEvent struct{}
type checkStatusEvent struct{}

type attachEvent struct {
	surface  Surface
	launcher intent.Launcher
}
type detachEvent struct{}

type initiateResult struct {
	resp *gateway.InitiateResponse
	err  error
}

type statusResult struct {
	resp *gateway.StatusResponse
	err  error
	// confirm marks the automatic post-success backfill round-trip, which
	// may apply fields after the session has gone terminal
	confirm bool
}

type launchResult struct {
	res intent.LaunchResult
}

// Session owns one payment attempt from creation through its terminal
// outcome. A single control goroutine serializes every state transition;
// network calls and launch probes run in workers that post results back as
// events.
type Session struct {
	id    uuid.UUID
	order Order

	gateway   Gateway
	store     Store
	intentCfg intent.Config
	onClosed  func(*Session)

	events chan event
	ctx    context.Context
	cancel context.CancelFunc

	// snapshot fields, guarded by mu; written only from the control loop
	mu         sync.RWMutex
	state      State
	paymentURL string
	txnID      string
	gwOrderID  string
	lastError  string
	createdAt  time.Time
	updatedAt  time.Time

	// control-loop-local, never touched elsewhere
	surface    Surface
	resolver   AppResolver
	pendingOps int
	finished   bool
}

// New creates a session in StateCreated
func New(id uuid.UUID, order Order, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		id:        id,
		order:     order,
		gateway:   opts.Gateway,
		store:     opts.Store,
		intentCfg: opts.IntentConfig,
		onClosed:  opts.OnClosed,
		events:    make(chan event, 64),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateCreated,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID { return s.id }

// Order returns the immutable order description
func (s *Session) Order() Order { return s.order }

// Start launches the control loop and begins the payment
func (s *Session) Start() {
	go s.run()
	s.post(beginEvent{})
}

// Deliver feeds one normalized signal into the session
func (s *Session) Deliver(sig Signal) {
	s.post(signalEvent{sig: sig})
}

// Cancel requests host-surface cancellation
func (s *Session) Cancel() {
	s.post(cancelEvent{})
}

// CheckStatus triggers an explicit gateway status round-trip
func (s *Session) CheckStatus() {
	s.post(checkStatusEvent{})
}

// AttachBridge binds the session to its host surface. The launcher is the
// surface's external-app capability; a fresh resolver is bound to it.
func (s *Session) AttachBridge(surface Surface, launcher intent.Launcher) {
	s.post(attachEvent{surface: surface, launcher: launcher})
}

// DetachBridge unbinds the host surface
func (s *Session) DetachBridge() {
	s.post(detachEvent{})
}

// Close tears the session down without delivering an outcome
func (s *Session) Close() {
	s.cancel()
}

// Snapshot returns a point-in-time copy of session state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:              s.id,
		MerchantOrderID: s.order.MerchantOrderID,
		Amount:          s.order.Amount,
		State:           s.state,
		PaymentURL:      s.paymentURL,
		TransactionID:   s.txnID,
		GatewayOrderID:  s.gwOrderID,
		LastError:       s.lastError,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

// IsExternalURL reports whether a navigation URL should be handed off to an
// external app. Safe before a bridge is attached.
func (s *Session) IsExternalURL(url string) bool {
	return s.intentCfg.IsExternalURL(url)
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		log.Debug().Str("session_id", s.id.String()).Msg("Event dropped, session closed")
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case beginEvent:
		s.handleBegin()
	case signalEvent:
		s.handleSignal(ev.sig)
	case cancelEvent:
		s.handleCancel()
	case checkStatusEvent:
		s.handleCheckStatus()
	case attachEvent:
		s.handleAttach(ev)
	case detachEvent:
		s.surface = nil
		s.resolver = nil
	case initiateResult:
		s.handleInitiateResult(ev)
	case statusResult:
		s.handleStatusResult(ev)
	case launchResult:
		s.handleLaunchResult(ev)
	}
}

func (s *Session) handleBegin() {
	if s.currentState() != StateCreated {
		return
	}
	s.setState(StateInitiating)
	s.persist()

	req := gateway.InitiateRequest{
		Amount:          s.order.Amount,
		MerchantOrderID: s.order.MerchantOrderID,
		Channel:         s.order.Channel,
		Purpose:         s.order.Purpose,
		Customer: gateway.Customer{
			BuyerName: s.order.Customer.BuyerName,
			Email:     s.order.Customer.Email,
			Phone:     s.order.Customer.Phone,
			Address1:  s.order.Customer.Address1,
			Address2:  s.order.Customer.Address2,
		},
	}
	s.startWorker(func(ctx context.Context) event {
		resp, err := s.gateway.Initiate(ctx, req)
		return initiateResult{resp: resp, err: err}
	})
}

func (s *Session) handleInitiateResult(ev initiateResult) {
	s.pendingOps--
	if s.currentState().Terminal() {
		log.Debug().Str("session_id", s.id.String()).Msg("Discarding stale initiate result")
		s.maybeFinish()
		return
	}
	if ev.err != nil {
		s.fail(ev.err.Error())
		return
	}

	s.mu.Lock()
	s.paymentURL = ev.resp.PaymentURL
	s.mu.Unlock()
	s.setState(StateAwaitingCheckout)
	s.persist()

	if s.surface != nil {
		s.surface.Navigate(ev.resp.PaymentURL)
	}
}

func (s *Session) handleSignal(sig Signal) {
	state := s.currentState()
	if state.Terminal() {
		// Duplicate completion messages are common: the same outcome is
		// often announced via both a console line and a redirect
		log.Debug().
			Str("session_id", s.id.String()).
			Str("kind", string(sig.Kind)).
			Msg("Signal ignored, session already terminal")
		return
	}

	switch sig.Kind {
	case SignalSuccess:
		s.succeed(sig.TransactionID, sig.OrderID)

	case SignalFailure:
		s.fail(sig.Error)

	case SignalPending:
		if s.surface != nil {
			s.surface.Advisory("payment pending")
		}

	case SignalExternalApp:
		s.handleExternalApp(state, sig)

	default:
		log.Debug().Str("session_id", s.id.String()).Msg("Unrecognized checkout message")
	}
}

func (s *Session) handleExternalApp(state State, sig Signal) {
	switch state {
	case StateAwaitingCheckout:
		s.setState(StateResolvingExternalApp)
		s.persist()
	case StateResolvingExternalApp:
		// repeated launch attempts are expected, resolver dedupes
	default:
		log.Debug().
			Str("session_id", s.id.String()).
			Str("state", string(state)).
			Msg("External app request ignored in current state")
		return
	}

	if s.resolver == nil {
		log.Warn().Str("session_id", s.id.String()).Msg("External app request with no surface attached")
		return
	}

	resolver, url, hint := s.resolver, sig.URL, sig.AppHint
	s.startWorker(func(ctx context.Context) event {
		return launchResult{res: resolver.Resolve(ctx, url, hint)}
	})
}

func (s *Session) handleLaunchResult(ev launchResult) {
	s.pendingOps--
	if s.currentState().Terminal() {
		s.maybeFinish()
		return
	}

	switch ev.res.Status {
	case intent.StatusLaunched:
		log.Info().
			Str("session_id", s.id.String()).
			Str("app", ev.res.App).
			Msg("External payment app launched")
	case intent.StatusNoHandler:
		// Advisory only; the session stays in ResolvingExternalApp
		// awaiting a follow-up signal or caller retry/cancel
		if s.surface != nil {
			s.surface.Advisory("no app available to handle payment link")
		}
	case intent.StatusSuppressed:
		log.Debug().
			Str("session_id", s.id.String()).
			Str("reason", ev.res.Reason).
			Msg("Launch attempt suppressed")
	}
}

func (s *Session) handleCheckStatus() {
	if s.currentState().Terminal() {
		return
	}
	// A poll that lands before initiate settles must not outrank the
	// pending AwaitingCheckout transition, or the forward-only guard
	// would later reject it and strand the checkout
	rank := s.currentState().rank()
	if rank >= StateAwaitingCheckout.rank() && rank < StateConfirming.rank() {
		s.setState(StateConfirming)
		s.persist()
	}
	merchantOrderID := s.order.MerchantOrderID
	s.startWorker(func(ctx context.Context) event {
		resp, err := s.gateway.CheckStatus(ctx, merchantOrderID)
		return statusResult{resp: resp, err: err}
	})
}

func (s *Session) handleStatusResult(ev statusResult) {
	s.pendingOps--

	if ev.confirm {
		// Post-success backfill: overwrites fields the confirmation
		// provides, never regresses state
		if ev.err != nil {
			log.Warn().Err(ev.err).Str("session_id", s.id.String()).Msg("Post-success confirmation failed")
		} else {
			s.applyStatusFields(ev.resp)
		}
		s.maybeFinish()
		return
	}

	if s.currentState().Terminal() {
		log.Debug().Str("session_id", s.id.String()).Msg("Discarding stale status result")
		s.maybeFinish()
		return
	}
	if ev.err != nil {
		s.fail(ev.err.Error())
		return
	}

	low := strings.ToLower(ev.resp.Status)
	switch {
	case strings.Contains(low, "success"):
		s.applyStatusFields(ev.resp)
		s.succeed("", "")
	case strings.Contains(low, "fail"), strings.Contains(low, "error"), strings.Contains(low, "cancel"):
		s.fail("status: " + ev.resp.Status)
	default:
		// still pending on the gateway side, stay in Confirming
		if s.surface != nil {
			s.surface.Advisory("payment pending")
		}
	}
}

func (s *Session) handleCancel() {
	if s.currentState().Terminal() {
		return
	}
	s.setState(StateCancelled)
	s.persist()
	s.deliverOutcome()
	s.maybeFinish()
}

func (s *Session) handleAttach(ev attachEvent) {
	s.surface = ev.surface
	s.resolver = intent.NewResolver(s.intentCfg, ev.launcher)

	snap := s.Snapshot()
	switch {
	case snap.State.Terminal():
		// Late attach still gets the outcome
		s.surface.Completed(snap.Outcome())
	case snap.State == StateAwaitingCheckout && snap.PaymentURL != "":
		s.surface.Navigate(snap.PaymentURL)
	}
}

// succeed moves the session to Succeeded, delivers the outcome, and kicks
// off the field backfill round-trip when the signal carried no ids.
func (s *Session) succeed(txnID, orderID string) {
	s.mu.Lock()
	if txnID != "" {
		s.txnID = txnID
	}
	if orderID != "" {
		s.gwOrderID = orderID
	}
	needBackfill := s.txnID == "" || s.gwOrderID == ""
	s.mu.Unlock()

	s.setState(StateSucceeded)
	s.persist()
	s.deliverOutcome()

	if needBackfill && s.gateway != nil {
		merchantOrderID := s.order.MerchantOrderID
		s.startWorker(func(ctx context.Context) event {
			resp, err := s.gateway.CheckStatus(ctx, merchantOrderID)
			return statusResult{resp: resp, err: err, confirm: true}
		})
		return
	}
	s.maybeFinish()
}

func (s *Session) fail(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()

	s.setState(StateFailed)
	s.persist()
	s.deliverOutcome()
	s.maybeFinish()
}

func (s *Session) applyStatusFields(resp *gateway.StatusResponse) {
	if resp == nil {
		return
	}
	s.mu.Lock()
	if resp.TransactionID != "" {
		s.txnID = resp.TransactionID
	}
	if resp.OrderID != "" {
		s.gwOrderID = resp.OrderID
	}
	s.updatedAt = time.Now()
	s.mu.Unlock()
	s.persist()
}

func (s *Session) deliverOutcome() {
	if s.surface != nil {
		s.surface.Completed(s.Snapshot().Outcome())
	}
}

// maybeFinish tears the session down once it is terminal and no worker
// results remain outstanding.
func (s *Session) maybeFinish() {
	if s.finished || s.pendingOps > 0 || !s.currentState().Terminal() {
		return
	}
	s.finished = true
	if s.onClosed != nil {
		s.onClosed(s)
	}
	s.cancel()
}

func (s *Session) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState enforces the forward-only invariant: transitions go forward or to
// a terminal state, never backward.
func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	if !next.Terminal() && next.rank() <= s.state.rank() {
		log.Warn().
			Str("session_id", s.id.String()).
			Str("from", string(s.state)).
			Str("to", string(next)).
			Msg("Backward transition rejected")
		return
	}
	log.Debug().
		Str("session_id", s.id.String()).
		Str("from", string(s.state)).
		Str("to", string(next)).
		Msg("Session state transition")
	s.state = next
	s.updatedAt = time.Now()
}

// startWorker runs fn off the control loop and posts its event back.
// The session context carries cancellation: results of workers outliving the
// session are dropped in post.
func (s *Session) startWorker(fn func(ctx context.Context) event) {
	s.pendingOps++
	go func() {
		s.post(fn(s.ctx))
	}()
}

// persist writes the snapshot best-effort. Runs detached so a slow store
// never blocks signal processing; uses a fresh context so terminal states
// are recorded even as the session winds down.
func (s *Session) persist() {
	if s.store == nil {
		return
	}
	snap := s.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			log.Error().Err(err).
				Str("session_id", snap.ID.String()).
				Str("merchant_order_id", snap.MerchantOrderID).
				Msg("Failed to persist session state")
		}
	}()
}
