package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gurutvapay/checkout-api/internal/domain/intent"
	"github.com/gurutvapay/checkout-api/internal/pkg/gateway"
)

type fakeGateway struct {
	initiate    func(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	checkStatus func(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error)
}

func (g *fakeGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	if g.initiate == nil {
		return &gateway.InitiateResponse{PaymentURL: "https://pay.example/checkout"}, nil
	}
	return g.initiate(ctx, req)
}

func (g *fakeGateway) CheckStatus(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error) {
	if g.checkStatus == nil {
		return &gateway.StatusResponse{Status: "pending"}, nil
	}
	return g.checkStatus(ctx, merchantOrderID)
}

type fakeSurface struct {
	mu         sync.Mutex
	navigated  []string
	advisories []string
	outcomes   []Outcome
}

func (s *fakeSurface) Navigate(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
}

func (s *fakeSurface) Advisory(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisories = append(s.advisories, message)
}

func (s *fakeSurface) Completed(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
}

func (s *fakeSurface) outcomeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

func (s *fakeSurface) lastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return Outcome{}
	}
	return s.outcomes[len(s.outcomes)-1]
}

func (s *fakeSurface) navigatedTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

type fakeLauncher struct {
	mu       sync.Mutex
	schemes  map[string]bool
	launched []string
}

func (l *fakeLauncher) CanResolve(scheme string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.schemes[scheme]
}

func (l *fakeLauncher) Launch(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, url)
	return nil
}

func (l *fakeLauncher) OpenExternal(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, "external:"+url)
	return nil
}

func (l *fakeLauncher) launchedURLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launched...)
}

func testOrder() Order {
	return Order{
		Amount:          10000,
		MerchantOrderID: "ord-test-1",
		Channel:         "android",
		Customer:        Customer{BuyerName: "Test Buyer", Email: "buyer@example.com"},
	}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, at %s", want, s.Snapshot().State)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestInitiateSuccessNavigatesSurface(t *testing.T) {
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: &fakeGateway{}})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	defer s.Close()

	waitForState(t, s, StateAwaitingCheckout)
	waitFor(t, func() bool { return len(surface.navigatedTo()) > 0 }, "surface never navigated")

	if got := surface.navigatedTo()[0]; got != "https://pay.example/checkout" {
		t.Fatalf("navigated to %q", got)
	}
	if s.Snapshot().PaymentURL != "https://pay.example/checkout" {
		t.Fatalf("payment url not recorded: %+v", s.Snapshot())
	}
}

func TestInitiateErrorFailsSession(t *testing.T) {
	gw := &fakeGateway{
		initiate: func(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
			return nil, errors.New(`gateway returned status 500: {"error":"down"}`)
		},
	}
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()

	waitForState(t, s, StateFailed)

	snap := s.Snapshot()
	if snap.LastError == "" {
		t.Fatal("expected last error to be set")
	}
	waitFor(t, func() bool { return surface.outcomeCount() == 1 }, "outcome never delivered")
	out := surface.lastOutcome()
	if out.State != StateFailed || out.Error != snap.LastError {
		t.Fatalf("wrong outcome: %+v", out)
	}
}

func TestSuccessSignalWithIDs(t *testing.T) {
	surface := &fakeSurface{}
	closed := make(chan struct{})
	s := New(uuid.New(), testOrder(), Options{
		Gateway:  &fakeGateway{},
		OnClosed: func(*Session) { close(closed) },
	})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalSuccess, TransactionID: "txn-1", OrderID: "gw-1"})
	waitForState(t, s, StateSucceeded)

	snap := s.Snapshot()
	if snap.TransactionID != "txn-1" || snap.GatewayOrderID != "gw-1" {
		t.Fatalf("ids not recorded: %+v", snap)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session never closed after terminal outcome")
	}
}

func TestDuplicateSuccessDeliversOneOutcome(t *testing.T) {
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: &fakeGateway{}})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalSuccess, TransactionID: "txn-1", OrderID: "gw-1"})
	s.Deliver(Signal{Kind: SignalSuccess, TransactionID: "txn-1", OrderID: "gw-1"})
	s.Deliver(Signal{Kind: SignalFailure, Error: "late failure"})
	waitForState(t, s, StateSucceeded)

	waitFor(t, func() bool { return surface.outcomeCount() >= 1 }, "outcome never delivered")
	// Give the duplicate signals time to be (ignored and) drained
	time.Sleep(50 * time.Millisecond)

	if n := surface.outcomeCount(); n != 1 {
		t.Fatalf("expected 1 outcome, got %d", n)
	}
	if s.Snapshot().State != StateSucceeded {
		t.Fatalf("terminal state regressed to %s", s.Snapshot().State)
	}
}

func TestSuccessWithoutIDsBackfills(t *testing.T) {
	gw := &fakeGateway{
		checkStatus: func(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error) {
			return &gateway.StatusResponse{Status: "success", TransactionID: "txn-bf", OrderID: "gw-bf"}, nil
		},
	}
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalSuccess})
	waitForState(t, s, StateSucceeded)
	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.TransactionID == "txn-bf" && snap.GatewayOrderID == "gw-bf"
	}, "ids never backfilled")

	if s.Snapshot().State != StateSucceeded {
		t.Fatalf("backfill changed state to %s", s.Snapshot().State)
	}
}

func TestCancelDeliversCancelledOutcome(t *testing.T) {
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: &fakeGateway{}})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Cancel()
	waitForState(t, s, StateCancelled)
	waitFor(t, func() bool { return surface.outcomeCount() == 1 }, "outcome never delivered")

	if out := surface.lastOutcome(); out.State != StateCancelled {
		t.Fatalf("wrong outcome: %+v", out)
	}
}

func TestCheckStatusConfirmsThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	status := "pending"
	gw := &fakeGateway{
		checkStatus: func(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			return &gateway.StatusResponse{Status: status, TransactionID: "txn-c", OrderID: "gw-c"}, nil
		},
	}
	surface := &fakeSurface{}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.AttachBridge(surface, &fakeLauncher{})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.CheckStatus()
	waitForState(t, s, StateConfirming)

	// A pending answer keeps the session pollable
	time.Sleep(50 * time.Millisecond)
	if got := s.Snapshot().State; got != StateConfirming {
		t.Fatalf("expected to stay in confirming, got %s", got)
	}

	mu.Lock()
	status = "success"
	mu.Unlock()

	s.CheckStatus()
	waitForState(t, s, StateSucceeded)

	snap := s.Snapshot()
	if snap.TransactionID != "txn-c" || snap.GatewayOrderID != "gw-c" {
		t.Fatalf("ids not applied: %+v", snap)
	}
}

func TestCheckStatusFailureFailsSession(t *testing.T) {
	gw := &fakeGateway{
		checkStatus: func(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error) {
			return &gateway.StatusResponse{Status: "failed"}, nil
		},
	}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.CheckStatus()
	waitForState(t, s, StateFailed)

	if snap := s.Snapshot(); snap.LastError == "" {
		t.Fatalf("expected status error recorded: %+v", snap)
	}
}

func TestCheckStatusDuringInitiateKeepsCheckoutFlow(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		initiate: func(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
			<-release
			return &gateway.InitiateResponse{PaymentURL: "https://pay.example/checkout"}, nil
		},
	}
	surface := &fakeSurface{}
	launcher := &fakeLauncher{schemes: map[string]bool{"upi": true}}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.AttachBridge(surface, launcher)
	s.Start()
	defer s.Close()

	// Poll while the initiate call is still in flight
	waitForState(t, s, StateInitiating)
	s.CheckStatus()
	time.Sleep(20 * time.Millisecond)
	if got := s.Snapshot().State; got != StateInitiating {
		t.Fatalf("poll outranked initiate: %s", got)
	}
	close(release)

	waitForState(t, s, StateAwaitingCheckout)
	waitFor(t, func() bool { return len(surface.navigatedTo()) > 0 }, "surface never navigated")

	s.Deliver(Signal{Kind: SignalExternalApp, URL: "upi://pay?pa=x@bank"})
	waitForState(t, s, StateResolvingExternalApp)
	waitFor(t, func() bool { return len(launcher.launchedURLs()) > 0 }, "app never launched")
}

func TestExternalAppSignalLaunches(t *testing.T) {
	surface := &fakeSurface{}
	launcher := &fakeLauncher{schemes: map[string]bool{"upi": true}}
	s := New(uuid.New(), testOrder(), Options{Gateway: &fakeGateway{}})
	s.AttachBridge(surface, launcher)
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalExternalApp, URL: "upi://pay?pa=m@bank"})
	waitForState(t, s, StateResolvingExternalApp)
	waitFor(t, func() bool { return len(launcher.launchedURLs()) > 0 }, "launcher never invoked")

	if got := launcher.launchedURLs()[0]; got != "upi://pay?pa=m@bank" {
		t.Fatalf("launched %q", got)
	}
}

func TestExternalAppNoHandlerAdvises(t *testing.T) {
	surface := &fakeSurface{}
	// No schemes at all and external open failing means nothing can handle it
	launcher := &failingLauncher{}
	s := New(uuid.New(), testOrder(), Options{Gateway: &fakeGateway{}})
	s.AttachBridge(surface, launcher)
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalExternalApp, URL: "upi://pay?pa=m@bank"})
	waitFor(t, func() bool {
		surface.mu.Lock()
		defer surface.mu.Unlock()
		return len(surface.advisories) > 0
	}, "advisory never shown")

	if got := s.Snapshot().State; got != StateResolvingExternalApp {
		t.Fatalf("expected session to keep waiting, got %s", got)
	}
}

type failingLauncher struct{}

func (failingLauncher) CanResolve(string) bool    { return false }
func (failingLauncher) Launch(string) error       { return intent.ErrNoHandler }
func (failingLauncher) OpenExternal(string) error { return intent.ErrNoHandler }

func TestLateAttachReplaysOutcome(t *testing.T) {
	// Hold the backfill round-trip open so the session stays alive after
	// going terminal, then attach and expect the outcome replay
	release := make(chan struct{})
	gw := &fakeGateway{
		checkStatus: func(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error) {
			<-release
			return &gateway.StatusResponse{Status: "success", TransactionID: "txn-1", OrderID: "gw-1"}, nil
		},
	}
	s := New(uuid.New(), testOrder(), Options{Gateway: gw})
	s.Start()
	waitForState(t, s, StateAwaitingCheckout)

	s.Deliver(Signal{Kind: SignalSuccess})
	waitForState(t, s, StateSucceeded)

	surface := &fakeSurface{}
	s.AttachBridge(surface, &fakeLauncher{})
	waitFor(t, func() bool { return surface.outcomeCount() == 1 }, "outcome never replayed")

	if out := surface.lastOutcome(); out.State != StateSucceeded {
		t.Fatalf("wrong replayed outcome: %+v", out)
	}
	close(release)
}
