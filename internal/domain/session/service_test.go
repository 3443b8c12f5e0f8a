package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gurutvapay/checkout-api/internal/domain/intent"
	"github.com/gurutvapay/checkout-api/internal/pkg/sessiontoken"
)

type memStore struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]Snapshot
}

func newMemStore() *memStore {
	return &memStore{snaps: map[uuid.UUID]Snapshot{}}
}

func (s *memStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

func (s *memStore) GetSnapshot(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

func newTestService(t *testing.T, store SnapshotStore) (*Service, *Registry) {
	t.Helper()
	registry := NewRegistry()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	t.Cleanup(registry.CloseAll)

	tokens := sessiontoken.NewService("test-secret", time.Minute)
	svc := NewService(registry, hub, &fakeGateway{}, store, tokens, intent.DefaultConfig())
	return svc, registry
}

func createRequestFixture() *CreateSessionRequest {
	return &CreateSessionRequest{
		Amount:          10000,
		MerchantOrderID: "ord-test-1",
		Channel:         "android",
		Customer:        CustomerRequest{BuyerName: "Test Buyer"},
	}
}

func TestServiceCreateMintsToken(t *testing.T) {
	svc, registry := newTestService(t, newMemStore())

	resp, err := svc.Create(context.Background(), createRequestFixture())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.BridgeToken == "" {
		t.Fatal("expected bridge token")
	}

	sessionID, err := svc.VerifyBridgeToken(resp.BridgeToken)
	if err != nil || sessionID != resp.ID {
		t.Fatalf("token not bound to session: %v %s", err, sessionID)
	}

	sess, ok := registry.Get(resp.ID)
	if !ok {
		t.Fatal("session not registered")
	}
	waitForState(t, sess, StateAwaitingCheckout)
}

func TestServiceCreateDuplicateOrder(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	if _, err := svc.Create(context.Background(), createRequestFixture()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), createRequestFixture()); err != ErrDuplicateOrder {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
}

func TestServiceFrameDrivesSessionToOutcome(t *testing.T) {
	store := newMemStore()
	svc, registry := newTestService(t, store)

	resp, err := svc.Create(context.Background(), createRequestFixture())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, _ := registry.Get(resp.ID)
	waitForState(t, sess, StateAwaitingCheckout)

	err = svc.HandleFrame(resp.ID, BridgeFrame{
		Kind:    FrameConsole,
		Payload: `{"status":"success","transactionId":"txn-1","orderId":"gw-1"}`,
	})
	if err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	// Session closes itself after delivering the outcome, then lookups fall
	// back to the persisted snapshot
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, live := registry.Get(resp.ID); !live {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, live := registry.Get(resp.ID); live {
		t.Fatal("session never left the registry")
	}

	var snap Snapshot
	for time.Now().Before(deadline.Add(time.Second)) {
		snap, err = svc.Get(context.Background(), resp.ID)
		if err == nil && snap.State == StateSucceeded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap.State != StateSucceeded || snap.TransactionID != "txn-1" {
		t.Fatalf("stored snapshot wrong: %+v err=%v", snap, err)
	}
}

func TestServiceGetUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())
	if _, err := svc.Get(context.Background(), uuid.New()); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceCancelOrphanedRow(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)

	// A row left behind by a crashed instance, no live session
	id := uuid.New()
	store.SaveSnapshot(context.Background(), Snapshot{
		ID:              id,
		MerchantOrderID: "ord-orphan",
		State:           StateAwaitingCheckout,
	})

	if err := svc.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	snap, _ := store.GetSnapshot(context.Background(), id)
	if snap.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", snap.State)
	}

	if err := svc.Cancel(context.Background(), id); err != ErrSessionTerminal {
		t.Fatalf("expected ErrSessionTerminal, got %v", err)
	}
}

func TestServiceHandleFrameUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())
	err := svc.HandleFrame(uuid.New(), BridgeFrame{Kind: FrameConsole, Payload: "x"})
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
