package intent

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recLauncher struct {
	resolvable map[string]bool
	failLaunch bool
	failOpen   bool
	launched   []string
	opened     []string
}

func (l *recLauncher) CanResolve(scheme string) bool {
	return l.resolvable[scheme]
}

func (l *recLauncher) Launch(url string) error {
	if l.failLaunch {
		return ErrNoHandler
	}
	l.launched = append(l.launched, url)
	return nil
}

func (l *recLauncher) OpenExternal(url string) error {
	if l.failOpen {
		return errors.New("open failed")
	}
	l.opened = append(l.opened, url)
	return nil
}

func TestResolveUPIPrefersOriginal(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{"upi": true, "phonepe": true}}
	r := NewResolver(DefaultConfig(), l)

	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank&am=100", "")
	if res.Status != StatusLaunched || res.App != "upi" {
		t.Fatalf("expected original upi launch, got %+v", res)
	}
	if len(l.launched) != 1 || l.launched[0] != "upi://pay?pa=x@bank&am=100" {
		t.Fatalf("launched %v", l.launched)
	}
}

func TestResolveUPIWalletChainOrder(t *testing.T) {
	// Only gpay's scheme resolves, so the chain walks past the original and
	// the first two wallets
	l := &recLauncher{resolvable: map[string]bool{"tez": true}}
	r := NewResolver(DefaultConfig(), l)

	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank&am=100", "")
	if res.Status != StatusLaunched || res.App != "gpay" {
		t.Fatalf("expected gpay launch, got %+v", res)
	}
	if len(l.launched) != 1 || l.launched[0] != "tez://upi/pay?pa=x@bank&am=100" {
		t.Fatalf("launched %v", l.launched)
	}
}

func TestResolveUPINothingResolvesOpensExternal(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{}}
	r := NewResolver(DefaultConfig(), l)

	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "")
	if res.Status != StatusLaunched || res.App != "external-view" {
		t.Fatalf("expected external view fallback, got %+v", res)
	}
	if len(l.opened) != 1 || l.opened[0] != "upi://pay?pa=x@bank" {
		t.Fatalf("opened %v", l.opened)
	}
}

func TestResolveHintShortCircuits(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{"upi": true}}
	r := NewResolver(DefaultConfig(), l)

	// Hint names phonepe, whose scheme does not resolve. The chain must NOT
	// fall through to the resolvable generic handler.
	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "PhonePe checkout")
	if res.Status != StatusNoHandler {
		t.Fatalf("expected no handler, got %+v", res)
	}
	if len(l.launched) != 0 || len(l.opened) != 0 {
		t.Fatalf("unexpected launches: %v %v", l.launched, l.opened)
	}
}

func TestResolveHintLaunchesNamedWallet(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{"tez": true}}
	r := NewResolver(DefaultConfig(), l)

	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "google pay")
	if res.Status != StatusLaunched || res.App != "gpay" {
		t.Fatalf("expected gpay via hint, got %+v", res)
	}
	if l.launched[0] != "tez://upi/pay?pa=x@bank" {
		t.Fatalf("launched %v", l.launched)
	}
}

func TestResolveDuplicateSuppressed(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{"upi": true}}
	r := NewResolver(DefaultConfig(), l)

	now := time.Now()
	r.now = func() time.Time { return now }

	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", ""); res.Status != StatusLaunched {
		t.Fatalf("first resolve: %+v", res)
	}

	// Same request 3 seconds later, inside the 8 second window
	r.now = func() time.Time { return now.Add(3 * time.Second) }
	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "")
	if res.Status != StatusSuppressed || res.Reason != ReasonDuplicate {
		t.Fatalf("expected duplicate suppression, got %+v", res)
	}

	// Past the window it launches again
	r.clearInFlight("::upi://pay?pa=x@bank")
	r.now = func() time.Time { return now.Add(9 * time.Second) }
	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", ""); res.Status != StatusLaunched {
		t.Fatalf("expected relaunch after window, got %+v", res)
	}
}

func TestResolveDifferentHintIsDifferentKey(t *testing.T) {
	l := &recLauncher{resolvable: map[string]bool{"upi": true, "phonepe": true, "paytmmp": true}}
	r := NewResolver(DefaultConfig(), l)

	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "phonepe"); res.Status != StatusLaunched {
		t.Fatalf("first resolve: %+v", res)
	}
	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "paytm"); res.Status != StatusLaunched {
		t.Fatalf("expected distinct hint to launch, got %+v", res)
	}
}

func TestResolveInFlightSuppressed(t *testing.T) {
	// Everything fails, so no launch is recorded, but the key stays
	// in-flight until the cooldown clears it
	l := &recLauncher{failLaunch: true, failOpen: true}
	r := NewResolver(DefaultConfig(), l)

	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", ""); res.Status != StatusNoHandler {
		t.Fatalf("first resolve: %+v", res)
	}
	res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", "")
	if res.Status != StatusSuppressed || res.Reason != ReasonInProgress {
		t.Fatalf("expected in-progress suppression, got %+v", res)
	}

	r.clearInFlight("::upi://pay?pa=x@bank")
	if res := r.Resolve(context.Background(), "upi://pay?pa=x@bank", ""); res.Status != StatusNoHandler {
		t.Fatalf("expected retry after clear, got %+v", res)
	}
}

func TestResolveCooldownClearsInFlight(t *testing.T) {
	l := &recLauncher{failLaunch: true, failOpen: true}
	cfg := DefaultConfig()
	cfg.LaunchCooldown = 20 * time.Millisecond
	r := NewResolver(cfg, l)

	r.Resolve(context.Background(), "upi://pay?pa=x@bank", "")
	time.Sleep(60 * time.Millisecond)

	r.mu.Lock()
	rec := r.records["::upi://pay?pa=x@bank"]
	r.mu.Unlock()
	if rec == nil || rec.inFlight {
		t.Fatalf("expected in-flight cleared, got %+v", rec)
	}
}

func TestResolveIntentURL(t *testing.T) {
	l := &recLauncher{}
	r := NewResolver(DefaultConfig(), l)

	raw := "intent://pay#Intent;scheme=upi;package=com.phonepe.app;end"
	res := r.Resolve(context.Background(), raw, "")
	if res.Status != StatusLaunched || res.App != "intent" {
		t.Fatalf("expected intent launch, got %+v", res)
	}
	if l.launched[0] != raw {
		t.Fatalf("launched %v", l.launched)
	}
}

func TestResolveIntentFallbackURL(t *testing.T) {
	l := &recLauncher{failLaunch: true}
	r := NewResolver(DefaultConfig(), l)

	raw := "intent://pay#Intent;scheme=upi;S.browser_fallback_url=https%3A%2F%2Fpay.example%2Fweb;end"
	res := r.Resolve(context.Background(), raw, "")
	if res.Status != StatusLaunched || res.App != "fallback-web" {
		t.Fatalf("expected web fallback, got %+v", res)
	}
	if len(l.opened) != 1 || l.opened[0] != "https://pay.example/web" {
		t.Fatalf("opened %v", l.opened)
	}
}

func TestResolveUnknownSchemeOpensExternal(t *testing.T) {
	l := &recLauncher{}
	r := NewResolver(DefaultConfig(), l)

	res := r.Resolve(context.Background(), "https://bank.example/3ds", "")
	if res.Status != StatusLaunched || res.App != "external-view" {
		t.Fatalf("expected external view, got %+v", res)
	}
}

func TestResolveEmptyURL(t *testing.T) {
	r := NewResolver(DefaultConfig(), &recLauncher{})
	if res := r.Resolve(context.Background(), "   ", ""); res.Status != StatusNoHandler {
		t.Fatalf("expected no handler for empty url, got %+v", res)
	}
}

func TestIsExternalURL(t *testing.T) {
	cfg := DefaultConfig()
	external := []string{
		"upi://pay?pa=x@bank",
		"upi:collect",
		"intent://x#Intent;scheme=upi;end",
		"phonepe://pay?x=1",
		"tez://upi/pay",
	}
	for _, u := range external {
		if !cfg.IsExternalURL(u) {
			t.Fatalf("expected %q external", u)
		}
	}
	internal := []string{"", "https://pay.example/checkout", "about:blank"}
	for _, u := range internal {
		if cfg.IsExternalURL(u) {
			t.Fatalf("expected %q internal", u)
		}
	}
}
