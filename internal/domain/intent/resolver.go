package intent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoHandler is returned by a Launcher when no installed app resolves the
// given URL.
var ErrNoHandler = errors.New("no handler for url")

// Launcher abstracts the host surface's ability to hand control to an
// external app. The bridge connection implements it from the handler set the
// surface reports at connect time.
type Launcher interface {
	// CanResolve reports whether a handler exists for the scheme
	CanResolve(scheme string) bool
	// Launch hands the URL to its dedicated handler
	Launch(url string) error
	// OpenExternal opens the URL as a generic external-view action
	OpenExternal(url string) error
}

// Status classifies the outcome of a resolve attempt
type Status string

const (
	StatusLaunched   Status = "launched"
	StatusNoHandler  Status = "no_handler"
	StatusSuppressed Status = "suppressed"
)

const (
	ReasonDuplicate  = "duplicate"
	ReasonInProgress = "in-progress"
)

// LaunchResult is the outcome of Resolve
type LaunchResult struct {
	Status Status
	// App names what handled the launch: a wallet name, "intent",
	// "fallback-web" or "external-view"
	App string
	// Reason is set for suppressed results
	Reason string
}

// Config tunes dedupe and candidate generation
type Config struct {
	// DedupeWindow suppresses identical launch requests arriving within it
	DedupeWindow time.Duration
	// LaunchCooldown clears the in-flight mark a fixed time after an
	// attempt starts, regardless of outcome; the host app cannot observe
	// when an external app visually settles
	LaunchCooldown time.Duration
	// Wallets is the upi://pay substitution table in priority order
	Wallets []WalletScheme
}

// DefaultConfig matches the reference deployment
func DefaultConfig() Config {
	return Config{
		DedupeWindow:   8 * time.Second,
		LaunchCooldown: 6 * time.Second,
		Wallets:        DefaultWalletSchemes(),
	}
}

type launchRecord struct {
	lastLaunchedAt time.Time
	inFlight       bool
}

// Resolver deduplicates and sequences external-app launch attempts for one
// embedded-browser session.
type Resolver struct {
	cfg      Config
	launcher Launcher

	mu      sync.Mutex
	records map[string]*launchRecord

	now func() time.Time
}

// NewResolver creates a resolver bound to one session's launcher
func NewResolver(cfg Config, launcher Launcher) *Resolver {
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 8 * time.Second
	}
	if cfg.LaunchCooldown <= 0 {
		cfg.LaunchCooldown = 6 * time.Second
	}
	if len(cfg.Wallets) == 0 {
		cfg.Wallets = DefaultWalletSchemes()
	}
	return &Resolver{
		cfg:      cfg,
		launcher: launcher,
		records:  make(map[string]*launchRecord),
		now:      time.Now,
	}
}

// IsExternalURL reports whether the URL should be handed off to an external
// app rather than loaded in the checkout surface.
func (c Config) IsExternalURL(raw string) bool {
	if raw == "" {
		return false
	}
	if isIntent(raw) || isUPI(raw) {
		return true
	}
	scheme := SchemeOf(raw)
	wallets := c.Wallets
	if len(wallets) == 0 {
		wallets = DefaultWalletSchemes()
	}
	for _, w := range wallets {
		if SchemeOf(w.Target) == scheme {
			return true
		}
	}
	return false
}

// IsExternal reports whether the URL should be handed off to an external app
func (r *Resolver) IsExternal(raw string) bool {
	return r.cfg.IsExternalURL(raw)
}

// Resolve attempts to hand the URL to an external payment app, deduplicating
// repeats and walking the scheme fallback chain. It blocks only on the
// launcher and must be called from a worker context, never the session
// control loop.
func (r *Resolver) Resolve(ctx context.Context, rawURL, appHint string) LaunchResult {
	if strings.TrimSpace(rawURL) == "" {
		return LaunchResult{Status: StatusNoHandler}
	}

	key := appHint + "::" + rawURL
	if res, ok := r.acquire(key); !ok {
		return res
	}
	defer r.scheduleClear(key)

	if err := ctx.Err(); err != nil {
		return LaunchResult{Status: StatusSuppressed, Reason: "cancelled"}
	}

	switch {
	case isIntent(rawURL):
		return r.resolveIntent(key, rawURL)
	case isUPI(rawURL):
		return r.resolveUPI(key, rawURL, appHint)
	default:
		if w, ok := r.walletForScheme(SchemeOf(rawURL)); ok {
			if r.tryLaunch(key, rawURL) {
				return LaunchResult{Status: StatusLaunched, App: w.Name}
			}
			return r.openExternal(key, rawURL)
		}
		return r.openExternal(key, rawURL)
	}
}

// acquire applies the dedupe window and in-flight guard. On success the key
// is marked in-flight and the caller owns it until the cooldown clears it.
func (r *Resolver) acquire(key string) (LaunchResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if ok {
		if !rec.lastLaunchedAt.IsZero() && r.now().Sub(rec.lastLaunchedAt) <= r.cfg.DedupeWindow {
			log.Debug().Str("key", key).Msg("Duplicate launch request suppressed")
			return LaunchResult{Status: StatusSuppressed, Reason: ReasonDuplicate}, false
		}
		if rec.inFlight {
			log.Debug().Str("key", key).Msg("Launch already in progress")
			return LaunchResult{Status: StatusSuppressed, Reason: ReasonInProgress}, false
		}
	} else {
		rec = &launchRecord{}
		r.records[key] = rec
	}
	rec.inFlight = true
	return LaunchResult{}, true
}

func (r *Resolver) scheduleClear(key string) {
	time.AfterFunc(r.cfg.LaunchCooldown, func() {
		r.clearInFlight(key)
	})
}

func (r *Resolver) clearInFlight(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		rec.inFlight = false
	}
}

func (r *Resolver) markLaunched(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		rec.lastLaunchedAt = r.now()
	}
}

func (r *Resolver) resolveIntent(key, rawURL string) LaunchResult {
	d := parseIntentURL(rawURL)

	if err := r.launcher.Launch(rawURL); err == nil {
		r.markLaunched(key)
		return LaunchResult{Status: StatusLaunched, App: "intent"}
	}

	if d.FallbackURL != "" {
		if err := r.launcher.OpenExternal(d.FallbackURL); err == nil {
			r.markLaunched(key)
			return LaunchResult{Status: StatusLaunched, App: "fallback-web"}
		}
	}

	return LaunchResult{Status: StatusNoHandler}
}

func (r *Resolver) resolveUPI(key, rawURL, appHint string) LaunchResult {
	// A hint naming a known wallet short-circuits to that wallet only
	if appHint != "" {
		for _, w := range r.cfg.Wallets {
			if w.matchesHint(appHint) {
				if r.tryLaunch(key, w.variant(rawURL)) {
					return LaunchResult{Status: StatusLaunched, App: w.Name}
				}
				return LaunchResult{Status: StatusNoHandler}
			}
		}
	}

	// Default chain: the original UPI URL, then each wallet variant in
	// table order, stopping at the first resolvable candidate
	if r.tryLaunch(key, rawURL) {
		return LaunchResult{Status: StatusLaunched, App: "upi"}
	}
	for _, w := range r.cfg.Wallets {
		if r.tryLaunch(key, w.variant(rawURL)) {
			return LaunchResult{Status: StatusLaunched, App: w.Name}
		}
	}

	// No candidate resolved: open the original link as a generic view
	return r.openExternal(key, rawURL)
}

// tryLaunch attempts a single candidate, checking handler availability first
func (r *Resolver) tryLaunch(key, candidate string) bool {
	if candidate == "" {
		return false
	}
	scheme := SchemeOf(candidate)
	if scheme == "" || !r.launcher.CanResolve(scheme) {
		return false
	}
	if err := r.launcher.Launch(candidate); err != nil {
		return false
	}
	r.markLaunched(key)
	return true
}

func (r *Resolver) openExternal(key, rawURL string) LaunchResult {
	if err := r.launcher.OpenExternal(rawURL); err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Generic external open failed")
		return LaunchResult{Status: StatusNoHandler}
	}
	r.markLaunched(key)
	return LaunchResult{Status: StatusLaunched, App: "external-view"}
}

func (r *Resolver) walletForScheme(scheme string) (WalletScheme, bool) {
	for _, w := range r.cfg.Wallets {
		if SchemeOf(w.Target) == scheme {
			return w, true
		}
	}
	return WalletScheme{}, false
}
