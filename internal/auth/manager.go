// Package auth implements the session manager: sign-up, sign-in and sign-out,
// token refresh scheduling, session persistence and restoration.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storefront-sync/internal/clock"
	"storefront-sync/internal/localstore"
	"storefront-sync/internal/model"
)

// State is the session lifecycle state.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Listener receives session transitions. Called synchronously, outside the
// manager lock, in subscription order.
type Listener func(model.SessionChange)

const (
	defaultRefreshLeeway   = 60 * time.Second
	defaultMinRefreshDelay = 30 * time.Second
	defaultSignOutTimeout  = 5 * time.Second
	defaultDebounceWindow  = 200 * time.Millisecond
)

// Config holds the manager's collaborators and timing.
type Config struct {
	Endpoint Endpoint
	Profiles ProfileStore // Optional

	// Durable survives process restarts. Scoped lives only as long as the
	// process and holds sessions the user did not ask to remember.
	Durable *localstore.Persister
	Scoped  *localstore.Persister

	Keys   localstore.Keys
	Clock  clock.Clock
	Logger *slog.Logger

	RefreshLeeway   time.Duration // Refresh this long before expiry. Default: 60s
	MinRefreshDelay time.Duration // Never schedule sooner than this. Default: 30s
	SignOutTimeout  time.Duration // Bound on the remote sign-out call. Default: 5s
	DebounceWindow  time.Duration // External auth event debounce. Default: 200ms
}

// Manager owns the authenticated session.
type Manager struct {
	endpoint Endpoint
	profiles ProfileStore
	durable  *localstore.Persister
	scoped   *localstore.Persister
	keys     localstore.Keys
	clock    clock.Clock
	logger   *slog.Logger

	leeway         time.Duration
	minDelay       time.Duration
	signOutTimeout time.Duration

	lifetime context.Context
	cancel   context.CancelFunc
	events   *debouncer
	email    cases.Caser

	mu              sync.Mutex
	state           State
	session         *model.Session
	explicitSignOut bool
	signOuts        uint64 // Incremented by every SignOut
	gen             uint64 // Incremented whenever session is replaced
	refreshTimer    clock.Timer
	profile         *Profile
	profileDefaults ProfileDefaults
	listeners       []subscription
	nextListener    int
	closed          bool
}

type subscription struct {
	id int
	fn Listener
}

// New creates a session manager. The explicit sign-out flag is read from the
// durable store so that a fresh process honours a previous sign-out.
func New(cfg Config) (*Manager, error) {
	if cfg.Endpoint == nil {
		return nil, fmt.Errorf("auth endpoint is required")
	}
	if cfg.Durable == nil || cfg.Scoped == nil {
		return nil, fmt.Errorf("durable and scoped stores are required")
	}
	if cfg.Keys.Namespace == "" {
		return nil, fmt.Errorf("key namespace is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	lifetime, cancel := context.WithCancel(context.Background())
	m := &Manager{
		endpoint:       cfg.Endpoint,
		profiles:       cfg.Profiles,
		durable:        cfg.Durable,
		scoped:         cfg.Scoped,
		keys:           cfg.Keys,
		clock:          cfg.Clock,
		logger:         cfg.Logger.With(slog.String("component", "session")),
		leeway:         orDefault(cfg.RefreshLeeway, defaultRefreshLeeway),
		minDelay:       orDefault(cfg.MinRefreshDelay, defaultMinRefreshDelay),
		signOutTimeout: orDefault(cfg.SignOutTimeout, defaultSignOutTimeout),
		lifetime:       lifetime,
		cancel:         cancel,
		email:          cases.Lower(language.Und),
	}
	m.events = newDebouncer(cfg.Clock, orDefault(cfg.DebounceWindow, defaultDebounceWindow), m.processEvent)
	m.explicitSignOut = m.durable.Has(lifetime, m.keys.SignedOut())
	return m, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start processes the initial session event, restoring a stored session if allowed.
func (m *Manager) Start() {
	m.HandleAuthEvent(model.AuthStateChange{Event: model.EventInitialSession})
}

// Close stops the refresh timer and event processing. In-flight calls
// complete but their results are discarded.
func (m *Manager) Close() {
	m.events.stop()
	m.mu.Lock()
	m.closed = true
	m.gen++
	m.stopTimerLocked()
	m.listeners = nil
	m.mu.Unlock()
	m.cancel()
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners = append(m.listeners, subscription{id: id, fn: l})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.listeners {
			if sub.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Current returns a copy of the live session, or nil when signed out.
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ExplicitlySignedOut reports whether the sticky sign-out flag is set.
func (m *Manager) ExplicitlySignedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explicitSignOut
}

// NormalizeEmail trims and lower-cases an address.
func (m *Manager) NormalizeEmail(email string) string {
	return m.email.String(strings.TrimSpace(email))
}

// SignUp registers a new account. When the backend returns a session the user
// is signed in with remember-me on and the profile record is ensured; profile
// failures are logged and retried lazily by Profile.
func (m *Manager) SignUp(ctx context.Context, email, password string, defaults ProfileDefaults) (*model.AuthResult, error) {
	email = m.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	m.mu.Lock()
	signOuts := m.signOuts
	m.state = Authenticating
	m.mu.Unlock()

	res, err := m.endpoint.SignUp(ctx, email, password)
	if err != nil {
		m.abortAuthenticating()
		return nil, authFailure("sign up", err)
	}

	m.mu.Lock()
	m.profileDefaults = defaults
	m.mu.Unlock()

	if res.Session == nil {
		// Email confirmation pending; nothing to adopt yet.
		m.abortAuthenticating()
		m.logger.Info("sign-up pending confirmation", slog.String("user_id", res.User.ID))
		return res, nil
	}

	s, change, err := m.adopt(ctx, res, true, signOuts, model.EventSignedIn)
	if err != nil {
		return nil, err
	}
	m.notify(change)

	if err := m.ensureProfile(ctx, s); err != nil {
		m.logger.Warn("profile ensure failed, will retry on next fetch",
			slog.String("user_id", s.UserID),
			slog.String("error", err.Error()),
		)
	}

	out := *res
	out.Session = s.Clone()
	return &out, nil
}

// SignIn authenticates with email and password. rememberMe=true persists the
// session durably and stores the preference; false keeps the session in the
// process-scoped store only and removes the preference.
func (m *Manager) SignIn(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
	email = m.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	m.mu.Lock()
	signOuts := m.signOuts
	m.state = Authenticating
	m.mu.Unlock()

	res, err := m.endpoint.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.abortAuthenticating()
		m.logger.Info("sign-in rejected", slog.String("error", err.Error()))
		return nil, authFailure("sign in", err)
	}
	if res.Session == nil {
		m.abortAuthenticating()
		return nil, model.NewAuthError("NO_SESSION", "auth backend returned no session", nil)
	}

	s, change, err := m.adopt(ctx, res, rememberMe, signOuts, model.EventSignedIn)
	if err != nil {
		return nil, err
	}
	m.notify(change)
	m.logger.Info("signed in", slog.String("user_id", s.UserID), slog.Bool("remember_me", rememberMe))
	return s.Clone(), nil
}

// adopt installs the session from a successful sign-in or sign-up.
func (m *Manager) adopt(ctx context.Context, res *model.AuthResult, rememberMe bool, signOuts uint64, event model.AuthEvent) (*model.Session, model.SessionChange, error) {
	s := res.Session.Clone()
	if s.UserID == "" {
		s.UserID = res.User.ID
	}
	if s.Email == "" {
		s.Email = res.User.Email
	}
	s.RememberMe = rememberMe

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.signOuts != signOuts {
		m.state = Unauthenticated
		return nil, model.SessionChange{}, model.NewAuthError("SIGN_IN_CANCELLED", "signed out while signing in", nil)
	}

	prev := m.session
	m.installLocked(s)
	m.explicitSignOut = false
	if prev == nil || prev.UserID != s.UserID {
		m.profile = nil
	}

	if err := m.durable.Delete(ctx, m.keys.SignedOut()); err != nil {
		m.logger.Warn("clearing sign-out flag failed", slog.String("error", err.Error()))
	}
	m.persistLocked(ctx, s)

	return s, model.SessionChange{Event: event, Previous: prev.Clone(), Current: s.Clone()}, nil
}

// abortAuthenticating leaves Authenticating after a failed or pending attempt.
// A session that was live before the attempt stays live.
func (m *Manager) abortAuthenticating() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticating {
		return
	}
	if m.session != nil {
		m.state = Authenticated
		m.scheduleRefreshLocked()
		return
	}
	m.state = Unauthenticated
}

// SignOut ends the session. The explicit sign-out flag is set before any
// state is cleared, so a concurrent restore observes it and aborts. Local
// cleanup is authoritative; the remote sign-out is bounded by SignOutTimeout
// and its failure is only logged.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	m.explicitSignOut = true
	m.signOuts++
	if err := m.durable.Save(ctx, m.keys.SignedOut(), true); err != nil {
		m.logger.Error("persisting sign-out flag failed", slog.String("error", err.Error()))
	}

	m.stopTimerLocked()
	prev := m.session
	m.session = nil
	m.state = Unauthenticated
	m.gen++
	m.profile = nil

	m.clearUserDataLocked(ctx)
	m.mu.Unlock()

	m.notify(model.SessionChange{Event: model.EventSignedOut, Previous: prev.Clone(), Explicit: true})

	if prev == nil {
		return
	}
	m.logger.Info("signed out", slog.String("user_id", prev.UserID))

	remoteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.signOutTimeout)
	defer cancel()
	if err := m.endpoint.SignOut(remoteCtx, prev.AccessToken, ScopeLocal); err != nil {
		m.logger.Warn("remote sign-out failed",
			slog.String("user_id", prev.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// clearUserDataLocked deletes every cart, wishlist and session key of the
// namespace from both stores. The sign-out flag and remember-me survive.
func (m *Manager) clearUserDataLocked(ctx context.Context) {
	for _, p := range []*localstore.Persister{m.durable, m.scoped} {
		keys, err := p.Store().Keys(ctx, m.keys.Prefix())
		if err != nil {
			m.logger.Warn("listing local keys failed", slog.String("error", err.Error()))
			continue
		}
		for _, k := range keys {
			if m.keys.IsUserData(k) {
				_ = p.Delete(ctx, k)
			}
		}
	}
}

// RestoreSession re-establishes a session from a stored refresh token. It is
// a no-op when a live session exists, and is skipped entirely after an
// explicit sign-out unless remember-me is stored. Failures are logged, never
// returned.
func (m *Manager) RestoreSession(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.state == Authenticating || m.state == Refreshing {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	if m.session != nil && !m.session.Expired(now) {
		m.mu.Unlock()
		return
	}

	remember := m.durable.Has(ctx, m.keys.RememberMe())
	if !remember && (m.explicitSignOut || m.durable.Has(ctx, m.keys.SignedOut())) {
		m.mu.Unlock()
		m.logger.Debug("restore skipped after explicit sign-out")
		return
	}

	stored := m.storedSessionLocked(ctx, remember)
	if stored == nil || stored.RefreshToken == "" {
		m.mu.Unlock()
		return
	}

	prevState := m.state
	m.state = Refreshing
	gen := m.gen
	m.mu.Unlock()

	fresh, err := m.endpoint.RefreshSession(ctx, stored.RefreshToken)

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	if err != nil {
		if !errors.Is(err, model.ErrAuth) {
			// Transport failure; the stored session stays usable for a later try.
			m.state = prevState
			if m.session != nil {
				m.state = Authenticated
				m.scheduleRefreshLocked()
			}
			m.mu.Unlock()
			m.logger.Warn("session restore failed, keeping stored session",
				slog.String("error", err.Error()),
				slog.String("prior_state", prevState.String()),
			)
			return
		}

		prev := m.session
		m.state = Unauthenticated
		m.session = nil
		if prev != nil {
			m.gen++
			m.stopTimerLocked()
		}
		// Revoked or expired refresh token; drop the useless snapshot.
		_ = m.durable.Delete(ctx, m.keys.Session())
		_ = m.scoped.Delete(ctx, m.keys.Session())
		m.mu.Unlock()

		m.logger.Info("session restore failed", slog.String("error", err.Error()), slog.String("prior_state", prevState.String()))
		if prev != nil {
			m.notify(model.SessionChange{Event: model.EventSignedOut, Previous: prev.Clone()})
		}
		return
	}

	fresh = fresh.Clone()
	fresh.RememberMe = stored.RememberMe || remember
	if fresh.UserID == "" {
		fresh.UserID = stored.UserID
	}
	if fresh.Email == "" {
		fresh.Email = stored.Email
	}
	prev := m.session
	m.installLocked(fresh)
	m.persistLocked(ctx, fresh)
	m.mu.Unlock()

	m.logger.Info("session restored", slog.String("user_id", fresh.UserID))
	m.notify(model.SessionChange{Event: model.EventInitialSession, Previous: prev.Clone(), Current: fresh.Clone()})
}

// Resume is called when the application regains the foreground.
func (m *Manager) Resume(ctx context.Context) {
	m.RestoreSession(ctx)
}

// storedSessionLocked finds the refresh token source: the expired in-memory
// session, then the process-scoped snapshot, then the durable snapshot when
// remember-me is set.
func (m *Manager) storedSessionLocked(ctx context.Context, remember bool) *model.Session {
	if m.session != nil {
		return m.session.Clone()
	}
	var s model.Session
	if m.scoped.Load(ctx, m.keys.Session(), &s) {
		return &s
	}
	if remember && m.durable.Load(ctx, m.keys.Session(), &s) {
		return &s
	}
	return nil
}

// HandleAuthEvent processes an auth event from outside this process (another
// tab or device). Events within the debounce window of the previously handled
// one are coalesced and the latest is processed when the window closes.
// Events run under the manager's lifetime context.
func (m *Manager) HandleAuthEvent(ev model.AuthStateChange) {
	m.events.push(ev)
}

func (m *Manager) processEvent(ev model.AuthStateChange) {
	ctx := m.lifetime
	switch ev.Event {
	case model.EventInitialSession:
		if ev.Session == nil {
			m.RestoreSession(ctx)
			return
		}
		m.adoptExternal(ctx, ev)
	case model.EventSignedIn, model.EventTokenRefreshed:
		if ev.Session == nil {
			return
		}
		m.adoptExternal(ctx, ev)
	case model.EventSignedOut:
		m.dropExternal(ctx)
	default:
		m.logger.Debug("ignoring auth event", slog.String("event", string(ev.Event)))
	}
}

// adoptExternal installs a session announced by another tab or device.
// Tokens for the current user are taken as-is; a different user is validated
// with SetSession first.
func (m *Manager) adoptExternal(ctx context.Context, ev model.AuthStateChange) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	cur := m.session
	if cur != nil && cur.UserID == ev.Session.UserID {
		if cur.AccessToken == ev.Session.AccessToken {
			m.mu.Unlock()
			return
		}
		s := ev.Session.Clone()
		s.RememberMe = cur.RememberMe
		m.installLocked(s)
		m.persistLocked(ctx, s)
		m.mu.Unlock()
		m.notify(model.SessionChange{Event: model.EventTokenRefreshed, Previous: cur.Clone(), Current: s.Clone()})
		return
	}
	gen := m.gen
	m.mu.Unlock()

	s, err := m.endpoint.SetSession(ctx, ev.Session.AccessToken, ev.Session.RefreshToken)
	if err != nil {
		m.logger.Warn("adopting external session failed", slog.String("event", string(ev.Event)), slog.String("error", err.Error()))
		return
	}
	s = s.Clone()
	if s.UserID == "" {
		s.UserID = ev.Session.UserID
	}
	s.RememberMe = m.durable.Has(ctx, m.keys.RememberMe())

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	prev := m.session
	m.installLocked(s)
	m.explicitSignOut = false
	_ = m.durable.Delete(ctx, m.keys.SignedOut())
	m.persistLocked(ctx, s)
	m.mu.Unlock()

	m.logger.Info("adopted external session", slog.String("user_id", s.UserID))
	m.notify(model.SessionChange{Event: model.EventSignedIn, Previous: prev.Clone(), Current: s.Clone()})
}

// dropExternal forgets the in-memory session after another tab signed out.
// Storage was already cleared by the tab that signed out.
func (m *Manager) dropExternal(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.session == nil {
		m.mu.Unlock()
		return
	}
	prev := m.session
	explicit := m.durable.Has(ctx, m.keys.SignedOut())
	m.explicitSignOut = m.explicitSignOut || explicit
	m.stopTimerLocked()
	m.session = nil
	m.state = Unauthenticated
	m.gen++
	m.profile = nil
	m.mu.Unlock()

	m.notify(model.SessionChange{Event: model.EventSignedOut, Previous: prev.Clone(), Explicit: explicit})
}

// installLocked makes s the live session and schedules its refresh.
func (m *Manager) installLocked(s *model.Session) {
	m.session = s
	m.state = Authenticated
	m.gen++
	m.scheduleRefreshLocked()
}

// persistLocked writes the session snapshot to the store its remember-me
// setting allows, and keeps the remember-me preference in step.
func (m *Manager) persistLocked(ctx context.Context, s *model.Session) {
	if s.RememberMe {
		if err := m.durable.Save(ctx, m.keys.Session(), s); err != nil {
			m.logger.Error("persisting session failed", slog.String("error", err.Error()))
		}
		if err := m.durable.Save(ctx, m.keys.RememberMe(), true); err != nil {
			m.logger.Error("persisting remember-me failed", slog.String("error", err.Error()))
		}
		_ = m.scoped.Delete(ctx, m.keys.Session())
		return
	}

	if err := m.scoped.Save(ctx, m.keys.Session(), s); err != nil {
		m.logger.Error("persisting session failed", slog.String("error", err.Error()))
	}
	_ = m.durable.Delete(ctx, m.keys.Session())
	_ = m.durable.Delete(ctx, m.keys.RememberMe())
}

// RefreshDelay computes when the next refresh should run: leeway before
// expiry, but never sooner than minDelay from now.
func RefreshDelay(now, expiry time.Time, leeway, minDelay time.Duration) time.Duration {
	d := expiry.Add(-leeway).Sub(now)
	if d < minDelay {
		return minDelay
	}
	return d
}

// scheduleRefreshLocked replaces the refresh timer. At most one timer is live.
func (m *Manager) scheduleRefreshLocked() {
	m.stopTimerLocked()
	if m.session == nil || m.closed {
		return
	}
	delay := RefreshDelay(m.clock.Now(), m.session.Expiry(), m.leeway, m.minDelay)
	gen := m.gen
	m.refreshTimer = m.clock.AfterFunc(delay, func() { m.refresh(gen) })
	m.logger.Debug("refresh scheduled", slog.Duration("in", delay))
}

func (m *Manager) stopTimerLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

// NextRefresh reports the delay until the scheduled refresh, or false if none.
func (m *Manager) NextRefresh() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshTimer == nil || m.session == nil {
		return 0, false
	}
	return RefreshDelay(m.clock.Now(), m.session.Expiry(), m.leeway, m.minDelay), true
}

// refresh runs when the timer for generation gen fires. An auth rejection
// ends the session; a transport failure keeps it and waits for the next tick.
func (m *Manager) refresh(gen uint64) {
	m.mu.Lock()
	if m.closed || m.gen != gen || m.session == nil || m.state != Authenticated {
		m.mu.Unlock()
		return
	}
	m.refreshTimer = nil
	m.state = Refreshing
	cur := m.session
	m.mu.Unlock()

	ctx := m.lifetime
	fresh, err := m.endpoint.RefreshSession(ctx, cur.RefreshToken)

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}

	if err != nil {
		if errors.Is(err, model.ErrAuth) {
			m.session = nil
			m.state = Unauthenticated
			m.gen++
			m.profile = nil
			_ = m.durable.Delete(ctx, m.keys.Session())
			_ = m.scoped.Delete(ctx, m.keys.Session())
			m.mu.Unlock()

			m.logger.Info("refresh rejected, session ended",
				slog.String("user_id", cur.UserID),
				slog.String("error", err.Error()),
			)
			m.notify(model.SessionChange{Event: model.EventSignedOut, Previous: cur.Clone()})
			return
		}

		m.state = Authenticated
		m.scheduleRefreshLocked()
		m.mu.Unlock()
		m.logger.Warn("refresh failed, keeping session until next tick",
			slog.String("user_id", cur.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	fresh = fresh.Clone()
	fresh.RememberMe = cur.RememberMe
	if fresh.UserID == "" {
		fresh.UserID = cur.UserID
	}
	if fresh.Email == "" {
		fresh.Email = cur.Email
	}
	m.installLocked(fresh)
	m.persistLocked(ctx, fresh)
	m.mu.Unlock()

	m.notify(model.SessionChange{Event: model.EventTokenRefreshed, Previous: cur.Clone(), Current: fresh.Clone()})
}

// Profile returns the user's profile record, creating it if a previous
// ensure failed or never ran.
func (m *Manager) Profile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	s := m.session.Clone()
	cached := m.profile
	m.mu.Unlock()

	if s == nil {
		return nil, model.NewSignInRequiredError("view your profile")
	}
	if cached != nil {
		c := *cached
		return &c, nil
	}
	if m.profiles == nil {
		return nil, model.NewNotFoundError("profile")
	}

	if err := m.ensureProfile(ctx, s); err != nil {
		return nil, model.NewRemoteError("ensure profile", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, model.NewNotFoundError("profile")
	}
	c := *m.profile
	return &c, nil
}

// ensureProfile fetches the profile and inserts it only when absent. A
// uniqueness conflict means a concurrent ensure won, which is success.
func (m *Manager) ensureProfile(ctx context.Context, s *model.Session) error {
	if m.profiles == nil {
		return nil
	}

	lookup, err := m.profiles.GetProfile(ctx, s.AccessToken, s.UserID)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	if lookup.Status == Found {
		m.cacheProfile(s.UserID, lookup.Profile)
		return nil
	}

	m.mu.Lock()
	defaults := m.profileDefaults
	m.mu.Unlock()

	p := Profile{
		UserID:      s.UserID,
		Email:       s.Email,
		DisplayName: defaults.DisplayName,
		Phone:       defaults.Phone,
	}
	if err := m.profiles.InsertProfile(ctx, s.AccessToken, p); err != nil && !errors.Is(err, ErrProfileExists) {
		return fmt.Errorf("insert profile: %w", err)
	}

	lookup, err = m.profiles.GetProfile(ctx, s.AccessToken, s.UserID)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	if lookup.Status == Found {
		m.cacheProfile(s.UserID, lookup.Profile)
	} else {
		m.cacheProfile(s.UserID, &p)
	}
	return nil
}

func (m *Manager) cacheProfile(userID string, p *Profile) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.UserID == userID {
		c := *p
		m.profile = &c
	}
}

func (m *Manager) notify(change model.SessionChange) {
	m.mu.Lock()
	subs := make([]subscription, len(m.listeners))
	copy(subs, m.listeners)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(change)
	}
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return model.NewValidationError("email", "a valid address is required")
	}
	if password == "" {
		return model.NewValidationError("password", "required")
	}
	return nil
}

// authFailure keeps typed endpoint errors and wraps transport failures.
func authFailure(op string, err error) error {
	var e *model.Error
	if errors.As(err, &e) {
		return e
	}
	ae := model.NewAuthError("AUTH_UNAVAILABLE", op+" failed: auth service unreachable", err)
	ae.Retryable = true
	return ae
}
