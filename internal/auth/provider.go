// Package auth owns the bearer token pair and the signed-in user. It keeps
// the two in sync with the backend and tells subscribers when the
// authenticated state changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/campuschat/client/internal/api"
	"github.com/campuschat/client/internal/clock"
	"github.com/campuschat/client/internal/tokenstore"
)

// DefaultValidateInterval is how often Run re-checks the session.
const DefaultValidateInterval = 5 * time.Minute

// ErrInvalid is returned when the backend definitively rejected both the
// access and the refresh token. The provider is logged out at that point.
var ErrInvalid = errors.New("auth: session is no longer valid")

// API is the subset of the HTTP client the provider calls.
type API interface {
	Login(ctx context.Context, code string) (api.LoginResponse, error)
	RefreshToken(ctx context.Context, refresh string) (string, error)
	CurrentUser(ctx context.Context, token string) (api.User, error)
}

// State is what subscribers observe.
type State struct {
	Authenticated bool
	UserID        string
	User          *api.User
}

// Options holds the optional collaborators of a Provider.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Provider implements ws.Credentials.
type Provider struct {
	api    API
	store  tokenstore.Store
	clock  clock.Clock
	logger *slog.Logger

	// opMu serializes Restore, Login, Logout and Validate so a slow
	// validation cannot resurrect tokens cleared by a concurrent logout.
	opMu sync.Mutex

	mu     sync.Mutex
	tokens tokenstore.Tokens
	user   *api.User
	subs   []chan State
}

// NewProvider creates a signed-out provider. Call Restore to pick up
// tokens saved by an earlier run.
func NewProvider(client API, store tokenstore.Store, opts Options) *Provider {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{
		api:    client,
		store:  store,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "auth"),
	}
}

// AccessToken returns the current access token, or "".
func (p *Provider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens.Access
}

// IsAuthenticated reports whether both a token and a user are present.
func (p *Provider) IsAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens.Access != "" && p.user != nil
}

// UserID returns the signed-in user's id, or "".
func (p *Provider) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return ""
	}
	return p.user.ID.String()
}

// User returns a copy of the signed-in user, or nil.
func (p *Provider) User() *api.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// State returns the current authenticated state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Provider) stateLocked() State {
	st := State{Authenticated: p.tokens.Access != "" && p.user != nil}
	if p.user != nil {
		u := *p.user
		st.User = &u
		st.UserID = u.ID.String()
	}
	return st
}

// Subscribe returns a channel that always holds the latest State. The
// current state is delivered immediately; older undelivered values are
// replaced rather than queued. Call the returned function to stop
// receiving.
func (p *Provider) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	ch <- p.stateLocked()
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subs = slices.DeleteFunc(p.subs, func(c chan State) bool { return c == ch })
	}
	return ch, cancel
}

// publishLocked pushes the current state to every subscriber.
func (p *Provider) publishLocked() {
	st := p.stateLocked()
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (p *Provider) set(t tokenstore.Tokens, u *api.User) {
	p.mu.Lock()
	p.tokens = t
	p.user = u
	p.publishLocked()
	p.mu.Unlock()
}

func (p *Provider) current() (tokenstore.Tokens, *api.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens, p.user
}

// Restore loads saved tokens and validates them. A missing token file is
// not an error. Unreadable stored tokens are discarded. Temporary
// failures keep the tokens and are returned so the caller can report them.
func (p *Provider) Restore(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	t, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		p.logger.Debug("no saved session")
		return nil
	case err != nil:
		p.logger.Warn("discarding unreadable saved session", "err", err)
		if cerr := p.store.Clear(ctx); cerr != nil {
			p.logger.Warn("failed to clear token store", "err", cerr)
		}
		return nil
	case t.Empty():
		return nil
	}

	p.set(t, nil)
	return p.validateLocked(ctx)
}

// Login exchanges a Google authorization code for a token pair.
func (p *Provider) Login(ctx context.Context, code string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if code == "" {
		return errors.New("auth: empty authorization code")
	}
	resp, err := p.api.Login(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: login: %w", err)
	}
	t := tokenstore.Tokens{Access: resp.Access, Refresh: resp.Refresh, SavedAt: p.clock.Now()}
	if err := p.store.Save(ctx, t); err != nil {
		p.logger.Warn("failed to persist tokens", "err", err)
	}
	user := resp.User
	p.set(t, &user)
	p.logger.Info("logged in", "user_id", user.ID.String(), "email", user.Email)
	return nil
}

// Logout clears the session in memory and in the store.
func (p *Provider) Logout(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.logoutLocked(ctx)
}

func (p *Provider) logoutLocked(ctx context.Context) error {
	p.set(tokenstore.Tokens{}, nil)
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	p.logger.Info("logged out")
	return nil
}

// Validate re-checks the session with the backend. It returns ErrInvalid
// after logging out if the tokens were definitively rejected, and the
// underlying error if the backend could not be reached.
func (p *Provider) Validate(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.validateLocked(ctx)
}

func (p *Provider) validateLocked(ctx context.Context) error {
	t, prevUser := p.current()
	if t.Empty() {
		return nil
	}

	// An access token already past exp goes straight to refresh.
	if claims, err := ParseClaims(t.Access); err == nil && claims.Expired(p.clock.Now()) {
		p.logger.Debug("access token expired, refreshing")
		return p.refreshLocked(ctx, t, prevUser)
	}

	user, err := p.api.CurrentUser(ctx, t.Access)
	switch {
	case err == nil:
		p.set(t, &user)
		return nil
	case errors.Is(err, api.ErrUnauthorized):
		return p.refreshLocked(ctx, t, prevUser)
	default:
		p.logger.Warn("session check failed, keeping tokens", "err", err)
		return fmt.Errorf("auth: validate: %w", err)
	}
}

// refreshLocked trades the refresh token for a new access token and
// fetches the user with it. Only a 401 is treated as definitive.
func (p *Provider) refreshLocked(ctx context.Context, t tokenstore.Tokens, prevUser *api.User) error {
	if t.Refresh == "" {
		p.logger.Info("access token rejected and no refresh token")
		return p.invalidLocked(ctx)
	}

	access, err := p.api.RefreshToken(ctx, t.Refresh)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		p.logger.Info("refresh token rejected")
		return p.invalidLocked(ctx)
	case err != nil:
		p.logger.Warn("token refresh failed, keeping tokens", "err", err)
		return fmt.Errorf("auth: refresh: %w", err)
	}

	t.Access = access
	t.SavedAt = p.clock.Now()
	if err := p.store.Save(ctx, t); err != nil {
		p.logger.Warn("failed to persist refreshed token", "err", err)
	}
	p.logger.Debug("access token refreshed")

	user, err := p.api.CurrentUser(ctx, t.Access)
	switch {
	case err == nil:
		p.set(t, &user)
		return nil
	case errors.Is(err, api.ErrUnauthorized):
		p.logger.Info("refreshed token rejected")
		return p.invalidLocked(ctx)
	default:
		p.set(t, prevUser)
		p.logger.Warn("user fetch after refresh failed", "err", err)
		return fmt.Errorf("auth: validate: %w", err)
	}
}

func (p *Provider) invalidLocked(ctx context.Context) error {
	if err := p.logoutLocked(ctx); err != nil {
		p.logger.Warn("failed to clear token store", "err", err)
	}
	return ErrInvalid
}

// Run validates the session every interval until ctx is done. Only a
// definitive rejection logs the user out; network errors are logged and
// retried on the next tick.
func (p *Provider) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultValidateInterval
	}
	tick := make(chan struct{}, 1)
	arm := func() clock.Timer {
		return p.clock.AfterFunc(interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})
	}
	timer := arm()
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if p.AccessToken() != "" {
				err := p.Validate(ctx)
				switch {
				case errors.Is(err, ErrInvalid):
					p.logger.Warn("session expired, signed out")
				case api.Temporary(err):
					p.logger.Debug("backend unreachable, will retry", "err", err)
				case err != nil:
					p.logger.Warn("session check rejected", "err", err)
				}
			}
			timer = arm()
		}
	}
}
