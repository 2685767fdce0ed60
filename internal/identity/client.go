package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore keeps a durable session token across process restarts.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a single file readable only by its owner.
type FileTokenStore struct {
	Path string
}

func (f FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (f FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(token+"\n"), 0o600)
}

func (f FileTokenStore) Clear() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Client is one process's view of the identity provider: the active session,
// its persistence mode, and the listeners told about changes.
type Client struct {
	auth   *Authority
	tokens TokenStore
	fed    Federation

	mu        sync.Mutex
	mode      Persistence
	current   *Session
	listeners map[int]func(Session, bool)
	nextID    int
}

type Option func(*Client)

func WithTokenStore(ts TokenStore) Option { return func(c *Client) { c.tokens = ts } }

func WithFederation(f Federation) Option { return func(c *Client) { c.fed = f } }

// WithSession starts the client already holding s, as a server does after
// verifying a bearer token.
func WithSession(s Session) Option {
	return func(c *Client) {
		c.current = &s
		c.mode = s.Persistence
	}
}

func NewClient(a *Authority, opts ...Option) *Client {
	c := &Client{auth: a, listeners: map[int]func(Session, bool){}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start resumes a durable session saved by an earlier process. A stale
// token is discarded.
func (c *Client) Start(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Load()
	if err != nil || token == "" {
		return err
	}
	s, err := c.auth.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return c.tokens.Clear()
		}
		return err
	}
	c.mu.Lock()
	c.mode = Durable
	c.mu.Unlock()
	return c.signedIn(s)
}

func (c *Client) CreateCredential(ctx context.Context, email, password string) (Session, error) {
	s, err := c.auth.Register(ctx, email, password, c.persistence())
	if err != nil {
		return Session{}, err
	}
	return s, c.signedIn(s)
}

func (c *Client) PasswordLogin(ctx context.Context, email, password string) (Session, error) {
	s, err := c.auth.Authenticate(ctx, email, password, c.persistence())
	if err != nil {
		return Session{}, err
	}
	return s, c.signedIn(s)
}

func (c *Client) FederatedLogin(ctx context.Context) (Session, error) {
	if c.fed == nil {
		return Session{}, ErrFederationDisabled
	}
	idToken, err := c.fed.IDToken(ctx)
	if err != nil {
		return Session{}, err
	}
	s, err := c.auth.Federate(ctx, idToken, c.persistence())
	if err != nil {
		return Session{}, err
	}
	return s, c.signedIn(s)
}

// DeleteCredential removes the credential behind s. When s is the active
// session the client is signed out.
func (c *Client) DeleteCredential(ctx context.Context, s Session) error {
	if err := c.auth.Delete(ctx, s.UID); err != nil {
		return err
	}
	c.mu.Lock()
	active := c.current != nil && c.current.UID == s.UID
	c.mu.Unlock()
	if active {
		return c.signedOut()
	}
	return nil
}

// SetPersistence applies to the active session as well as later ones.
func (c *Client) SetPersistence(p Persistence) error {
	c.mu.Lock()
	c.mode = p
	cur := c.current
	c.mu.Unlock()

	if c.tokens == nil || cur == nil {
		return nil
	}
	if p == Durable {
		return c.tokens.Save(cur.Token)
	}
	return c.tokens.Clear()
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return nil
	}
	if err := c.auth.Revoke(ctx, cur.Token); err != nil && !errors.Is(err, ErrInvalidToken) {
		return err
	}
	return c.signedOut()
}

func (c *Client) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// OnSessionChange registers fn and returns a func that unregisters it.
// Listeners run synchronously, after the client's own state has changed.
func (c *Client) OnSessionChange(fn func(s Session, active bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) persistence() Persistence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Client) signedIn(s Session) error {
	c.mu.Lock()
	c.current = &s
	mode := c.mode
	c.mu.Unlock()

	var err error
	if c.tokens != nil {
		if mode == Durable {
			err = c.tokens.Save(s.Token)
		} else {
			err = c.tokens.Clear()
		}
	}
	c.notify(s, true)
	return err
}

func (c *Client) signedOut() error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	var err error
	if c.tokens != nil {
		err = c.tokens.Clear()
	}
	c.notify(Session{}, false)
	return err
}

func (c *Client) notify(s Session, active bool) {
	c.mu.Lock()
	fns := make([]func(Session, bool), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s, active)
	}
}
