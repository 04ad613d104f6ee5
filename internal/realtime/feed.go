// Package realtime subscribes to the backend's change feed so that edits made
// in other tabs or on other devices reach this process: row changes refresh
// the affected collection, auth events go to the session manager.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

const (
	readLimit    = 512 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// Message types on the feed.
const (
	TypeSubscribe = "subscribe"
	TypeChange    = "change"
	TypeAuth      = "auth"
)

// Message is one frame of the feed, in either direction.
type Message struct {
	Type string `json:"type"`

	// subscribe
	Topics      []string `json:"topics,omitempty"`
	AccessToken string   `json:"access_token,omitempty"`

	// change; subscribe carries it as the signed-in user
	Collection collection.Kind `json:"collection,omitempty"`
	UserID     string          `json:"user_id,omitempty"`

	// auth
	Event   model.AuthEvent `json:"event,omitempty"`
	Session *model.Session  `json:"session,omitempty"`
}

// Refresher is a collection that can re-read its authoritative list.
// Implemented by collection.Reconciler.
type Refresher interface {
	Kind() collection.Kind
	UserID() string
	Refresh(ctx context.Context) error
}

// AuthSink receives auth events from other tabs or devices.
// Implemented by auth.Manager.
type AuthSink interface {
	HandleAuthEvent(ev model.AuthStateChange)
}

// SessionSource exposes the live session used to authenticate the feed.
type SessionSource interface {
	Current() *model.Session
}

// Config holds feed dependencies.
type Config struct {
	URL     string
	AnonKey string

	Sessions    SessionSource
	Collections []Refresher
	Auth        AuthSink

	Dialer *websocket.Dialer
	Logger *slog.Logger

	// BackOff paces reconnects. Default: exponential, 500ms up to 30s, never gives up.
	BackOff func() backoff.BackOff
}

// Feed is a reconnecting websocket subscription.
type Feed struct {
	url         string
	anonKey     string
	sessions    SessionSource
	collections map[collection.Kind]Refresher
	auth        AuthSink
	dialer      *websocket.Dialer
	logger      *slog.Logger
	newBackOff  func() backoff.BackOff

	// wmu serializes writes on the open connection and the swap of conn.
	wmu sync.Mutex

	mu        sync.Mutex
	connected bool
	conn      *websocket.Conn
}

// New creates a feed. Call Run to connect.
func New(cfg Config) (*Feed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("realtime URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid realtime URL: %w", err)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackOff == nil {
		cfg.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}

	collections := make(map[collection.Kind]Refresher, len(cfg.Collections))
	for _, c := range cfg.Collections {
		collections[c.Kind()] = c
	}

	return &Feed{
		url:         cfg.URL,
		anonKey:     cfg.AnonKey,
		sessions:    cfg.Sessions,
		collections: collections,
		auth:        cfg.Auth,
		dialer:      cfg.Dialer,
		logger:      cfg.Logger.With(slog.String("component", "realtime")),
		newBackOff:  cfg.BackOff,
	}, nil
}

// Connected reports whether a subscription is currently open.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Run connects and processes messages until ctx is done, reconnecting with
// backoff after every failure. Returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	b := f.newBackOff()
	b.Reset()

	for {
		err := f.session(ctx, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("realtime feed gave up: %w", err)
		}
		f.logger.Warn("realtime feed disconnected",
			slog.Duration("retry_in", wait),
			slog.String("error", errString(err)),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one connection. The backoff is reset once the subscription
// is accepted.
func (f *Feed) session(ctx context.Context, b backoff.BackOff) error {
	header := http.Header{}
	if f.anonKey != "" {
		header.Set("apikey", f.anonKey)
	}
	conn, _, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// The session is read and the connection published under wmu, so a
	// session change either lands in this frame or is re-sent by
	// OnSessionChange.
	f.wmu.Lock()
	sub := f.subscription(f.current())
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		f.wmu.Unlock()
		return fmt.Errorf("subscribe: %w", err)
	}
	f.setConn(conn)
	f.wmu.Unlock()
	defer f.setConn(nil)

	b.Reset()
	f.logger.Info("realtime feed connected", slog.Int("topics", len(sub.Topics)))

	// Closing the connection unblocks ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				f.wmu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				f.wmu.Unlock()
				conn.Close()
				return
			case <-ticker.C:
				f.wmu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				f.wmu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("ignoring malformed realtime message", slog.String("error", err.Error()))
			continue
		}
		f.dispatch(ctx, msg)
	}
}

// dispatch routes one message. Changes for a user other than the one a
// collection currently serves are ignored.
func (f *Feed) dispatch(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeChange:
		c, ok := f.collections[msg.Collection]
		if !ok {
			return
		}
		if msg.UserID == "" || msg.UserID != c.UserID() {
			f.logger.Debug("ignoring change for another owner", slog.String("collection", string(msg.Collection)))
			return
		}
		if err := c.Refresh(ctx); err != nil {
			f.logger.Warn("refresh after remote change failed",
				slog.String("collection", string(msg.Collection)),
				slog.String("error", err.Error()),
			)
		}
	case TypeAuth:
		if f.auth == nil || msg.Event == "" {
			return
		}
		f.auth.HandleAuthEvent(model.AuthStateChange{Event: msg.Event, Session: msg.Session})
	default:
		f.logger.Debug("ignoring realtime message", slog.String("type", msg.Type))
	}
}

// OnSessionChange re-sends the subscription on the open connection so the
// feed follows sign-in, token refresh and sign-out. A failed write closes the
// connection; the reconnect subscribes with the then-current session.
func (f *Feed) OnSessionChange(change model.SessionChange) {
	f.wmu.Lock()
	defer f.wmu.Unlock()

	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f.subscription(change.Current)); err != nil {
		f.logger.Warn("realtime resubscribe failed, reconnecting", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	f.logger.Debug("realtime feed resubscribed",
		slog.String("event", string(change.Event)),
		slog.String("user_id", change.CurrentUserID()),
	)
}

func (f *Feed) subscription(s *model.Session) Message {
	sub := Message{Type: TypeSubscribe, Topics: []string{TypeAuth}}
	for kind := range f.collections {
		sub.Topics = append(sub.Topics, string(kind))
	}
	if s != nil {
		sub.AccessToken = s.AccessToken
		sub.UserID = s.UserID
	}
	return sub
}

func (f *Feed) current() *model.Session {
	if f.sessions == nil {
		return nil
	}
	return f.sessions.Current()
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.connected = conn != nil
	f.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
