package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/mod/semver"

	"storefront-sync/internal/model"
)

// FormatVersion is written into every envelope. Values whose major version
// differs are treated as unreadable and degrade to empty.
const FormatVersion = "v1.0.0"

// saveAttempts is the total number of Set attempts per Save.
const saveAttempts = 3

type envelope struct {
	Version string          `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Persister provides typed, versioned access to a Store.
//
// Reads never fail: missing, undecodable or foreign-version values load as
// absent. Writes are retried with exponential backoff and then abandoned.
type Persister struct {
	store      Store
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// Option configures a Persister.
type Option func(*Persister)

// WithBackOff overrides the retry policy between Save attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(p *Persister) { p.newBackOff = f }
}

// NewPersister wraps store.
func NewPersister(store Store, logger *slog.Logger, opts ...Option) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persister{
		store:  store,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the underlying store.
func (p *Persister) Store() Store {
	return p.store
}

// Load decodes the value under key into dst. Returns false when the key is
// missing or its value cannot be read; dst is left untouched in that case.
func (p *Persister) Load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("local read failed, using empty state",
			slog.String("key", key),
			slog.String("error", model.NewStorageError(key, err).Error()),
		)
		return false
	}
	if !ok {
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Version != "" {
		if !semver.IsValid(env.Version) || semver.Major(env.Version) != semver.Major(FormatVersion) {
			p.logger.Warn("local value has unsupported format version",
				slog.String("key", key),
				slog.String("version", env.Version),
			)
			return false
		}
		raw = env.Data
	}

	// Values without an envelope are read as bare JSON.
	if err := json.Unmarshal(raw, dst); err != nil {
		p.logger.Warn("local value is corrupt, using empty state",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Save encodes v under key, retrying failed writes up to three attempts in
// total. The returned StorageError is informational: callers log it and
// keep their in-memory state.
func (p *Persister) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return model.NewStorageError(key, fmt.Errorf("encode: %w", err))
	}
	raw, err := json.Marshal(envelope{Version: FormatVersion, Data: data})
	if err != nil {
		return model.NewStorageError(key, fmt.Errorf("encode envelope: %w", err))
	}

	attempt := 0
	op := func() error {
		attempt++
		return p.store.Set(ctx, key, raw)
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Debug("local write failed, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), saveAttempts-1), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		serr := model.NewStorageError(key, err)
		p.logger.Error("local write abandoned",
			slog.String("key", key),
			slog.Int("attempts", attempt),
			slog.String("error", serr.Error()),
		)
		return serr
	}
	return nil
}

// Delete removes key. Failures are logged and returned.
func (p *Persister) Delete(ctx context.Context, key string) error {
	if err := p.store.Delete(ctx, key); err != nil {
		serr := model.NewStorageError(key, err)
		p.logger.Warn("local delete failed", slog.String("key", key), slog.String("error", serr.Error()))
		return serr
	}
	return nil
}

// Has reports whether key exists.
func (p *Persister) Has(ctx context.Context, key string) bool {
	_, ok, err := p.store.Get(ctx, key)
	return err == nil && ok
}
