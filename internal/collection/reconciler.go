// Package collection implements the cart and wishlist reconcilers.
//
// While signed out a reconciler works against the shared guest key in the
// local store, optimistically. Once signed in it works against the remote
// collection endpoint and only changes memory after the endpoint confirms.
// The first sign-in migrates guest items into the remote collection exactly
// once.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"storefront-sync/internal/clock"
	"storefront-sync/internal/localstore"
	"storefront-sync/internal/model"
	"storefront-sync/internal/reconcile"
)

// ErrClosed is returned by operations on a closed reconciler.
var ErrClosed = errors.New("reconciler closed")

// Config holds reconciler dependencies.
type Config struct {
	Kind     Kind
	Endpoint Endpoint
	Sessions SessionSource
	Store    *localstore.Persister
	Keys     localstore.Keys
	Clock    clock.Clock
	Logger   *slog.Logger

	// NewID generates ids for guest items. Default: uuid.NewString.
	NewID func() string

	// MergeLimiter throttles upserts during merge. Default: 10/s, burst 5.
	MergeLimiter *rate.Limiter
}

// AddInput describes an item to add.
type AddInput struct {
	ProductID string
	VariantID string
	Quantity  int
	Product   *model.ProductSnapshot
	Variant   *model.VariantSnapshot
}

// Reconciler owns the in-memory line items of one collection.
type Reconciler struct {
	kind     Kind
	endpoint Endpoint
	sessions SessionSource
	store    *localstore.Persister
	keys     localstore.Keys
	clock    clock.Clock
	logger   *slog.Logger
	newID    func() string
	limiter  *rate.Limiter

	lifetime context.Context
	cancel   context.CancelFunc

	// gate orders session switches against everything else: a switch holds
	// it exclusively, reads and mutations hold it shared.
	gate sync.RWMutex

	// adds serializes signed-in adds so a second add of a key waits for the
	// first row and then updates its quantity.
	adds sync.Mutex

	mu     sync.Mutex
	items  []model.LineItem
	userID string // "" while guest
	gen    uint64 // Incremented on every session switch and on Close
	closed bool
}

// New creates a reconciler in the guest state. Call Start to load guest items.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Kind != KindCart && cfg.Kind != KindWishlist {
		return nil, fmt.Errorf("unknown collection kind %q", cfg.Kind)
	}
	if cfg.Endpoint == nil {
		return nil, fmt.Errorf("collection endpoint is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("local store is required")
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
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.MergeLimiter == nil {
		cfg.MergeLimiter = rate.NewLimiter(rate.Limit(10), 5)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		kind:     cfg.Kind,
		endpoint: cfg.Endpoint,
		sessions: cfg.Sessions,
		store:    cfg.Store,
		keys:     cfg.Keys,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(slog.String("collection", string(cfg.Kind))),
		newID:    cfg.NewID,
		limiter:  cfg.MergeLimiter,
		lifetime: lifetime,
		cancel:   cancel,
	}, nil
}

// Kind returns the collection kind.
func (r *Reconciler) Kind() Kind {
	return r.kind
}

// Start loads the guest items.
func (r *Reconciler) Start(ctx context.Context) {
	r.gate.Lock()
	defer r.gate.Unlock()

	items := r.loadLocal(ctx, r.guestKey(), "")
	r.mu.Lock()
	if r.userID == "" && !r.closed {
		r.items = items
	}
	r.mu.Unlock()
}

// Close discards in-flight completions and stops merges at the next step.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.gen++
	r.mu.Unlock()
	r.cancel()
}

// OnSessionChange adapts HandleSessionChange to a session listener.
func (r *Reconciler) OnSessionChange(change model.SessionChange) {
	r.HandleSessionChange(r.lifetime, change)
}

// HandleSessionChange switches the backing store when the signed-in user
// changes. Guest to user merges the guest items first; nothing else is served
// for the new session until the switch completes.
func (r *Reconciler) HandleSessionChange(ctx context.Context, change model.SessionChange) {
	if !change.UserChanged() {
		return
	}

	r.gate.Lock()
	defer r.gate.Unlock()

	userID := change.CurrentUserID()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	gen := r.gen
	r.userID = userID
	r.items = nil
	r.mu.Unlock()

	if userID == "" {
		// The user's rows stay remote and in their cache key; after an
		// explicit sign-out storage was wiped and this loads nothing.
		items := r.loadLocal(ctx, r.guestKey(), "")
		r.commit(gen, items)
		r.logger.Info("switched to guest", slog.Bool("explicit", change.Explicit), slog.Int("items", len(items)))
		return
	}

	owner := Owner{UserID: userID, AccessToken: r.accessToken(userID, change.Current)}
	r.merge(ctx, gen, owner)

	items, err := r.fetch(ctx, owner)
	if err != nil {
		items = r.loadLocal(ctx, r.userKey(userID), userID)
		r.logger.Warn("remote fetch failed, serving cached items",
			slog.String("user_id", userID),
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
	} else if r.current(gen) {
		r.saveLocal(ctx, r.userKey(userID), items)
	}
	r.commit(gen, items)
}

// merge migrates guest items into the user's remote collection.
//
// Each migrated item is removed from the guest key as soon as its upsert
// lands, so an interrupted merge that is run again never counts an item
// twice. A per-item failure is logged and the merge continues; the guest key
// is cleared once every step has been attempted.
func (r *Reconciler) merge(ctx context.Context, gen uint64, owner Owner) {
	guestKey := r.guestKey()
	guest := r.loadLocal(ctx, guestKey, "")
	if len(guest) == 0 {
		r.deleteLocal(ctx, guestKey)
		return
	}

	remote, err := r.fetch(ctx, owner)
	if err != nil {
		// Without the remote list upserts cannot be planned. The guest key
		// is kept so the next sign-in retries the migration.
		r.logger.Warn("merge postponed, remote fetch failed",
			slog.String("user_id", owner.UserID),
			slog.Int("guest_items", len(guest)),
			slog.String("error", err.Error()),
		)
		return
	}

	current := make([]reconcile.CurrentItem, 0, len(remote))
	for _, it := range remote {
		current = append(current, reconcile.CurrentItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			BackendID: it.ID,
			Quantity:  it.Quantity,
		})
	}
	incoming := make([]reconcile.GuestItem, 0, len(guest))
	for _, it := range guest {
		incoming = append(incoming, reconcile.GuestItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		})
	}
	plan := reconcile.PlanMerge(current, incoming, r.kind.mergeMode())
	if plan.IsEmpty() {
		r.deleteLocal(ctx, guestKey)
		r.logger.Info("guest items already present remotely",
			slog.String("user_id", owner.UserID),
			slog.Int("skipped", len(plan.Steps)),
		)
		return
	}

	migrated := make([]bool, len(guest))
	failed := 0
	for _, step := range plan.Steps {
		if err := r.limiter.Wait(ctx); err != nil || !r.current(gen) {
			r.logger.Info("merge interrupted", slog.String("user_id", owner.UserID))
			return
		}

		if err := r.applyStep(ctx, owner, step, guest); err != nil {
			failed++
			r.logger.Warn("merge step failed",
				slog.String("user_id", owner.UserID),
				slog.String("action", step.Action.String()),
				slog.String("product_id", step.ProductID),
				slog.String("variant_id", step.VariantID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, i := range step.Sources {
			migrated[i] = true
		}
		remaining := make([]model.LineItem, 0, len(guest))
		for i, it := range guest {
			if !migrated[i] {
				remaining = append(remaining, it)
			}
		}
		r.saveLocal(ctx, guestKey, remaining)
	}

	r.deleteLocal(ctx, guestKey)
	r.logger.Info("guest items merged",
		slog.String("user_id", owner.UserID),
		slog.Int("inserted", plan.Count(reconcile.ActionInsert)),
		slog.Int("incremented", plan.Count(reconcile.ActionIncrement)),
		slog.Int("skipped", plan.Count(reconcile.ActionSkip)),
		slog.Int("failed", failed),
	)
}

func (r *Reconciler) applyStep(ctx context.Context, owner Owner, step reconcile.Step, guest []model.LineItem) error {
	switch step.Action {
	case reconcile.ActionInsert:
		src := guest[step.Sources[0]]
		item, err := model.NewLineItem(model.LineItemInput{
			OwnerID:    owner.UserID,
			ProductID:  src.ProductID,
			VariantID:  src.VariantID,
			Quantity:   step.NewQuantity,
			PriceAtAdd: src.PriceAtAdd,
			AddedAt:    src.AddedAt,
			Product:    src.Product,
			Variant:    src.Variant,
		}, r.defaults(owner.UserID))
		if err != nil {
			return err
		}
		_, err = r.endpoint.Insert(ctx, r.kind, owner, item)
		return err
	case reconcile.ActionIncrement:
		return r.endpoint.UpdateQuantity(ctx, r.kind, owner, step.BackendID, step.NewQuantity)
	default:
		return nil
	}
}

// Add puts an item into the collection. An existing (product, variant) pair
// gains quantity in a cart and is left alone in a wishlist.
func (r *Reconciler) Add(ctx context.Context, in AddInput) (model.LineItem, error) {
	if err := r.validateAdd(in); err != nil {
		return model.LineItem{}, err
	}

	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return model.LineItem{}, ErrClosed
	}
	key := model.ItemKey{ProductID: in.ProductID, VariantID: in.VariantID}
	idx := indexByKey(r.items, key)

	if r.userID == "" {
		defer r.mu.Unlock()
		if idx >= 0 {
			if r.kind == KindWishlist {
				return r.items[idx], nil
			}
			r.items[idx].Quantity += in.Quantity
			item := r.items[idx]
			r.persistGuestLocked(ctx)
			return item, nil
		}
		item, err := model.NewLineItem(r.input(in, ""), r.defaults(""))
		if err != nil {
			return model.LineItem{}, err
		}
		r.items = append(r.items, item)
		r.persistGuestLocked(ctx)
		return item, nil
	}

	r.mu.Unlock()

	r.adds.Lock()
	defer r.adds.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return model.LineItem{}, ErrClosed
	}
	idx = indexByKey(r.items, key)
	owner, gen := r.ownerLocked(), r.gen
	var existing *model.LineItem
	if idx >= 0 {
		e := r.items[idx]
		existing = &e
	}
	r.mu.Unlock()

	if existing != nil {
		if r.kind == KindWishlist {
			return *existing, nil
		}
		qty := existing.Quantity + in.Quantity
		if err := r.endpoint.UpdateQuantity(ctx, r.kind, owner, existing.ID, qty); err != nil {
			return model.LineItem{}, model.NewRemoteError("update "+string(r.kind)+" item", err)
		}
		existing.Quantity = qty
		r.applyRemote(ctx, gen, func(items []model.LineItem) []model.LineItem {
			if i := indexByID(items, existing.ID); i >= 0 {
				items[i].Quantity = qty
			}
			return items
		})
		return *existing, nil
	}

	item, err := model.NewLineItem(r.input(in, owner.UserID), r.defaults(owner.UserID))
	if err != nil {
		return model.LineItem{}, err
	}
	stored, err := r.endpoint.Insert(ctx, r.kind, owner, item)
	if err != nil {
		return model.LineItem{}, model.NewRemoteError("insert "+string(r.kind)+" item", err)
	}
	r.applyRemote(ctx, gen, func(items []model.LineItem) []model.LineItem {
		return upsertItem(items, stored)
	})
	return stored, nil
}

// UpdateQuantity sets a cart item's quantity. A quantity of zero or less
// removes the item.
func (r *Reconciler) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if r.kind == KindWishlist {
		return model.NewValidationError("quantity", "wishlist entries have no quantity")
	}
	if quantity <= 0 {
		return r.Remove(ctx, itemID)
	}

	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	idx := indexByID(r.items, itemID)
	if idx < 0 {
		r.mu.Unlock()
		return model.NewNotFoundError(string(r.kind) + " item")
	}

	if r.userID == "" {
		r.items[idx].Quantity = quantity
		r.persistGuestLocked(ctx)
		r.mu.Unlock()
		return nil
	}

	owner, gen := r.ownerLocked(), r.gen
	r.mu.Unlock()

	if err := r.endpoint.UpdateQuantity(ctx, r.kind, owner, itemID, quantity); err != nil {
		return model.NewRemoteError("update "+string(r.kind)+" item", err)
	}
	r.applyRemote(ctx, gen, func(items []model.LineItem) []model.LineItem {
		if i := indexByID(items, itemID); i >= 0 {
			items[i].Quantity = quantity
		}
		return items
	})
	return nil
}

// Remove deletes one item by id.
func (r *Reconciler) Remove(ctx context.Context, itemID string) error {
	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	idx := indexByID(r.items, itemID)
	if idx < 0 {
		r.mu.Unlock()
		return model.NewNotFoundError(string(r.kind) + " item")
	}

	if r.userID == "" {
		r.items = append(r.items[:idx:idx], r.items[idx+1:]...)
		r.persistGuestLocked(ctx)
		r.mu.Unlock()
		return nil
	}

	owner, gen := r.ownerLocked(), r.gen
	r.mu.Unlock()

	if err := r.endpoint.Delete(ctx, r.kind, owner, itemID); err != nil {
		return model.NewRemoteError("delete "+string(r.kind)+" item", err)
	}
	r.applyRemote(ctx, gen, func(items []model.LineItem) []model.LineItem {
		if i := indexByID(items, itemID); i >= 0 {
			return append(items[:i:i], items[i+1:]...)
		}
		return items
	})
	return nil
}

// Clear removes every item.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.userID == "" {
		r.items = nil
		r.persistGuestLocked(ctx)
		r.mu.Unlock()
		return nil
	}
	owner, gen := r.ownerLocked(), r.gen
	r.mu.Unlock()

	if err := r.endpoint.DeleteAll(ctx, r.kind, owner); err != nil {
		return model.NewRemoteError("clear "+string(r.kind), err)
	}
	r.applyRemote(ctx, gen, func([]model.LineItem) []model.LineItem { return nil })
	return nil
}

// Toggle adds the product to the wishlist, or removes it if already present.
// Reports whether the item is present afterwards.
func (r *Reconciler) Toggle(ctx context.Context, in AddInput) (bool, error) {
	if r.kind != KindWishlist {
		return false, model.NewValidationError("collection", "toggle is only supported on wishlists")
	}
	if item, ok := r.Find(in.ProductID, in.VariantID); ok {
		return false, r.Remove(ctx, item.ID)
	}
	_, err := r.Add(ctx, in)
	return err == nil, err
}

// Refresh re-reads the authoritative list: the remote collection when signed
// in, the guest key otherwise. Used when another tab or device changed it.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	userID, owner, gen := r.userID, r.ownerLocked(), r.gen
	r.mu.Unlock()

	if userID == "" {
		r.commit(gen, r.loadLocal(ctx, r.guestKey(), ""))
		return nil
	}

	items, err := r.fetch(ctx, owner)
	if err != nil {
		return model.NewRemoteError("fetch "+string(r.kind), err)
	}
	if r.commit(gen, items) {
		r.saveLocal(ctx, r.userKey(userID), items)
	}
	return nil
}

// Snapshot returns the read projection of the current items.
func (r *Reconciler) Snapshot() model.Snapshot {
	r.gate.RLock()
	defer r.gate.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.Project(r.items)
}

// Items returns a copy of the current items.
func (r *Reconciler) Items() []model.LineItem {
	return r.Snapshot().Items
}

// Find returns the item with the given product and variant.
func (r *Reconciler) Find(productID, variantID string) (model.LineItem, bool) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexByKey(r.items, model.ItemKey{ProductID: productID, VariantID: variantID}); i >= 0 {
		return r.items[i], true
	}
	return model.LineItem{}, false
}

// Contains reports whether the product and variant are in the collection.
func (r *Reconciler) Contains(productID, variantID string) bool {
	_, ok := r.Find(productID, variantID)
	return ok
}

// UserID returns the owner currently served, "" for guest.
func (r *Reconciler) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// fetch reads the remote list and drops rows that fail validation or belong
// to someone else.
func (r *Reconciler) fetch(ctx context.Context, owner Owner) ([]model.LineItem, error) {
	rows, err := r.endpoint.FetchAll(ctx, r.kind, owner)
	if err != nil {
		return nil, err
	}
	items, dropped := r.filter(rows, owner.UserID)
	if dropped > 0 {
		r.logger.Warn("dropped invalid remote rows", slog.String("user_id", owner.UserID), slog.Int("dropped", dropped))
	}
	return items, nil
}

// commit replaces memory with items unless the session changed meanwhile.
func (r *Reconciler) commit(gen uint64, items []model.LineItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.gen != gen {
		return false
	}
	r.items = items
	return true
}

// applyRemote mutates memory after a confirmed remote call and refreshes the
// per-user cache. Completions from a previous session are discarded.
func (r *Reconciler) applyRemote(ctx context.Context, gen uint64, mutate func([]model.LineItem) []model.LineItem) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		r.logger.Debug("discarding late remote completion")
		return
	}
	r.items = mutate(r.items)
	userID := r.userID
	items := make([]model.LineItem, len(r.items))
	copy(items, r.items)
	r.mu.Unlock()

	r.saveLocal(ctx, r.userKey(userID), items)
}

// upsertItem replaces the entry with the same ID or key, appending only when
// neither is present. A refresh may land the row before the insert returns.
func upsertItem(items []model.LineItem, item model.LineItem) []model.LineItem {
	i := indexByID(items, item.ID)
	if i < 0 {
		i = indexByKey(items, item.Key())
	}
	if i < 0 {
		return append(items, item)
	}
	items[i] = item
	return items
}

func (r *Reconciler) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.gen == gen
}

func (r *Reconciler) ownerLocked() Owner {
	return Owner{UserID: r.userID, AccessToken: r.accessToken(r.userID, nil)}
}

// accessToken prefers the live session, falling back to the one carried by
// the session change.
func (r *Reconciler) accessToken(userID string, fallback *model.Session) string {
	if r.sessions != nil {
		if s := r.sessions.Current(); s != nil && s.UserID == userID {
			return s.AccessToken
		}
	}
	if fallback != nil && fallback.UserID == userID {
		return fallback.AccessToken
	}
	return ""
}

func (r *Reconciler) persistGuestLocked(ctx context.Context) {
	r.saveLocal(ctx, r.guestKey(), r.items)
}

func (r *Reconciler) guestKey() string {
	return r.keys.Guest(string(r.kind))
}

func (r *Reconciler) userKey(userID string) string {
	return r.keys.User(string(r.kind), userID)
}

// loadLocal reads and filters a stored list. Filtered lists are written back.
func (r *Reconciler) loadLocal(ctx context.Context, key, ownerID string) []model.LineItem {
	var stored []model.LineItem
	if !r.store.Load(ctx, key, &stored) {
		return nil
	}
	items, dropped := r.filter(stored, ownerID)
	if dropped > 0 {
		r.logger.Warn("dropped invalid stored items", slog.String("key", key), slog.Int("dropped", dropped))
		r.saveLocal(ctx, key, items)
	}
	return items
}

// saveLocal writes a list. Failures were already retried and logged by the
// persister; memory is not rolled back.
func (r *Reconciler) saveLocal(ctx context.Context, key string, items []model.LineItem) {
	if items == nil {
		items = []model.LineItem{}
	}
	_ = r.store.Save(ctx, key, items)
}

func (r *Reconciler) deleteLocal(ctx context.Context, key string) {
	_ = r.store.Delete(ctx, key)
}

// filter drops items missing required fields and items owned by anyone but
// ownerID ("" for the guest list).
func (r *Reconciler) filter(items []model.LineItem, ownerID string) ([]model.LineItem, int) {
	out := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		if it.OwnerID != ownerID || !r.valid(it) {
			continue
		}
		out = append(out, it)
	}
	return out, len(items) - len(out)
}

func (r *Reconciler) valid(it model.LineItem) bool {
	if it.ProductID == "" || it.Product == nil {
		return false
	}
	if r.kind == KindWishlist {
		return true
	}
	return it.VariantID != "" && it.Variant != nil && it.Quantity >= 1
}

func (r *Reconciler) validateAdd(in AddInput) error {
	if in.ProductID == "" {
		return model.NewValidationError("product_id", "required")
	}
	if in.Product == nil {
		return model.NewValidationError("product", "snapshot required")
	}
	if r.kind == KindWishlist {
		return nil
	}
	if in.VariantID == "" || in.Variant == nil {
		return model.NewPreconditionError("VARIANT_REQUIRED", "select a size and color before adding to cart")
	}
	if in.Quantity < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	return nil
}

func (r *Reconciler) input(in AddInput, ownerID string) model.LineItemInput {
	return model.LineItemInput{
		OwnerID:   ownerID,
		ProductID: in.ProductID,
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
		Product:   in.Product,
		Variant:   in.Variant,
	}
}

// defaults are the fill rules for items created by this reconciler. Guest
// items get a local id; remote rows get theirs from the endpoint.
func (r *Reconciler) defaults(ownerID string) model.Defaults {
	d := model.Defaults{
		Now:          r.clock.Now,
		OwnerID:      ownerID,
		MinQuantity:  1,
		CapturePrice: true,
	}
	if ownerID == "" {
		d.NewID = r.newID
	}
	if r.kind == KindWishlist {
		d.FixedQuantity = 1
	}
	return d
}

func indexByKey(items []model.LineItem, key model.ItemKey) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func indexByID(items []model.LineItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
