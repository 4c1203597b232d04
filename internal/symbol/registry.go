package symbol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// DefaultCatalogTTL is used when Options.TTL is zero.
const DefaultCatalogTTL = 15 * time.Minute

// Options tune a Registry.
type Options struct {
	TTL time.Duration
	// Shared is an optional second-tier cache consulted before a venue fetch.
	Shared domain.CatalogCache
	// Now overrides the clock in tests.
	Now func() time.Time
}

type catalog struct {
	byKey     map[string]domain.VenueInstrumentRule
	byNative  map[string]domain.VenueInstrumentRule
	fetchedAt time.Time
}

// Registry resolves canonical instruments to venue-native symbols and order
// rules. Catalogs are fetched lazily per venue and cached for the TTL; a
// failed refresh keeps serving the previous catalog.
type Registry struct {
	sources map[string]domain.CatalogSource
	shared  domain.CatalogCache
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	catalogs map[string]*catalog
	group    singleflight.Group
}

// NewRegistry creates a Registry over the given per-venue catalog sources.
func NewRegistry(sources map[string]domain.CatalogSource, opts Options, logger *slog.Logger) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCatalogTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources:  sources,
		shared:   opts.Shared,
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   logger.With(slog.String("component", "symbol")),
		catalogs: make(map[string]*catalog),
	}
}

// Venues returns the configured venue names in lexical order.
func (r *Registry) Venues() []string {
	out := make([]string, 0, len(r.sources))
	for v := range r.sources {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Canonicalize is the package-level Canonicalize.
func (r *Registry) Canonicalize(s string) (string, error) {
	return Canonicalize(s)
}

// Resolve maps a canonical (or any parseable) instrument to the venue's
// native symbol and order rule. It never synthesizes a symbol the venue did
// not list.
func (r *Registry) Resolve(ctx context.Context, canonical, venue string) (string, domain.VenueInstrumentRule, error) {
	inst, err := ParseSymbol(canonical)
	if err != nil {
		return "", domain.VenueInstrumentRule{}, err
	}
	cat, err := r.catalog(ctx, venue)
	if err != nil {
		return "", domain.VenueInstrumentRule{}, err
	}
	rule, ok := cat.byKey[inst.Key()]
	if !ok {
		return "", domain.VenueInstrumentRule{}, fmt.Errorf("symbol: resolve %s on %s: %w", inst.Key(), venue, domain.ErrUnknownInstrument)
	}
	if !rule.Tradable {
		return "", domain.VenueInstrumentRule{}, fmt.Errorf("symbol: resolve %s on %s: not tradable: %w", inst.Key(), venue, domain.ErrUnknownInstrument)
	}
	return rule.NativeSymbol, rule, nil
}

// ResolveNative maps a venue-native symbol back to its canonical instrument.
func (r *Registry) ResolveNative(ctx context.Context, venue, native string) (domain.Instrument, domain.VenueInstrumentRule, error) {
	cat, err := r.catalog(ctx, venue)
	if err != nil {
		return domain.Instrument{}, domain.VenueInstrumentRule{}, err
	}
	rule, ok := cat.byNative[native]
	if !ok {
		return domain.Instrument{}, domain.VenueInstrumentRule{}, fmt.Errorf("symbol: resolve native %s on %s: %w", native, venue, domain.ErrUnknownInstrument)
	}
	return rule.Instrument, rule, nil
}

// Refresh forces a catalog fetch for one venue and drops the shared copy so
// other processes refetch too.
func (r *Registry) Refresh(ctx context.Context, venue string) error {
	src, ok := r.sources[venue]
	if !ok {
		return fmt.Errorf("symbol: no catalog source for venue %q: %w", venue, domain.ErrUnknownInstrument)
	}
	if r.shared != nil {
		if err := r.shared.Invalidate(ctx, venue); err != nil {
			r.logger.Warn("symbol: shared catalog invalidate failed",
				slog.String("venue", venue), slog.String("error", err.Error()))
		}
	}
	_, err, _ := r.group.Do("refresh:"+venue, func() (any, error) {
		return r.load(ctx, venue, src, false)
	})
	if err != nil {
		return fmt.Errorf("symbol: refresh catalog %s: %w: %w", venue, domain.ErrVenueUnavailable, err)
	}
	return nil
}

func (r *Registry) catalog(ctx context.Context, venue string) (*catalog, error) {
	src, ok := r.sources[venue]
	if !ok {
		return nil, fmt.Errorf("symbol: no catalog source for venue %q: %w", venue, domain.ErrUnknownInstrument)
	}

	r.mu.RLock()
	cur := r.catalogs[venue]
	r.mu.RUnlock()
	if cur != nil && r.now().Sub(cur.fetchedAt) < r.ttl {
		return cur, nil
	}

	v, err, _ := r.group.Do(venue, func() (any, error) {
		return r.load(ctx, venue, src, true)
	})
	if err != nil {
		if cur != nil {
			r.logger.Warn("symbol: catalog stale",
				slog.String("venue", venue),
				slog.Duration("age", r.now().Sub(cur.fetchedAt)),
				slog.String("error", err.Error()),
			)
			return cur, nil
		}
		return nil, fmt.Errorf("symbol: load catalog %s: %w: %w", venue, domain.ErrVenueUnavailable, err)
	}
	return v.(*catalog), nil
}

func (r *Registry) load(ctx context.Context, venue string, src domain.CatalogSource, useShared bool) (*catalog, error) {
	now := r.now()

	if useShared && r.shared != nil {
		cached, err := r.shared.GetCatalog(ctx, venue)
		switch {
		case err == nil && now.Sub(cached.FetchedAt) < r.ttl:
			c := index(cached.Rules, cached.FetchedAt)
			r.store(venue, c)
			return c, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			r.logger.Warn("symbol: shared catalog read failed",
				slog.String("venue", venue), slog.String("error", err.Error()))
		}
	}

	rules, err := src.FetchCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, errors.New("empty catalog")
	}
	for i := range rules {
		rules[i].Venue = venue
		rules[i].Instrument = domain.Instrument{
			Base:  NormalizeAsset(rules[i].Instrument.Base),
			Quote: NormalizeAsset(rules[i].Instrument.Quote),
		}
	}
	c := index(rules, now)
	r.store(venue, c)

	if r.shared != nil {
		cat := domain.Catalog{Venue: venue, Rules: rules, FetchedAt: now}
		if err := r.shared.SetCatalog(ctx, cat, r.ttl); err != nil {
			r.logger.Warn("symbol: shared catalog write failed",
				slog.String("venue", venue), slog.String("error", err.Error()))
		}
	}
	r.logger.Debug("symbol: catalog loaded", slog.String("venue", venue), slog.Int("instruments", len(rules)))
	return c, nil
}

func (r *Registry) store(venue string, c *catalog) {
	r.mu.Lock()
	r.catalogs[venue] = c
	r.mu.Unlock()
}

func index(rules []domain.VenueInstrumentRule, at time.Time) *catalog {
	c := &catalog{
		byKey:     make(map[string]domain.VenueInstrumentRule, len(rules)),
		byNative:  make(map[string]domain.VenueInstrumentRule, len(rules)),
		fetchedAt: at,
	}
	for _, rule := range rules {
		// A venue listing the same instrument twice keeps the tradable one.
		if prev, ok := c.byKey[rule.Instrument.Key()]; !ok || !prev.Tradable {
			c.byKey[rule.Instrument.Key()] = rule
		}
		c.byNative[rule.NativeSymbol] = rule
	}
	return c
}
