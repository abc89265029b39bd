package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"statemesh/internal/logging"
)

// ingestCapacity bounds the async write queue. A queue this deep absorbs
// ordinary write bursts; once full, further writes are dropped rather than
// blocking the caller, trading durability for a predictable latency
// ceiling under sustained overload.
const ingestCapacity = 64000

// defaultPurgeInterval is how often the background sweep scans for expired
// entries when PurgeInterval is left unset.
const defaultPurgeInterval = 60000 * time.Millisecond

type ingestRequest struct {
	key   string
	entry Entry
}

// DefaultEngine is the state engine: an in-memory store fed by a
// single-consumer ingest worker, with a background purge sweep for expiry
// and a data seeder consulted once at startup.
type DefaultEngine struct {
	Seeder DataSeeder

	// DefaultTTL, when set, is assigned to any incoming write that
	// doesn't specify its own TTL.
	DefaultTTL *int64
	// PurgeInterval overrides how often the background sweep runs; zero
	// means defaultPurgeInterval.
	PurgeInterval time.Duration

	store  *store
	ingest chan ingestRequest
	log    *logrus.Entry
}

// NewDefaultEngine constructs an engine around the given seeder. seeder may
// be nil, in which case the engine starts empty.
func NewDefaultEngine(seeder DataSeeder) *DefaultEngine {
	return &DefaultEngine{
		Seeder: seeder,
		store:  newStore(),
		ingest: make(chan ingestRequest, ingestCapacity),
		log:    logging.For("state-engine"),
	}
}

func (e *DefaultEngine) purgeInterval() time.Duration {
	if e.PurgeInterval <= 0 {
		return defaultPurgeInterval
	}
	return e.PurgeInterval
}

// Init loads the seed snapshot (if a seeder is configured) and starts the
// background ingest worker and purge sweep. It returns once the seed data
// has been loaded; the background goroutines run until ctx is done.
func (e *DefaultEngine) Init(ctx context.Context) error {
	if e.Seeder != nil {
		seed, err := e.Seeder.Load()
		if err != nil {
			e.log.Warnf("seeder returned an error, starting empty: %v", err)
		}
		for k, v := range seed {
			e.applyIncoming(k, v)
		}
	}

	go e.ingestLoop(ctx)
	go e.purgeLoop(ctx)
	return nil
}

func (e *DefaultEngine) ingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.ingest:
			e.applyIncoming(req.key, req.entry)
		}
	}
}

// applyIncoming runs the merge steps that precede the store's own
// compare-and-replace: assigning the current time to a write that omits
// its own ts, dropping an already-expired write, and assigning the
// engine's default TTL to a write that doesn't carry its own.
func (e *DefaultEngine) applyIncoming(key string, incoming Entry) {
	if incoming.TS == nil {
		now := EpochMillis()
		incoming.TS = &now
	}
	if incoming.IsExpired(EpochMillis()) {
		return
	}
	if incoming.TTL == nil && e.DefaultTTL != nil {
		ttl := *e.DefaultTTL
		incoming.TTL = &ttl
	}
	e.store.put(key, incoming)
}

func (e *DefaultEngine) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(e.purgeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := e.store.purge(EpochMillis())
			if removed > 0 {
				e.log.Debugf("purged %d expired entries", removed)
			}
		}
	}
}

// Set enqueues a write. It never blocks: if the ingest queue is full the
// write is dropped silently, per the engine's overload contract.
func (e *DefaultEngine) Set(key string, entry Entry) {
	select {
	case e.ingest <- ingestRequest{key: key, entry: entry}:
	default:
		e.log.Warnf("ingest queue full, dropping write for key %q", key)
	}
}

// Get returns the live entry for key, if any.
func (e *DefaultEngine) Get(key string) (Entry, bool) {
	return e.store.get(key, EpochMillis())
}

// GetRoot returns a snapshot of every live entry.
func (e *DefaultEngine) GetRoot() map[string]Entry {
	return e.store.root(EpochMillis())
}

// Diff returns the entries that differ between this engine's store and
// other: for a shared key, whichever side has the smaller ts; for a key on
// only one side, that side's entry as-is.
func (e *DefaultEngine) Diff(other map[string]Entry) map[string]Entry {
	return e.store.diff(other, EpochMillis())
}

// Version returns the engine's current content version.
func (e *DefaultEngine) Version() uint64 {
	return e.store.versionHash(EpochMillis())
}

// Len reports the number of live (non-expired) entries, whether or not the
// purge sweep has removed the expired ones yet. It exists primarily so
// tests can count live entries without reaching past the engine's public
// surface.
func (e *DefaultEngine) Len() int {
	return e.store.length(EpochMillis())
}
