// Package contentsync decides, on every load, whether the cached section snapshot can
// be trusted or the remote store must be read, and always yields a renderable list.
package contentsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/kv"
)

const (
	DefaultSnapshotKey  = "sectionsCache"
	DefaultTTL          = 24 * time.Hour
	DefaultFetchTimeout = 30 * time.Second
)

// ErrRemoteEmpty marks a successful remote read that returned no sections.
var ErrRemoteEmpty = errors.New("remote returned no sections")

type Source string

const (
	SourceRemote   Source = "remote"
	SourceCache    Source = "cache"
	SourceDefaults Source = "defaults"
)

// Snapshot is the last good copy of the sections collection.
type Snapshot struct {
	Sections         []content.Section `json:"sections"`
	FetchedAtEpochMs int64             `json:"fetchedAtEpochMs"`
}

func (s Snapshot) FetchedAt() time.Time {
	return time.UnixMilli(s.FetchedAtEpochMs)
}

// Remote reads the full sections collection.
type Remote interface {
	ListSections(ctx context.Context) ([]content.Section, error)
}

// Fetched is one read from an upstream that may itself answer from a cache.
// A zero FetchedAt means the sections were read just now.
type Fetched struct {
	Sections  []content.Section
	FetchedAt time.Time
}

// UpstreamRemote is a Remote fronting another cache. The loader passes force through
// to it and keeps the upstream fetch time instead of stamping the snapshot with now.
type UpstreamRemote interface {
	Remote
	FetchSections(ctx context.Context, force bool) (Fetched, error)
}

// Result is the outcome of a load. Sections is never empty. Err carries whatever was
// recovered from (remote failure, empty remote, unreadable or unwritable snapshot) and
// is informational: the sections are usable regardless.
type Result struct {
	Sections  []content.Section
	Source    Source
	FetchedAt time.Time
	Err       error
}

// Degraded reports whether the sections are not a fresh or in-window copy of the remote.
func (r Result) Degraded() bool {
	return r.Err != nil || r.Source == SourceDefaults
}

type Loader struct {
	remote  Remote
	cache   kv.Store
	key     string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	observe func(Result)
	group   singleflight.Group

	// mu orders snapshot commits. A fetch that started before the last committed one
	// never overwrites it.
	mu        sync.Mutex
	issued    uint64
	committed uint64
}

type Option func(*Loader)

func WithTTL(ttl time.Duration) Option {
	return func(l *Loader) { l.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// WithFetchTimeout bounds one remote read. The read is detached from the caller's
// context because other callers may be waiting on it.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(l *Loader) { l.timeout = timeout }
}

func WithSnapshotKey(key string) Option {
	return func(l *Loader) { l.key = key }
}

// WithObserver is called once per Load with its result.
func WithObserver(fn func(Result)) Option {
	return func(l *Loader) { l.observe = fn }
}

func NewLoader(remote Remote, cache kv.Store, opts ...Option) *Loader {
	l := &Loader{
		remote: remote,
		cache:  cache,
		key:    DefaultSnapshotKey,
		ttl:     DefaultTTL,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the sections to render. Unless force is set, a snapshot younger than the
// TTL is returned without touching the remote. Concurrent loads with the same force
// flag share one remote read; a caller that gives up leaves the read running for the
// others.
func (l *Loader) Load(ctx context.Context, force bool) Result {
	flight := "stale"
	if force {
		flight = "force"
	}
	ch := l.group.DoChan(flight, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.load(fetchCtx, force), nil
	})

	var result Result
	select {
	case res := <-ch:
		result = res.Val.(Result)
		result.Sections = cloneSections(result.Sections)
	case <-ctx.Done():
		result = Result{Sections: content.DefaultSections(), Source: SourceDefaults, Err: ctx.Err()}
	}
	if l.observe != nil {
		l.observe(result)
	}
	return result
}

func (l *Loader) load(ctx context.Context, force bool) Result {
	now := l.now()

	var (
		snapshot    Snapshot
		hasSnapshot bool
		cacheErr    error
	)
	readCache := func() {
		snapshot, hasSnapshot, cacheErr = l.readSnapshot(ctx)
	}

	if !force {
		readCache()
		if hasSnapshot && now.Sub(snapshot.FetchedAt()) < l.ttl {
			return Result{Sections: snapshot.Sections, Source: SourceCache, FetchedAt: snapshot.FetchedAt(), Err: cacheErr}
		}
	}

	ticket := l.ticket()
	fetched, err := l.fetch(ctx, force)
	if err == nil && len(fetched.Sections) > 0 {
		stamp := now
		if !fetched.FetchedAt.IsZero() && fetched.FetchedAt.Before(now) {
			stamp = fetched.FetchedAt
		}
		current, err := l.commit(ctx, ticket, Snapshot{Sections: fetched.Sections, FetchedAtEpochMs: stamp.UnixMilli()})
		return Result{Sections: current.Sections, Source: SourceRemote, FetchedAt: current.FetchedAt(), Err: err}
	}
	if err == nil {
		err = ErrRemoteEmpty
	} else {
		err = fmt.Errorf("fetch sections: %w", err)
	}

	if force {
		readCache()
	}
	if hasSnapshot {
		return Result{Sections: snapshot.Sections, Source: SourceCache, FetchedAt: snapshot.FetchedAt(), Err: errors.Join(err, cacheErr)}
	}
	return Result{Sections: content.DefaultSections(), Source: SourceDefaults, Err: errors.Join(err, cacheErr)}
}

func (l *Loader) fetch(ctx context.Context, force bool) (Fetched, error) {
	if upstream, ok := l.remote.(UpstreamRemote); ok {
		return upstream.FetchSections(ctx, force)
	}
	sections, err := l.remote.ListSections(ctx)
	return Fetched{Sections: sections}, err
}

func (l *Loader) ticket() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

// commit stores fresh unless a fetch that started later already committed, or the
// stored snapshot is newer. It returns the snapshot that is current afterwards.
func (l *Loader) commit(ctx context.Context, ticket uint64, fresh Snapshot) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok, _ := l.readSnapshot(ctx)
	superseded := ticket < l.committed || (ok && stored.FetchedAtEpochMs > fresh.FetchedAtEpochMs)
	if superseded {
		if ok {
			return stored, nil
		}
		return fresh, nil
	}
	if err := l.writeSnapshot(ctx, fresh); err != nil {
		return fresh, err
	}
	l.committed = ticket
	return fresh, nil
}

// Snapshot returns the stored snapshot, if any.
func (l *Loader) Snapshot(ctx context.Context) (Snapshot, bool, error) {
	return l.readSnapshot(ctx)
}

func (l *Loader) readSnapshot(ctx context.Context) (Snapshot, bool, error) {
	raw, err := l.cache.Get(ctx, l.key)
	if errors.Is(err, kv.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(snapshot.Sections) == 0 {
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

func (l *Loader) writeSnapshot(ctx context.Context, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := l.cache.Set(ctx, l.key, string(raw), 0); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func cloneSections(sections []content.Section) []content.Section {
	out := make([]content.Section, len(sections))
	for i, section := range sections {
		if section.Order != nil {
			order := *section.Order
			section.Order = &order
		}
		out[i] = section
	}
	return out
}
