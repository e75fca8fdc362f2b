package graph

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"
)

type watcher struct {
	id   int64
	run  func()
	deps map[RecordId]struct{}
}

// Store is the flat, versioned record store backing the cache (spec §4.2).
// All operations are synchronous; no operation suspends (spec §5).
type Store struct {
	mu       sync.Mutex
	records  map[RecordId]Record
	versions map[RecordId]uint64
	// proxies holds each record's *RecordProxy by weak reference only: once
	// a consumer drops its last strong reference and no watcher dependency
	// keeps it reachable, the garbage collector is free to reclaim it (spec
	// §3 "Proxies are held by weak reference", §5 Memory, §9 Design Notes).
	// evictProxy, registered via runtime.AddCleanup, drops the now-dead
	// entry from the map once the runtime runs that cleanup; until then,
	// MaterializeRecord replaces a dead entry it finds with a fresh proxy.
	proxies map[RecordId]weak.Pointer[RecordProxy]

	identity IdentityConfig
	logger   *zap.Logger

	watchers     map[int64]*watcher
	depsByRecord map[RecordId]map[int64]struct{}

	typeWatchers map[string]map[int64]*watcher
	nextID       int64

	// currentWatcher is the id of the watcher whose run() is presently
	// executing, so that field access on a RecordProxy can register an
	// implicit dependency (spec §4.5 "Reactivity"). 0 means no watcher is
	// running. The store is specified as single-threaded cooperative (§5),
	// so a single field is sufficient rather than a per-goroutine stack.
	currentWatcher int64

	batchDepth      int
	pendingNotifies map[RecordId]struct{}

	// OnWrite, OnNotify are optional observability hooks wired by the
	// top-level Cache (telemetry spans/metrics); nil by default.
	OnWrite  func(id RecordId)
	OnNotify func(id RecordId)
	// OnRecordCountChange and OnWatcherCountChange report the store's
	// current record and watcher counts after every change, letting the
	// top-level Cache keep a records/watchers gauge live without polling
	// Keys()/watcher maps on a timer.
	OnRecordCountChange  func(count int)
	OnWatcherCountChange func(count int)
}

// NewStore creates a Store with its root record already present.
func NewStore(identity IdentityConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		records:      make(map[RecordId]Record),
		versions:     make(map[RecordId]uint64),
		proxies:      make(map[RecordId]weak.Pointer[RecordProxy]),
		identity:     identity,
		logger:       logger,
		watchers:     make(map[int64]*watcher),
		depsByRecord: make(map[RecordId]map[int64]struct{}),
		typeWatchers: make(map[string]map[int64]*watcher),
	}
	s.records[RootID] = Record{"id": RootID, "__typename": RootID}
	s.versions[RootID] = 1
	return s
}

// Identify returns the RecordId for obj, or ok=false if it cannot be
// identified (spec §4.2 identify).
func (s *Store) Identify(obj map[string]interface{}) (RecordId, bool) {
	return s.identity.Identify(obj)
}

// Canonicalize exposes the identity config's interface canonicalization.
func (s *Store) Canonicalize(typename string) string {
	return s.identity.Canonicalize(typename)
}

// GetRecord returns a snapshot copy of the record, or nil if absent.
func (s *Store) GetRecord(id RecordId) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

// Version returns the current version stamp for id (0 if absent).
func (s *Store) Version(id RecordId) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[id]
}

// PutRecord field-wise merges partial into the record at id, creating it if
// absent. A field whose value is Delete{} is removed. Returns whether any
// field actually changed (spec I1, §4.2).
func (s *Store) PutRecord(id RecordId, partial Record) bool {
	s.mu.Lock()

	existing, existed := s.records[id]
	base := existing.Clone()
	if base == nil {
		base = Record{}
	}
	next := base.Clone()

	changed := false
	for k, v := range partial {
		if _, isDelete := v.(Delete); isDelete {
			if _, had := next[k]; had {
				delete(next, k)
				changed = true
			}
			continue
		}
		if k == "id" {
			v = StringifyID(v)
		}
		if old, had := next[k]; !had || !valuesEqual(old, v) {
			next[k] = v
			changed = true
		}
	}

	if !changed {
		s.mu.Unlock()
		return false
	}

	s.records[id] = next
	s.versions[id]++
	version := s.versions[id]

	if wp, ok := s.proxies[id]; ok {
		if proxy := wp.Value(); proxy != nil {
			proxy.applyDiff(base, next, version)
		}
	}

	var newTypename string
	if !existed {
		if tn, ok := next["__typename"].(string); ok {
			newTypename = tn
		}
	}
	recordCount := len(s.records)
	s.mu.Unlock()

	if s.OnWrite != nil {
		s.OnWrite(id)
	}
	if !existed && s.OnRecordCountChange != nil {
		s.OnRecordCountChange(recordCount)
	}
	s.notify(id)
	if newTypename != "" {
		s.notifyType(newTypename)
	}
	return true
}

// RemoveRecord deletes the record at id and clears any live proxy's fields
// (spec §4.2 removeRecord).
func (s *Store) RemoveRecord(id RecordId) {
	s.mu.Lock()
	existing, existed := s.records[id]
	if !existed {
		s.mu.Unlock()
		return
	}
	delete(s.records, id)
	s.versions[id]++
	version := s.versions[id]
	if wp, ok := s.proxies[id]; ok {
		if proxy := wp.Value(); proxy != nil {
			proxy.applyRemoved(version)
		}
	}
	typename, _ := existing["__typename"].(string)
	recordCount := len(s.records)
	s.mu.Unlock()

	if s.OnRecordCountChange != nil {
		s.OnRecordCountChange(recordCount)
	}
	s.notify(id)
	if typename != "" {
		s.notifyType(typename)
	}
}

// MaterializeRecord returns the live proxy for id, creating it on first use
// and repairing any version drift (spec §4.2 materializeRecord). The
// returned proxy is only weakly held by the store (spec §3): once this and
// every other strong reference to it is dropped and no watcher depends on
// it, a later call to MaterializeRecord allocates a fresh one.
func (s *Store) MaterializeRecord(id RecordId) *RecordProxy {
	s.mu.Lock()
	defer s.mu.Unlock()

	var proxy *RecordProxy
	isNew := true
	if wp, ok := s.proxies[id]; ok {
		if p := wp.Value(); p != nil {
			proxy, isNew = p, false
		}
	}
	if proxy == nil {
		proxy = &RecordProxy{store: s, id: id}
		s.proxies[id] = weak.Make(proxy)
		runtime.AddCleanup(proxy, s.evictProxy, id)
	}

	version := s.versions[id]
	if proxy.Version() != version || isNew {
		record := s.records[id]
		if record == nil && proxy.Version() != 0 {
			proxy.applyRemoved(version)
		} else {
			proxy.applyFull(record, version)
		}
	}
	return proxy
}

// evictProxy drops id's map slot once its RecordProxy has actually been
// collected. Registered as a runtime.AddCleanup callback rather than a
// finalizer so it fires even if the proxy participates in a cycle, and
// takes id (not the proxy) as its argument so the cleanup itself never
// keeps the proxy reachable.
func (s *Store) evictProxy(id RecordId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wp, ok := s.proxies[id]; ok && wp.Value() == nil {
		delete(s.proxies, id)
	}
}

// Keys returns every record id currently in the store.
func (s *Store) Keys() []RecordId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordId, 0, len(s.records))
	for k := range s.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clear removes every record. Used by Hydrate before replaying a snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	for _, wp := range s.proxies {
		if proxy := wp.Value(); proxy != nil {
			proxy.applyRemoved(proxy.Version() + 1)
		}
	}
	s.records = make(map[RecordId]Record)
	s.versions = make(map[RecordId]uint64)
	s.records[RootID] = Record{"id": RootID, "__typename": RootID}
	s.versions[RootID] = 1
	s.mu.Unlock()
}

// trackCurrentWatcher registers a dependency of the running watcher (if
// any) on recordID. Called automatically by RecordProxy field access.
func (s *Store) trackCurrentWatcher(recordID RecordId) {
	id := atomic.LoadInt64(&s.currentWatcher)
	if id == 0 {
		return
	}
	s.TrackDependency(id, recordID)
}

// TrackDependency records that watcher depends on recordID (spec §4.2
// "trackDependency(id, recordId) records an edge").
func (s *Store) TrackDependency(watcherID int64, recordID RecordId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchers[watcherID]
	if !ok {
		return
	}
	if w.deps == nil {
		w.deps = make(map[RecordId]struct{})
	}
	w.deps[recordID] = struct{}{}
	set, ok := s.depsByRecord[recordID]
	if !ok {
		set = make(map[int64]struct{})
		s.depsByRecord[recordID] = set
	}
	set[watcherID] = struct{}{}
}

// RegisterWatcher registers run and executes it once immediately to
// establish its initial dependency set, returning a handle usable with
// UnregisterWatcher (spec §4.2 "registerWatcher(run) → id").
func (s *Store) RegisterWatcher(run func()) int64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	w := &watcher{id: id, run: run}
	s.watchers[id] = w
	watcherCount := len(s.watchers)
	s.mu.Unlock()

	if s.OnWatcherCountChange != nil {
		s.OnWatcherCountChange(watcherCount)
	}
	s.runWatcher(id)
	return id
}

// UnregisterWatcher removes a watcher and its dependency edges.
func (s *Store) UnregisterWatcher(id int64) {
	s.mu.Lock()
	w, ok := s.watchers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	for recordID := range w.deps {
		if set, ok := s.depsByRecord[recordID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.depsByRecord, recordID)
			}
		}
	}
	delete(s.watchers, id)
	watcherCount := len(s.watchers)
	s.mu.Unlock()

	if s.OnWatcherCountChange != nil {
		s.OnWatcherCountChange(watcherCount)
	}
}

// runWatcher clears a watcher's previous dependency edges, runs it with
// currentWatcher set, and lets the run() body re-establish dependencies via
// field access.
func (s *Store) runWatcher(id int64) {
	s.mu.Lock()
	w, ok := s.watchers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	for recordID := range w.deps {
		if set, ok := s.depsByRecord[recordID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.depsByRecord, recordID)
			}
		}
	}
	w.deps = make(map[RecordId]struct{})
	run := w.run
	s.mu.Unlock()

	prev := atomic.SwapInt64(&s.currentWatcher, id)
	defer atomic.StoreInt64(&s.currentWatcher, prev)
	run()
}

// notify runs every watcher depending on recordID, synchronously unless a
// Batch is in progress (spec §5 "Watcher notifications are executed
// synchronously at the end of each write unless a batching adapter
// coalesces them").
func (s *Store) notify(recordID RecordId) {
	if s.OnNotify != nil {
		s.OnNotify(recordID)
	}
	s.mu.Lock()
	if s.batchDepth > 0 {
		if s.pendingNotifies == nil {
			s.pendingNotifies = make(map[RecordId]struct{})
		}
		s.pendingNotifies[recordID] = struct{}{}
		s.mu.Unlock()
		return
	}
	watcherIDs := s.watcherIDsFor(recordID)
	s.mu.Unlock()

	for _, id := range watcherIDs {
		s.runWatcher(id)
	}
}

func (s *Store) watcherIDsFor(recordID RecordId) []int64 {
	set, ok := s.depsByRecord[recordID]
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Batch defers watcher notifications until fn returns, coalescing repeated
// writes to the same record into a single run per watcher (spec §5, and
// SPEC_FULL §12 "watcher batching").
func (s *Store) Batch(fn func()) {
	s.mu.Lock()
	s.batchDepth++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batchDepth--
		var pending map[RecordId]struct{}
		if s.batchDepth == 0 {
			pending = s.pendingNotifies
			s.pendingNotifies = nil
		}
		s.mu.Unlock()
		for recordID := range pending {
			s.notify(recordID)
		}
	}()

	fn()
}

// RegisterTypeWatcher registers run to be called whenever a record of
// typename is added or removed (spec §4.2 "type-watcher channel").
func (s *Store) RegisterTypeWatcher(typename string, run func()) int64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	set, ok := s.typeWatchers[typename]
	if !ok {
		set = make(map[int64]*watcher)
		s.typeWatchers[typename] = set
	}
	set[id] = &watcher{id: id, run: run}
	s.mu.Unlock()
	return id
}

// UnregisterTypeWatcher removes a type watcher.
func (s *Store) UnregisterTypeWatcher(typename string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.typeWatchers[typename]; ok {
		delete(set, id)
	}
}

func (s *Store) notifyType(typename string) {
	s.mu.Lock()
	set, ok := s.typeWatchers[typename]
	if !ok {
		s.mu.Unlock()
		return
	}
	runs := make([]func(), 0, len(set))
	for _, w := range set {
		runs = append(runs, w.run)
	}
	s.mu.Unlock()
	for _, run := range runs {
		run()
	}
}
