// Package cachebay implements a normalized, reactive client-side cache for
// GraphQL responses: it decomposes query/mutation results into a flat store
// of records addressed by stable identity, and re-materializes arbitrary
// queries and fragments from that store with live propagation.
package cachebay

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/cerr"
	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
	"github.com/cachebay/cachebay/internal/materializer"
	"github.com/cachebay/cachebay/internal/normalizer"
	"github.com/cachebay/cachebay/internal/optimistic"
	"github.com/cachebay/cachebay/internal/persist"
	"github.com/cachebay/cachebay/internal/telemetry"
)

// DecisionMode selects how a read resolves @connection fields, independent
// of any single field's compiled connection mode (spec §4.5).
type DecisionMode string

const (
	// DecisionCanonical reads connections through their deduplicated
	// canonical union (the default).
	DecisionCanonical DecisionMode = "canonical"
	// DecisionStrict reads connections through the exact concrete page
	// matching the request's variables, with no union and no dedup.
	DecisionStrict DecisionMode = "strict"
)

// Config configures identity and default read behavior for a Cache (spec
// SPEC_FULL §10.3). It is validated at New time; invalid configuration
// fails fast rather than mid-write.
type Config struct {
	// KeyFuncs maps a typename to a function deriving its resolvable key.
	// Typenames with no entry fall back to the "id" field.
	KeyFuncs map[string]graph.KeyFunc `validate:"-"`
	// Interfaces maps an interface typename to the concrete typenames that
	// implement it, so that polymorphic writes collapse onto one record.
	Interfaces map[string][]string `validate:"-"`
	// DefaultDecisionMode is used by ReadQuery when the caller does not
	// specify one. Defaults to "canonical".
	DefaultDecisionMode DecisionMode `validate:"omitempty,oneof=canonical strict"`
}

func (c Config) identity() graph.IdentityConfig {
	return graph.IdentityConfig{KeyFuncs: c.KeyFuncs, Interfaces: c.Interfaces}
}

// Cache is the normalized reactive cache instance (spec §6 "Public instance
// API").
type Cache struct {
	store        *graph.Store
	compiler     *compiler.Compiler
	canonical    *canonical.Engine
	normalizer   *normalizer.Normalizer
	materializer *materializer.Materializer
	optimistic   *optimistic.Manager
	logger       *zap.Logger
	metrics      *telemetry.Metrics
	tracer       *telemetry.Tracer
	persistence  *persist.FileSnapshotStore

	defaultDecisionMode DecisionMode
	hydrating           bool
}

// Option customizes Cache construction.
type Option func(*options)

type options struct {
	logger           *zap.Logger
	metricsNamespace string
	tracerService    string
	persistDir       string
	batchedNotify    bool
}

// WithLogger installs a *zap.Logger threaded through every subsystem.
// Without this option the cache is silent (zap.NewNop).
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables prometheus counters under namespace (spec SPEC_FULL
// §10.6). Without this option no metrics are recorded.
func WithMetrics(namespace string) Option {
	return func(o *options) { o.metricsNamespace = namespace }
}

// WithTracing enables otel spans under serviceName (spec SPEC_FULL §10.6).
// Spans are a no-op unless the process also installs a real TracerProvider.
func WithTracing(serviceName string) Option {
	return func(o *options) { o.tracerService = serviceName }
}

// WithPersistence enables a file-backed snapshot store rooted at dir, used
// by PersistToDisk/LoadFromDisk (spec SPEC_FULL §11, an opt-in adapter built
// on the §6 dehydrate/hydrate wire contract).
func WithPersistence(dir string) Option {
	return func(o *options) { o.persistDir = dir }
}

// WithBatchedNotify is an opt-in marker with no effect on behaviour: writes
// inside a Batch call have their watcher notifications deferred to the end
// of the batch whether or not this option is set, and writes outside a
// Batch notify synchronously either way.
func WithBatchedNotify() Option {
	return func(o *options) { o.batchedNotify = true }
}

var validate = validator.New()

// New constructs a Cache from cfg, failing fast on invalid configuration
// (spec SPEC_FULL §10.3).
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.DefaultDecisionMode == "" {
		cfg.DefaultDecisionMode = DecisionCanonical
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, cerr.Usagef("New", "invalid configuration", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := graph.NewStore(cfg.identity(), logger)
	canon := canonical.New(store, logger)

	var metrics *telemetry.Metrics
	if o.metricsNamespace != "" {
		metrics = telemetry.NewMetrics(o.metricsNamespace)
		store.OnWrite = func(graph.RecordId) { metrics.WritesTotal.WithLabelValues("write").Inc() }
		store.OnRecordCountChange = func(n int) { metrics.RecordsTotal.Set(float64(n)) }
		store.OnWatcherCountChange = func(n int) { metrics.WatchersTotal.Set(float64(n)) }
	}

	var tracer *telemetry.Tracer
	if o.tracerService != "" {
		tracer = telemetry.NewTracer(o.tracerService)
	}

	if metrics != nil || tracer != nil {
		canon.SetOnBuild(func(canonicalKey graph.RecordId) {
			if metrics != nil {
				metrics.CanonicalRebuildsTotal.WithLabelValues("rebuild").Inc()
			}
			if tracer != nil {
				_, span := tracer.StartCanonicalRebuild(context.Background(), string(canonicalKey))
				span.End()
			}
		})
	}

	c := &Cache{
		store:               store,
		compiler:            compiler.New(),
		canonical:           canon,
		normalizer:          normalizer.New(store, canon, logger),
		materializer:        materializer.New(store, canon, logger),
		optimistic:          optimistic.New(store, logger),
		logger:              logger,
		metrics:             metrics,
		tracer:              tracer,
		defaultDecisionMode: cfg.DefaultDecisionMode,
	}

	if o.persistDir != "" {
		ps, err := persist.NewFileSnapshotStore(o.persistDir, 0, logger)
		if err != nil {
			return nil, fmt.Errorf("cachebay: persistence: %w", err)
		}
		c.persistence = ps
	}

	if o.batchedNotify {
		// nothing further to wire: graph.Store.Batch is always available;
		// WithBatchedNotify exists as a documented opt-in marker (callers
		// invoke Batch explicitly either way) per spec §5.
		_ = o.batchedNotify
	}

	return c, nil
}

// Identify returns the RecordId for obj, or ok=false if it cannot be
// identified (spec §6 "identify(obj) → id | null").
func (c *Cache) Identify(obj map[string]interface{}) (graph.RecordId, bool) {
	return c.store.Identify(obj)
}

// ReadQueryInput is the argument to ReadQuery.
type ReadQueryInput struct {
	Query        string
	Variables    map[string]interface{}
	DecisionMode DecisionMode // empty uses the cache's configured default
}

// ReadQuery materializes query against the store (spec §6 "readQuery").
// It fails only with a usage error when the query does not compile: a
// query that cannot be fully materialized returns zero-shaped data with
// Complete=false (spec §7).
func (c *Cache) ReadQuery(in ReadQueryInput) (materializer.Result, error) {
	plan, err := c.compiler.Compile(in.Query)
	if err != nil {
		return materializer.Result{}, cerr.Usagef("ReadQuery", "compile query", err)
	}

	mode := in.DecisionMode
	if mode == "" {
		mode = c.defaultDecisionMode
	}
	if mode == DecisionStrict {
		plan = planWithStrictConnections(plan)
	}

	if c.tracer != nil {
		_, span := c.tracer.StartMaterialize(context.Background(), plan.RootTypename)
		defer span.End()
	}
	return c.materializer.MaterializeDocument(plan, in.Variables), nil
}

// WriteQueryInput is the argument to WriteQuery.
type WriteQueryInput struct {
	Query     string
	Variables map[string]interface{}
	Data      map[string]interface{}
	// Origin distinguishes a fresh network result from a cache prewarm
	// replay (spec §4.4); defaults to "network".
	Origin string
}

// WriteQuery normalizes data into the store according to query (spec §6
// "writeQuery").
func (c *Cache) WriteQuery(in WriteQueryInput) error {
	plan, err := c.compiler.Compile(in.Query)
	if err != nil {
		return cerr.Usagef("WriteQuery", "compile query", err)
	}
	if c.tracer != nil {
		_, span := c.tracer.StartNormalize(context.Background(), plan.RootTypename)
		defer span.End()
	}
	c.normalizer.Normalize(normalizer.Input{Plan: plan, Variables: in.Variables, Data: in.Data, Origin: in.Origin})
	return nil
}

// ReadFragmentInput is the argument to ReadFragment.
type ReadFragmentInput struct {
	ID        graph.RecordId
	Fragment  string
	Variables map[string]interface{}
}

// ReadFragment projects a single record through a standalone fragment
// document (spec §4.6, §6 "readFragment"). id must be a non-empty string;
// an empty id is a usage error (spec §7).
func (c *Cache) ReadFragment(in ReadFragmentInput) (materializer.Result, error) {
	if in.ID == "" {
		return materializer.Result{}, cerr.Usage("ReadFragment", "id must not be empty")
	}
	plan, err := c.compiler.Compile(in.Fragment)
	if err != nil {
		return materializer.Result{}, cerr.Usagef("ReadFragment", "compile fragment", err)
	}
	return c.materializer.ReadFragment(in.ID, plan, in.Variables), nil
}

// WriteFragmentInput is the argument to WriteFragment.
type WriteFragmentInput struct {
	ID        graph.RecordId
	Fragment  string
	Data      map[string]interface{}
	Variables map[string]interface{}
}

// WriteFragment writes data onto the entity at id through a standalone
// fragment document (spec §4.6, §6 "writeFragment").
func (c *Cache) WriteFragment(in WriteFragmentInput) error {
	if in.ID == "" {
		return cerr.Usage("WriteFragment", "id must not be empty")
	}
	plan, err := c.compiler.Compile(in.Fragment)
	if err != nil {
		return cerr.Usagef("WriteFragment", "compile fragment", err)
	}
	c.normalizer.NormalizeEntity(in.ID, plan.Root, in.Variables, in.Data, "network")
	return nil
}

// MaterializeEntity returns the live proxy for id (spec §6
// "materializeEntity(id) → proxy").
func (c *Cache) MaterializeEntity(id graph.RecordId) *graph.RecordProxy {
	return c.store.MaterializeRecord(id)
}

// OptimisticHandle is the {commit(), revert()} pair spec §6 describes for
// modifyOptimistic.
type OptimisticHandle struct {
	id  string
	mgr *optimistic.Manager
}

// Commit finalizes the layer, keeping its writes in place.
func (h OptimisticHandle) Commit() error { return h.mgr.Commit(h.id) }

// Revert undoes every write the layer made, restoring prior state.
func (h OptimisticHandle) Revert() error { return h.mgr.Revert(h.id) }

// ModifyOptimistic opens a transactional optimistic layer, running build
// immediately against it (spec §6 "modifyOptimistic(build) → {commit(),
// revert()}").
func (c *Cache) ModifyOptimistic(build func(w optimistic.Writer)) (OptimisticHandle, error) {
	id := uuid.NewString()
	if _, err := c.optimistic.Begin(id, build); err != nil {
		return OptimisticHandle{}, err
	}
	return OptimisticHandle{id: id, mgr: c.optimistic}, nil
}

// RegisterWatcher registers run, executing it once immediately to establish
// its dependency set (spec §4.2, §6).
func (c *Cache) RegisterWatcher(run func()) int64 { return c.store.RegisterWatcher(run) }

// UnregisterWatcher removes a watcher registered with RegisterWatcher.
func (c *Cache) UnregisterWatcher(id int64) { c.store.UnregisterWatcher(id) }

// TrackDependency records that the watcher identified by watcherID depends
// on recordID (spec §4.2 "trackDependency").
func (c *Cache) TrackDependency(watcherID int64, recordID graph.RecordId) {
	c.store.TrackDependency(watcherID, recordID)
}

// RegisterTypeWatcher registers run to run on membership changes (entity
// add/remove) for typename (spec §4.2 "type-watcher channel").
func (c *Cache) RegisterTypeWatcher(typename string, run func()) int64 {
	return c.store.RegisterTypeWatcher(typename, run)
}

// UnregisterTypeWatcher removes a type watcher registered with
// RegisterTypeWatcher.
func (c *Cache) UnregisterTypeWatcher(typename string, id int64) {
	c.store.UnregisterTypeWatcher(typename, id)
}

// Batch coalesces every watcher notification triggered inside fn into a
// single run per watcher, fired when fn returns (spec §5).
func (c *Cache) Batch(fn func()) { c.store.Batch(fn) }

// Logger returns the logger the cache was constructed with.
func (c *Cache) Logger() *zap.Logger { return c.logger }

// planWithStrictConnections returns a Plan identical to plan except every
// connection selection (at any depth) is forced to page-mode resolution, so
// ReadQuery's DecisionStrict reads the exact concrete page instead of the
// canonical union (spec §4.5 "decisionMode: strict").
func planWithStrictConnections(plan *compiler.Plan) *compiler.Plan {
	return &compiler.Plan{
		Kind:         plan.Kind,
		RootTypename: plan.RootTypename,
		Root:         cloneSelectionsStrict(plan.Root),
	}
}

func cloneSelectionsStrict(sels map[string]*compiler.Selection) map[string]*compiler.Selection {
	if sels == nil {
		return nil
	}
	out := make(map[string]*compiler.Selection, len(sels))
	for k, sel := range sels {
		cp := *sel
		if cp.IsConnection {
			cp.ConnectionMode = compiler.ConnectionPage
		}
		cp.Selections = cloneSelectionsStrict(sel.Selections)
		out[k] = &cp
	}
	return out
}
