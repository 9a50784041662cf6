package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

// Replica is a read-only copy of the primary.
type Replica struct {
	// ID names the replica in logs, metrics and results.
	ID types.ReplicaID

	// DB is the replica connection.
	DB DB
}

// node is a primary or replica connection with its cached applied sequence.
type node struct {
	id      types.ReplicaID
	db      DB
	applied atomic.Uint64
}

// Store is a replicated SQL store with one primary and any number of replicas.
//
// Every write runs on the primary in a transaction that also bumps the
// commit sequence recorded in the commit table. The resulting watermark is
// the new sequence, and the committed write is appended to the commit log
// for shipping. Replicas record the last sequence they applied in the same
// table, so each read reports the exact state the serving replica had.
//
// Writes are serialized so that commit sequence and log order agree.
type Store struct {
	primary  *node
	replicas []*node
	byID     map[types.ReplicaID]*node
	config   *Config

	writeMu sync.Mutex
	seq     uint64

	drainMu  sync.RWMutex
	draining map[types.ReplicaID]bool

	cancelWatch context.CancelFunc
	wg          sync.WaitGroup
	closed      atomic.Bool
}

// Compile-time assertion that Store implements causeway.Store.
var _ causeway.Store = (*Store)(nil)

// New creates a new Store.
//
// The commit table is created on the primary and on every replica if it
// does not exist, and the current sequence of each node is loaded.
//
// Parameters:
//   - ctx: Context for the schema setup
//   - primary: The primary connection (required)
//   - replicas: Replica connections; ids must be unique and not types.PrimaryID
//   - opts: Optional configuration options
//
// Returns:
//   - *Store: A new store
//   - error: ErrNoPrimary if primary is nil, or a setup error
func New(ctx context.Context, primary DB, replicas []Replica, opts ...Option) (*Store, error) {
	if primary == nil {
		return nil, types.ErrNoPrimary
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.normalize()

	s := &Store{
		primary:  &node{id: types.PrimaryID, db: primary},
		byID:     make(map[types.ReplicaID]*node, len(replicas)+1),
		config:   config,
		draining: make(map[types.ReplicaID]bool),
	}
	s.byID[types.PrimaryID] = s.primary

	for _, r := range replicas {
		if r.DB == nil {
			return nil, fmt.Errorf("causeway: replica %q has a nil connection", r.ID)
		}
		if r.ID == "" || r.ID == types.PrimaryID {
			return nil, fmt.Errorf("causeway: invalid replica id %q", r.ID)
		}
		if _, dup := s.byID[r.ID]; dup {
			return nil, fmt.Errorf("causeway: duplicate replica id %q", r.ID)
		}
		n := &node{id: r.ID, db: r.DB}
		s.replicas = append(s.replicas, n)
		s.byID[r.ID] = n
	}

	for _, n := range s.nodes() {
		seq, err := s.ensureCommitTable(ctx, n.db)
		if err != nil {
			return nil, &types.ReplicaError{Replica: n.id, Operation: "setup", Cause: err}
		}
		n.applied.Store(seq)
	}
	s.seq = s.primary.applied.Load()

	if config.Topology != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.cancelWatch = cancel
		updates := config.Topology.Watch(watchCtx)
		s.wg.Go(func() {
			s.watchTopology(watchCtx, updates)
		})
	}

	return s, nil
}

// OpenSession returns a handle whose reads are bounded by watermark.
//
// Parameters:
//   - ctx: Context for cancellation
//   - watermark: The session's current watermark
//
// Returns:
//   - causeway.StoreHandle: A handle bound to watermark
//   - error: ErrStoreClosed if the store is closed
func (s *Store) OpenSession(ctx context.Context, watermark types.Watermark) (causeway.StoreHandle, error) {
	if s.closed.Load() {
		return nil, types.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &handle{store: s, watermark: watermark}, nil
}

// Migrate runs schema statements directly on the primary and every replica.
//
// Migrations do not advance the commit sequence and are not shipped.
//
// Parameters:
//   - ctx: Context for cancellation
//   - statements: DDL statements, executed in order on each node
//
// Returns:
//   - error: The first failure, wrapped in a ReplicaError
func (s *Store) Migrate(ctx context.Context, statements ...string) error {
	for _, n := range s.nodes() {
		for _, stmt := range statements {
			if _, err := n.db.ExecContext(ctx, stmt); err != nil {
				return &types.ReplicaError{Replica: n.id, Operation: "migrate", Cause: err}
			}
		}
	}

	return nil
}

// Apply applies a committed write to a replica.
//
// Entries at or below the replica's applied sequence are skipped, so
// redelivery is harmless. An entry that skips a sequence number fails with
// ErrCommitGap.
//
// Parameters:
//   - ctx: Context for cancellation
//   - replica: The replica to apply to
//   - entry: The committed write
//
// Returns:
//   - error: nil on success or duplicate, otherwise a ReplicaError
func (s *Store) Apply(ctx context.Context, replica types.ReplicaID, entry types.CommitEntry) error {
	n, ok := s.byID[replica]
	if !ok || n == s.primary {
		return fmt.Errorf("causeway: unknown replica %q", replica)
	}

	err := s.applyOn(ctx, n, entry)
	if err != nil {
		return &types.ReplicaError{Replica: replica, Operation: "apply", Cause: err}
	}

	return nil
}

// Applied returns the last sequence a replica applied, or the primary's
// current sequence for types.PrimaryID.
//
// Parameters:
//   - replica: The replica to check
//
// Returns:
//   - uint64: The applied sequence
//   - bool: false if the replica is unknown
func (s *Store) Applied(replica types.ReplicaID) (uint64, bool) {
	n, ok := s.byID[replica]
	if !ok {
		return 0, false
	}

	return n.applied.Load(), true
}

// Replicas returns the replica ids in configuration order.
func (s *Store) Replicas() []types.ReplicaID {
	ids := make([]types.ReplicaID, len(s.replicas))
	for i, n := range s.replicas {
		ids[i] = n.id
	}

	return ids
}

// IsDraining reports whether a replica is currently in drain mode.
func (s *Store) IsDraining(replica types.ReplicaID) bool {
	s.drainMu.RLock()
	defer s.drainMu.RUnlock()

	return s.draining[replica]
}

// Close stops the topology watcher and marks the store closed.
//
// The connections are owned by the caller and are not closed.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
	s.wg.Wait()
}

// handle is a store session bound to one watermark.
type handle struct {
	store     *Store
	watermark types.Watermark
}

// Execute runs op on the requested tier.
func (h *handle) Execute(ctx context.Context, tier types.Tier, op types.Operation) (types.Result, error) {
	if h.store.closed.Load() {
		return types.Result{}, types.ErrStoreClosed
	}

	if op.Kind != types.KindRead {
		return h.store.write(ctx, op)
	}
	if tier == types.TierPrimary {
		return h.store.readOn(ctx, h.store.primary, op, 0)
	}

	return h.store.readAny(ctx, h.watermark, op)
}

// write executes op on the primary and ships the commit.
func (s *Store) write(ctx context.Context, op types.Operation) (types.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.seq + 1

	tx, err := s.primary.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: types.PrimaryID, Operation: "write", Cause: err}
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, op.Statement, op.Args...)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: types.PrimaryID, Operation: "write", Cause: err}
	}
	if err := s.setSequence(ctx, tx, next); err != nil {
		return types.Result{}, &types.ReplicaError{Replica: types.PrimaryID, Operation: "write", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return types.Result{}, &types.ReplicaError{Replica: types.PrimaryID, Operation: "write", Cause: err}
	}

	s.seq = next
	s.primary.applied.Store(next)

	result := types.Result{
		Watermark: types.SequenceWatermark(next),
		ServedBy:  types.PrimaryID,
	}
	// Drivers that do not support these report an error; the write still succeeded.
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}

	s.ship(ctx, types.CommitEntry{
		Seq:         next,
		Statement:   op.Statement,
		Args:        op.Args,
		CommittedAt: time.Now().UnixMicro(),
	})

	return result, nil
}

// ship appends a committed write to the commit log.
//
// The write is already durable on the primary, so a failure is logged and
// counted but not returned; the affected replicas stop at the gap.
func (s *Store) ship(ctx context.Context, entry types.CommitEntry) {
	if s.config.CommitLog == nil {
		return
	}

	// The commit happened; shipping it must not be cut short by the caller.
	shipCtx := context.WithoutCancel(ctx)
	if err := s.config.CommitLog.Append(shipCtx, entry); err != nil {
		cerr := &types.CommitError{Watermark: entry.Watermark(), Cause: err}
		s.config.Metrics.IncCommitShipFailed()
		s.config.Logger.Error("failed to ship commit",
			"seq", entry.Seq,
			"error", cerr.Error(),
		)
	}
}

// readAny serves a read from any replica at or past the watermark,
// applying the lag policy when none qualifies.
func (s *Store) readAny(ctx context.Context, watermark types.Watermark, op types.Operation) (types.Result, error) {
	minSeq, ok := boundOf(watermark)
	if !ok {
		// An unknown token cannot be proven satisfied by any replica.
		s.config.Metrics.IncLagFallback()
		return s.readOn(ctx, s.primary, op, 0)
	}

	var (
		start  = time.Now()
		waited bool
	)

	for {
		if eligible := s.eligible(minSeq); len(eligible) > 0 {
			if waited {
				s.config.Metrics.ObserveLagWait(time.Since(start).Seconds())
			}

			replica := s.config.Selector.Select(ctx, eligible)
			n, ok := s.byID[replica]
			if !ok || n == s.primary {
				// Selector returned something outside the eligible set.
				n = s.byID[eligible[0]]
			}

			return s.readReplica(ctx, n, op, minSeq)
		}

		if s.config.LagPolicy != LagPolicyWait || time.Since(start) >= s.config.MaxWait {
			break
		}

		waited = true
		timer := time.NewTimer(s.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	if waited {
		s.config.Metrics.ObserveLagWait(time.Since(start).Seconds())
	}
	s.config.Metrics.IncLagFallback()
	s.config.Logger.Debug("no replica at watermark, reading from primary",
		"watermark", watermark.String(),
		"lagPolicy", s.config.LagPolicy.String(),
	)

	return s.readOn(ctx, s.primary, op, 0)
}

// readReplica reads from a replica and records its health.
func (s *Store) readReplica(ctx context.Context, n *node, op types.Operation, minSeq uint64) (types.Result, error) {
	start := time.Now()
	result, err := s.readOn(ctx, n, op, minSeq)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, errBehind) {
			// The cached sequence was ahead of the replica's snapshot.
			s.config.Metrics.IncLagFallback()
			return s.readOn(ctx, s.primary, op, 0)
		}
		if ctx.Err() == nil {
			s.config.Selector.OnFailure(n.id, err)
			if s.config.Health != nil {
				s.config.Health.RecordFailure(n.id)
			}
		}

		return types.Result{}, err
	}

	s.config.Selector.OnSuccess(n.id)
	if s.config.Health != nil {
		s.config.Health.RecordLatency(n.id, elapsed)
	}

	return result, nil
}

// errBehind reports a replica whose snapshot predates the read's bound.
var errBehind = errors.New("causeway: replica behind watermark")

// readOn runs a read in a transaction on n and reports the sequence n had
// applied at that point.
func (s *Store) readOn(ctx context.Context, n *node, op types.Operation, minSeq uint64) (types.Result, error) {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: n.id, Operation: "read", Cause: err}
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := s.sequence(ctx, tx)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: n.id, Operation: "read", Cause: err}
	}
	if seq < minSeq {
		return types.Result{}, errBehind
	}

	rows, err := tx.QueryContext(ctx, op.Statement, op.Args...)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: n.id, Operation: "read", Cause: err}
	}
	collected, err := collectRows(rows)
	if err != nil {
		return types.Result{}, &types.ReplicaError{Replica: n.id, Operation: "read", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return types.Result{}, &types.ReplicaError{Replica: n.id, Operation: "read", Cause: err}
	}

	s.config.Metrics.IncReplicaRead(n.id)

	return types.Result{
		Rows:      collected,
		Watermark: types.SequenceWatermark(seq),
		ServedBy:  n.id,
	}, nil
}

// applyOn applies entry to n in one transaction.
func (s *Store) applyOn(ctx context.Context, n *node, entry types.CommitEntry) error {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := s.sequence(ctx, tx)
	if err != nil {
		return err
	}
	if entry.Seq <= seq {
		return nil
	}
	if entry.Seq != seq+1 {
		return fmt.Errorf("%w: replica at %d, entry %d", types.ErrCommitGap, seq, entry.Seq)
	}

	if _, err := tx.ExecContext(ctx, entry.Statement, entry.Args...); err != nil {
		return err
	}
	if err := s.setSequence(ctx, tx, entry.Seq); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	n.applied.Store(entry.Seq)

	return nil
}

// eligible returns the replicas at or past minSeq that are not draining
// and are allowed by the health tracker.
func (s *Store) eligible(minSeq uint64) []types.ReplicaID {
	s.drainMu.RLock()
	defer s.drainMu.RUnlock()

	out := make([]types.ReplicaID, 0, len(s.replicas))
	for _, n := range s.replicas {
		if s.draining[n.id] {
			continue
		}
		if n.applied.Load() < minSeq {
			continue
		}
		if s.config.Health != nil && !s.config.Health.Allow(n.id) {
			continue
		}
		out = append(out, n.id)
	}

	return out
}

// watchTopology applies drain updates until ctx is cancelled.
func (s *Store) watchTopology(ctx context.Context, updates <-chan causeway.TopologyUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.setDraining(update.Replica, update.DrainMode)
		}
	}
}

func (s *Store) setDraining(replica types.ReplicaID, draining bool) {
	s.drainMu.Lock()
	was := s.draining[replica]
	if draining {
		s.draining[replica] = true
	} else {
		delete(s.draining, replica)
	}
	s.drainMu.Unlock()

	if was == draining {
		return
	}

	s.config.Metrics.SetReplicaDraining(replica, draining)
	if draining {
		s.config.Metrics.IncDrainModeEntered(replica)
		s.config.Logger.Warn("replica entered drain mode", "replica", replica.String())
	} else {
		s.config.Metrics.IncDrainModeExited(replica)
		s.config.Logger.Info("replica exited drain mode", "replica", replica.String())
	}
}

// nodes returns the primary followed by the replicas.
func (s *Store) nodes() []*node {
	return append([]*node{s.primary}, s.replicas...)
}

// ensureCommitTable creates the commit table if needed and returns the
// recorded sequence.
func (s *Store) ensureCommitTable(ctx context.Context, db DB) (uint64, error) {
	table := s.config.CommitTable

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + table + " (id INTEGER PRIMARY KEY, seq BIGINT NOT NULL)",
		"INSERT INTO " + table + " (id, seq) SELECT 1, 0 WHERE NOT EXISTS (SELECT 1 FROM " + table + " WHERE id = 1)",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, err
		}
	}

	var seq int64
	if err := db.QueryRowContext(ctx, "SELECT seq FROM "+table+" WHERE id = 1").Scan(&seq); err != nil {
		return 0, err
	}
	if seq < 0 {
		return 0, fmt.Errorf("causeway: negative commit sequence %d", seq)
	}

	return uint64(seq), nil
}

// sequence reads the applied sequence inside tx.
func (s *Store) sequence(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT seq FROM "+s.config.CommitTable+" WHERE id = 1").Scan(&seq); err != nil {
		return 0, err
	}
	if seq < 0 {
		return 0, fmt.Errorf("causeway: negative commit sequence %d", seq)
	}

	return uint64(seq), nil
}

// setSequence records seq inside tx. The value is formatted into the
// statement so the query does not depend on the driver's placeholder style.
func (s *Store) setSequence(ctx context.Context, tx *sql.Tx, seq uint64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET seq = %d WHERE id = 1", s.config.CommitTable, seq))

	return err
}

// boundOf returns the minimum applied sequence a watermark requires.
func boundOf(w types.Watermark) (uint64, bool) {
	if w.IsSentinel() {
		return 0, true
	}
	seq, err := types.ParseSequence(w)
	if err != nil {
		return 0, false
	}

	return seq, true
}
