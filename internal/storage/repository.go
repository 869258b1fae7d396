package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPairStateSQL = `INSERT INTO pair_states (
        pair,
        position,
        prev_z,
        last_ts,
        entry_z,
        entry_ts,
        entry_beta,
        leg_y_notional,
        leg_x_notional,
        y_qty,
        x_qty,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now()
    )
    ON CONFLICT (pair) DO UPDATE
    SET
        position       = EXCLUDED.position,
        prev_z         = EXCLUDED.prev_z,
        last_ts        = EXCLUDED.last_ts,
        entry_z        = EXCLUDED.entry_z,
        entry_ts       = EXCLUDED.entry_ts,
        entry_beta     = EXCLUDED.entry_beta,
        leg_y_notional = EXCLUDED.leg_y_notional,
        leg_x_notional = EXCLUDED.leg_x_notional,
        y_qty          = EXCLUDED.y_qty,
        x_qty          = EXCLUDED.x_qty,
        updated_at     = now();`

	getPairStateSQL = `SELECT
        pair,
        position,
        prev_z,
        last_ts,
        entry_z,
        entry_ts,
        entry_beta,
        leg_y_notional,
        leg_x_notional,
        y_qty,
        x_qty,
        updated_at
    FROM pair_states
    WHERE pair = $1;`

	listPairStatesSQL = `SELECT
        pair,
        position,
        prev_z,
        last_ts,
        entry_z,
        entry_ts,
        entry_beta,
        leg_y_notional,
        leg_x_notional,
        y_qty,
        x_qty,
        updated_at
    FROM pair_states
    ORDER BY pair;`

	insertSignalSQL = `INSERT INTO signal_events (
        id,
        ts,
        pair,
        action,
        from_position,
        to_position,
        z,
        beta,
        spread,
        reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (pair, ts, action) DO NOTHING;`

	listSignalsBetweenSQL = `SELECT
        id, ts, pair, action, from_position, to_position, z, beta, spread, reason, created_at
    FROM signal_events
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	listRecentSignalsSQL = `SELECT
        id, ts, pair, action, from_position, to_position, z, beta, spread, reason, created_at
    FROM signal_events
    ORDER BY ts DESC
    LIMIT $1;`

	countSignalsSQL = `SELECT COUNT(*) FROM signal_events;`

	deleteSignalsBeforeSQL = `DELETE FROM signal_events WHERE created_at < $1;`

	insertOrderSQL = `INSERT INTO sized_orders (
        id,
        event_id,
        ts,
        pair,
        action,
        leg_y_notional,
        leg_x_notional,
        y_qty,
        x_qty,
        target_risk_usd,
        risk_per_z_usd,
        scale,
        est_cost_usd,
        skipped,
        skip_reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
    );`

	listRecentOrdersSQL = `SELECT
        id, event_id, ts, pair, action,
        leg_y_notional, leg_x_notional, y_qty, x_qty,
        target_risk_usd, risk_per_z_usd, scale, est_cost_usd,
        skipped, skip_reason, created_at
    FROM sized_orders
    ORDER BY ts DESC
    LIMIT $1;`

	insertScanRunSQL = `INSERT INTO scan_runs (
        started_at,
        finished_at,
        pairs_total,
        pairs_ok,
        signals,
        errors,
        notes
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, started_at, finished_at, pairs_total, pairs_ok, signals, errors, notes, created_at;`

	listRecentRunsSQL = `SELECT
        id, started_at, finished_at, pairs_total, pairs_ok, signals, errors, notes, created_at
    FROM scan_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PairStateStore defines operations for trading state persistence.
type PairStateStore interface {
	UpsertPairState(ctx context.Context, state PairState) error
	GetPairState(ctx context.Context, pair string) (PairState, bool, error)
	ListPairStates(ctx context.Context) ([]PairState, error)
}

// SignalStore defines operations for the signal ledger.
type SignalStore interface {
	InsertSignal(ctx context.Context, rec SignalRecord) error
	ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error)
	ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error)
	CountSignals(ctx context.Context) (int64, error)
	DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error
}

// OrderStore defines operations for sized order auditing.
type OrderStore interface {
	InsertOrder(ctx context.Context, rec OrderRecord) error
	ListRecentOrders(ctx context.Context, limit int) ([]OrderRecord, error)
}

// ScanRunStore defines operations for scan sweep auditing.
type ScanRunStore interface {
	InsertScanRun(ctx context.Context, run ScanRun) (ScanRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]ScanRun, error)
}

// AdvisoryLocker exposes pair-level advisory lock helpers.
type AdvisoryLocker interface {
	TryPairLock(ctx context.Context, pair string) (unlock func(), acquired bool, err error)
}

// Store aggregates access to pair states, signals, orders, and scan runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the scanner tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, Schema); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// PairLockKey hashes a pair name into an advisory lock key.
func PairLockKey(pair string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(pair))
	return int64(h.Sum64())
}

// TryPairLock attempts to acquire the pair's advisory lock and returns a
// release func. Two scanners sweeping the same pair serialise here.
func (s *Store) TryPairLock(ctx context.Context, pair string) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	key := PairLockKey(pair)
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPairState persists or updates the trading state for a pair.
func (s *Store) UpsertPairState(ctx context.Context, state PairState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPairStateSQL,
		state.Pair,
		state.Position,
		decimalPtrString(state.PrevZ),
		timePtr(state.LastTs),
		decimalPtrString(state.EntryZ),
		timePtr(state.EntryTs),
		decimalPtrString(state.EntryBeta),
		state.LegYNotional.String(),
		state.LegXNotional.String(),
		state.YQty.String(),
		state.XQty.String(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert pair state: %w", execErr)
	}
	return nil
}

// GetPairState loads the trading state for a pair. The second return is false
// when the pair has never been scanned.
func (s *Store) GetPairState(ctx context.Context, pair string) (PairState, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PairState{}, false, err
	}

	row := pool.QueryRow(ctx, getPairStateSQL, pair)
	state, scanErr := scanPairState(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return PairState{}, false, nil
		}
		return PairState{}, false, scanErr
	}
	return state, true, nil
}

// ListPairStates lists all persisted pair states ordered by name.
func (s *Store) ListPairStates(ctx context.Context) ([]PairState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPairStatesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list pair states: %w", queryErr)
	}
	defer rows.Close()

	states := make([]PairState, 0)
	for rows.Next() {
		state, scanErr := scanPairState(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		states = append(states, state)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

// InsertSignal persists a state transition. Replaying an already stored bar
// is a no-op thanks to the (pair, ts, action) uniqueness.
func (s *Store) InsertSignal(ctx context.Context, rec SignalRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSignalSQL,
		rec.ID,
		rec.Ts,
		rec.Pair,
		rec.Action,
		rec.FromPosition,
		rec.ToPosition,
		rec.Z.String(),
		rec.Beta.String(),
		rec.Spread.String(),
		rec.Reason,
	)
	if execErr != nil {
		return fmt.Errorf("insert signal: %w", execErr)
	}
	return nil
}

// ListSignalsBetween lists signals within a time window.
func (s *Store) ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSignalsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list signals between: %w", queryErr)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// ListRecentSignals lists the most recent signals ordered by descending bar time.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// CountSignals counts stored signals.
func (s *Store) CountSignals(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSignalsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count signals: %w", scanErr)
	}
	return count, nil
}

// DeleteSignalsBefore deletes historical signals.
func (s *Store) DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSignalsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete signals before: %w", execErr)
	}
	return nil
}

// InsertOrder persists a sized order.
func (s *Store) InsertOrder(ctx context.Context, rec OrderRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var skipReason interface{}
	if rec.SkipReason != nil {
		skipReason = *rec.SkipReason
	}

	_, execErr := pool.Exec(ctx, insertOrderSQL,
		rec.ID,
		rec.EventID,
		rec.Ts,
		rec.Pair,
		rec.Action,
		rec.LegYNotional.String(),
		rec.LegXNotional.String(),
		rec.YQty.String(),
		rec.XQty.String(),
		rec.TargetRiskUSD.String(),
		rec.RiskPerZUSD.String(),
		rec.Scale.String(),
		rec.EstCostUSD.String(),
		rec.Skipped,
		skipReason,
	)
	if execErr != nil {
		return fmt.Errorf("insert order: %w", execErr)
	}
	return nil
}

// ListRecentOrders lists the most recent sized orders.
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentOrdersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent orders: %w", queryErr)
	}
	defer rows.Close()

	orders := make([]OrderRecord, 0, limit)
	for rows.Next() {
		var (
			rec        OrderRecord
			legY, legX string
			yQty, xQty string
			target     string
			riskPerZ   string
			scale      string
			estCost    string
			skipReason sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Ts,
			&rec.Pair,
			&rec.Action,
			&legY,
			&legX,
			&yQty,
			&xQty,
			&target,
			&riskPerZ,
			&scale,
			&estCost,
			&rec.Skipped,
			&skipReason,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if rec.LegYNotional, convErr = decimal.NewFromString(legY); convErr != nil {
			return nil, fmt.Errorf("parse leg y notional: %w", convErr)
		}
		if rec.LegXNotional, convErr = decimal.NewFromString(legX); convErr != nil {
			return nil, fmt.Errorf("parse leg x notional: %w", convErr)
		}
		if rec.YQty, convErr = decimal.NewFromString(yQty); convErr != nil {
			return nil, fmt.Errorf("parse y qty: %w", convErr)
		}
		if rec.XQty, convErr = decimal.NewFromString(xQty); convErr != nil {
			return nil, fmt.Errorf("parse x qty: %w", convErr)
		}
		if rec.TargetRiskUSD, convErr = decimal.NewFromString(target); convErr != nil {
			return nil, fmt.Errorf("parse target risk: %w", convErr)
		}
		if rec.RiskPerZUSD, convErr = decimal.NewFromString(riskPerZ); convErr != nil {
			return nil, fmt.Errorf("parse risk per z: %w", convErr)
		}
		if rec.Scale, convErr = decimal.NewFromString(scale); convErr != nil {
			return nil, fmt.Errorf("parse scale: %w", convErr)
		}
		if rec.EstCostUSD, convErr = decimal.NewFromString(estCost); convErr != nil {
			return nil, fmt.Errorf("parse est cost: %w", convErr)
		}
		if skipReason.Valid {
			reason := skipReason.String
			rec.SkipReason = &reason
		}

		orders = append(orders, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

// InsertScanRun persists a completed sweep and returns the stored row.
func (s *Store) InsertScanRun(ctx context.Context, run ScanRun) (ScanRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return ScanRun{}, err
	}

	var notes interface{}
	if run.Notes != nil {
		notes = *run.Notes
	}

	row := pool.QueryRow(ctx, insertScanRunSQL,
		run.StartedAt,
		run.FinishedAt,
		run.PairsTotal,
		run.PairsOK,
		run.Signals,
		run.Errors,
		notes,
	)

	stored, scanErr := scanScanRun(row)
	if scanErr != nil {
		return ScanRun{}, fmt.Errorf("insert scan run: %w", scanErr)
	}
	return stored, nil
}

// ListRecentRuns lists the most recent sweeps.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]ScanRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanScanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPairState(row rowScanner) (PairState, error) {
	var (
		state      PairState
		prevZ      sql.NullString
		lastTs     sql.NullTime
		entryZ     sql.NullString
		entryTs    sql.NullTime
		entryBeta  sql.NullString
		legY, legX string
		yQty, xQty string
	)

	if err := row.Scan(
		&state.Pair,
		&state.Position,
		&prevZ,
		&lastTs,
		&entryZ,
		&entryTs,
		&entryBeta,
		&legY,
		&legX,
		&yQty,
		&xQty,
		&state.UpdatedAt,
	); err != nil {
		return PairState{}, err
	}

	var convErr error
	if state.PrevZ, convErr = nullDecimal(prevZ); convErr != nil {
		return PairState{}, fmt.Errorf("parse prev z: %w", convErr)
	}
	if state.EntryZ, convErr = nullDecimal(entryZ); convErr != nil {
		return PairState{}, fmt.Errorf("parse entry z: %w", convErr)
	}
	if state.EntryBeta, convErr = nullDecimal(entryBeta); convErr != nil {
		return PairState{}, fmt.Errorf("parse entry beta: %w", convErr)
	}
	if state.LegYNotional, convErr = decimal.NewFromString(legY); convErr != nil {
		return PairState{}, fmt.Errorf("parse leg y notional: %w", convErr)
	}
	if state.LegXNotional, convErr = decimal.NewFromString(legX); convErr != nil {
		return PairState{}, fmt.Errorf("parse leg x notional: %w", convErr)
	}
	if state.YQty, convErr = decimal.NewFromString(yQty); convErr != nil {
		return PairState{}, fmt.Errorf("parse y qty: %w", convErr)
	}
	if state.XQty, convErr = decimal.NewFromString(xQty); convErr != nil {
		return PairState{}, fmt.Errorf("parse x qty: %w", convErr)
	}

	if lastTs.Valid {
		ts := lastTs.Time
		state.LastTs = &ts
	}
	if entryTs.Valid {
		ts := entryTs.Time
		state.EntryTs = &ts
	}

	return state, nil
}

func collectSignals(rows pgx.Rows) ([]SignalRecord, error) {
	signals := make([]SignalRecord, 0)
	for rows.Next() {
		var (
			rec              SignalRecord
			z, beta, spreadS string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Ts,
			&rec.Pair,
			&rec.Action,
			&rec.FromPosition,
			&rec.ToPosition,
			&z,
			&beta,
			&spreadS,
			&rec.Reason,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if rec.Z, convErr = decimal.NewFromString(z); convErr != nil {
			return nil, fmt.Errorf("parse z: %w", convErr)
		}
		if rec.Beta, convErr = decimal.NewFromString(beta); convErr != nil {
			return nil, fmt.Errorf("parse beta: %w", convErr)
		}
		if rec.Spread, convErr = decimal.NewFromString(spreadS); convErr != nil {
			return nil, fmt.Errorf("parse spread: %w", convErr)
		}

		signals = append(signals, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return signals, nil
}

func scanScanRun(row rowScanner) (ScanRun, error) {
	var (
		run   ScanRun
		notes sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.PairsTotal,
		&run.PairsOK,
		&run.Signals,
		&run.Errors,
		&notes,
		&run.CreatedAt,
	); err != nil {
		return ScanRun{}, err
	}
	if notes.Valid {
		value := notes.String
		run.Notes = &value
	}
	return run, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalPtrString(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func timePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
