package storage

// Schema holds the DDL for all scanner tables. EnsureSchema applies it on
// startup so a fresh database needs no manual migration step.
const Schema = `
CREATE TABLE IF NOT EXISTS pair_states (
    pair            TEXT PRIMARY KEY,
    position        TEXT NOT NULL,
    prev_z          NUMERIC,
    last_ts         TIMESTAMPTZ,
    entry_z         NUMERIC,
    entry_ts        TIMESTAMPTZ,
    entry_beta      NUMERIC,
    leg_y_notional  NUMERIC NOT NULL DEFAULT 0,
    leg_x_notional  NUMERIC NOT NULL DEFAULT 0,
    y_qty           NUMERIC NOT NULL DEFAULT 0,
    x_qty           NUMERIC NOT NULL DEFAULT 0,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signal_events (
    id              TEXT PRIMARY KEY,
    ts              TIMESTAMPTZ NOT NULL,
    pair            TEXT NOT NULL,
    action          TEXT NOT NULL,
    from_position   TEXT NOT NULL,
    to_position     TEXT NOT NULL,
    z               NUMERIC NOT NULL,
    beta            NUMERIC NOT NULL,
    spread          NUMERIC NOT NULL,
    reason          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (pair, ts, action)
);

CREATE INDEX IF NOT EXISTS idx_signal_events_pair_ts ON signal_events (pair, ts DESC);

CREATE TABLE IF NOT EXISTS sized_orders (
    id              TEXT PRIMARY KEY,
    event_id        TEXT NOT NULL REFERENCES signal_events(id),
    ts              TIMESTAMPTZ NOT NULL,
    pair            TEXT NOT NULL,
    action          TEXT NOT NULL,
    leg_y_notional  NUMERIC NOT NULL,
    leg_x_notional  NUMERIC NOT NULL,
    y_qty           NUMERIC NOT NULL,
    x_qty           NUMERIC NOT NULL,
    target_risk_usd NUMERIC NOT NULL,
    risk_per_z_usd  NUMERIC NOT NULL,
    scale           NUMERIC NOT NULL,
    est_cost_usd    NUMERIC NOT NULL,
    skipped         BOOLEAN NOT NULL DEFAULT FALSE,
    skip_reason     TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sized_orders_pair_ts ON sized_orders (pair, ts DESC);

CREATE TABLE IF NOT EXISTS scan_runs (
    id              BIGSERIAL PRIMARY KEY,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL,
    pairs_total     INTEGER NOT NULL,
    pairs_ok        INTEGER NOT NULL,
    signals         INTEGER NOT NULL,
    errors          INTEGER NOT NULL,
    notes           TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
