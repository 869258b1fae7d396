package journal

const Schema = `
CREATE TABLE IF NOT EXISTS paper_trades (
	id            TEXT PRIMARY KEY,
	pair          TEXT NOT NULL,
	side          TEXT NOT NULL,
	entry_time    DATETIME NOT NULL,
	entry_z       REAL NOT NULL,
	entry_beta    REAL NOT NULL,
	entry_y_price REAL NOT NULL,
	entry_x_price REAL NOT NULL,
	y_qty         REAL NOT NULL,
	x_qty         REAL NOT NULL,
	notional_usd  REAL NOT NULL,
	status        TEXT NOT NULL DEFAULT 'OPEN',
	exit_time     DATETIME,
	exit_z        REAL,
	exit_y_price  REAL,
	exit_x_price  REAL,
	exit_reason   TEXT,
	pnl_usd       REAL,
	return_pct    REAL
);

CREATE INDEX IF NOT EXISTS idx_paper_trades_status ON paper_trades(status);
CREATE INDEX IF NOT EXISTS idx_paper_trades_exit_time ON paper_trades(exit_time);
`
