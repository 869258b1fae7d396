package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite journals paper positions in a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// OpenPosition records a fresh position with status OPEN.
func (j *SQLite) OpenPosition(p PaperPosition) error {
	_, err := j.db.Exec(`
		INSERT INTO paper_trades
		(id, pair, side, entry_time, entry_z, entry_beta, entry_y_price, entry_x_price, y_qty, x_qty, notional_usd, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'OPEN')`,
		p.ID, p.Pair, p.Side, p.EntryTime, p.EntryZ, p.EntryBeta,
		p.EntryYPrice, p.EntryXPrice, p.YQty, p.XQty, p.NotionalUSD,
	)
	return err
}

// ClosePosition marks the position closed at the given prices and settles
// its P&L leg by leg.
func (j *SQLite) ClosePosition(id string, exitTime time.Time, exitZ, yPrice, xPrice float64, reason string) (PaperPosition, error) {
	pos, err := j.getPosition(id)
	if err != nil {
		return PaperPosition{}, err
	}
	if pos.Status != "OPEN" {
		return PaperPosition{}, fmt.Errorf("position %s already %s", id, pos.Status)
	}

	yPnL := pos.YQty * (yPrice - pos.EntryYPrice)
	xPnL := pos.XQty * (xPrice - pos.EntryXPrice)
	pnl := yPnL + xPnL

	returnPct := 0.0
	if pos.NotionalUSD > 0 {
		returnPct = pnl / pos.NotionalUSD * 100
	}

	_, err = j.db.Exec(`
		UPDATE paper_trades
		SET status = 'CLOSED', exit_time = ?, exit_z = ?, exit_y_price = ?, exit_x_price = ?, exit_reason = ?, pnl_usd = ?, return_pct = ?
		WHERE id = ?`,
		exitTime, exitZ, yPrice, xPrice, reason, pnl, returnPct, id,
	)
	if err != nil {
		return PaperPosition{}, err
	}

	return j.getPosition(id)
}

// OpenPositions lists positions not yet closed, oldest entry first.
func (j *SQLite) OpenPositions() ([]PaperPosition, error) {
	rows, err := j.db.Query(selectColumns + ` WHERE status = 'OPEN' ORDER BY entry_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

// History lists closed positions, most recently closed first.
func (j *SQLite) History(limit int) ([]PaperPosition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(selectColumns+` WHERE status = 'CLOSED' ORDER BY exit_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

// Summarize aggregates wins, losses, and total P&L over all closed trades.
func (j *SQLite) Summarize() (Summary, error) {
	var s Summary
	var total sql.NullFloat64
	err := j.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl_usd), 0)
		FROM paper_trades WHERE status = 'CLOSED'`).Scan(&s.Trades, &s.Wins, &total)
	if err != nil {
		return Summary{}, err
	}

	s.Losses = s.Trades - s.Wins
	s.TotalPnLUSD = total.Float64
	if s.Trades > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.Trades) * 100
	}
	return s, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

const selectColumns = `
	SELECT id, pair, side, entry_time, entry_z, entry_beta, entry_y_price, entry_x_price,
	       y_qty, x_qty, notional_usd, status,
	       exit_time, exit_z, exit_y_price, exit_x_price, exit_reason, pnl_usd, return_pct
	FROM paper_trades`

func (j *SQLite) getPosition(id string) (PaperPosition, error) {
	row := j.db.QueryRow(selectColumns+` WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return PaperPosition{}, fmt.Errorf("position %q not found", id)
		}
		return PaperPosition{}, err
	}
	return pos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (PaperPosition, error) {
	var (
		pos        PaperPosition
		exitTime   sql.NullTime
		exitZ      sql.NullFloat64
		exitYPrice sql.NullFloat64
		exitXPrice sql.NullFloat64
		exitReason sql.NullString
		pnl        sql.NullFloat64
		returnPct  sql.NullFloat64
	)

	if err := row.Scan(
		&pos.ID, &pos.Pair, &pos.Side, &pos.EntryTime, &pos.EntryZ, &pos.EntryBeta,
		&pos.EntryYPrice, &pos.EntryXPrice, &pos.YQty, &pos.XQty, &pos.NotionalUSD, &pos.Status,
		&exitTime, &exitZ, &exitYPrice, &exitXPrice, &exitReason, &pnl, &returnPct,
	); err != nil {
		return PaperPosition{}, err
	}

	if exitTime.Valid {
		ts := exitTime.Time
		pos.ExitTime = &ts
	}
	if exitZ.Valid {
		v := exitZ.Float64
		pos.ExitZ = &v
	}
	if exitYPrice.Valid {
		v := exitYPrice.Float64
		pos.ExitYPrice = &v
	}
	if exitXPrice.Valid {
		v := exitXPrice.Float64
		pos.ExitXPrice = &v
	}
	if exitReason.Valid {
		v := exitReason.String
		pos.ExitReason = &v
	}
	if pnl.Valid {
		v := pnl.Float64
		pos.PnLUSD = &v
	}
	if returnPct.Valid {
		v := returnPct.Float64
		pos.ReturnPct = &v
	}

	return pos, nil
}

func collectPositions(rows *sql.Rows) ([]PaperPosition, error) {
	var out []PaperPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Journal = (*SQLite)(nil)
