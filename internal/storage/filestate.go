package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FileStateStore persists pair states as one JSON document per pair under a
// data directory. It is the fallback when no database is configured and is
// good enough for a single scanner on one machine. A corrupt or unreadable
// state file is treated as a fresh pair rather than a fatal error.
type FileStateStore struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileStateStore constructs a file-backed state store rooted at dir.
func NewFileStateStore(dir string, logger zerolog.Logger) *FileStateStore {
	return &FileStateStore{
		dir:    dir,
		logger: logger.With().Str("component", "file_state").Logger(),
	}
}

type fileState struct {
	Pair         string     `json:"pair"`
	CurrentState string     `json:"current_state"`
	PreviousZ    *string    `json:"previous_zscore,omitempty"`
	LastTs       *time.Time `json:"last_ts,omitempty"`
	EntryZ       *string    `json:"entry_zscore,omitempty"`
	EntryTs      *time.Time `json:"entry_timestamp,omitempty"`
	EntryBeta    *string    `json:"entry_beta,omitempty"`
	LegYNotional string     `json:"leg_y_notional"`
	LegXNotional string     `json:"leg_x_notional"`
	YQty         string     `json:"y_qty"`
	XQty         string     `json:"x_qty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (f *FileStateStore) path(pair string) string {
	safe := strings.NewReplacer("/", "-", ":", "-", " ", "_").Replace(pair)
	return filepath.Join(f.dir, fmt.Sprintf("state_%s.json", safe))
}

// UpsertPairState writes the state file atomically via a temp file rename.
func (f *FileStateStore) UpsertPairState(ctx context.Context, state PairState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc := fileState{
		Pair:         state.Pair,
		CurrentState: state.Position,
		PreviousZ:    decimalPtrJSON(state.PrevZ),
		LastTs:       state.LastTs,
		EntryZ:       decimalPtrJSON(state.EntryZ),
		EntryTs:      state.EntryTs,
		EntryBeta:    decimalPtrJSON(state.EntryBeta),
		LegYNotional: state.LegYNotional.String(),
		LegXNotional: state.LegXNotional.String(),
		YQty:         state.YQty.String(),
		XQty:         state.XQty.String(),
		UpdatedAt:    time.Now().UTC(),
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pair state: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}

	path := f.path(state.Pair)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// GetPairState loads the state file for a pair. Missing and corrupt files
// both report the pair as never scanned.
func (f *FileStateStore) GetPairState(ctx context.Context, pair string) (PairState, bool, error) {
	if err := ctx.Err(); err != nil {
		return PairState{}, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readState(f.path(pair))
}

// ListPairStates loads every state file under the data directory.
func (f *FileStateStore) ListPairStates(ctx context.Context) ([]PairState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(f.dir, "state_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	states := make([]PairState, 0, len(matches))
	for _, path := range matches {
		state, ok, readErr := f.readState(path)
		if readErr != nil {
			return nil, readErr
		}
		if ok {
			states = append(states, state)
		}
	}
	return states, nil
}

func (f *FileStateStore) readState(path string) (PairState, bool, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PairState{}, false, nil
		}
		return PairState{}, false, err
	}

	var doc fileState
	if err := json.Unmarshal(payload, &doc); err != nil {
		f.logger.Warn().Str("file", path).Err(err).Msg("state file unreadable, treating pair as fresh")
		return PairState{}, false, nil
	}

	state := PairState{
		Pair:      doc.Pair,
		Position:  doc.CurrentState,
		LastTs:    doc.LastTs,
		EntryTs:   doc.EntryTs,
		UpdatedAt: doc.UpdatedAt,
	}

	var convErr error
	if state.PrevZ, convErr = jsonDecimal(doc.PreviousZ); convErr != nil {
		f.logger.Warn().Str("file", path).Err(convErr).Msg("state file unreadable, treating pair as fresh")
		return PairState{}, false, nil
	}
	if state.EntryZ, convErr = jsonDecimal(doc.EntryZ); convErr != nil {
		return PairState{}, false, nil
	}
	if state.EntryBeta, convErr = jsonDecimal(doc.EntryBeta); convErr != nil {
		return PairState{}, false, nil
	}
	if state.LegYNotional, convErr = decimalOrZero(doc.LegYNotional); convErr != nil {
		return PairState{}, false, nil
	}
	if state.LegXNotional, convErr = decimalOrZero(doc.LegXNotional); convErr != nil {
		return PairState{}, false, nil
	}
	if state.YQty, convErr = decimalOrZero(doc.YQty); convErr != nil {
		return PairState{}, false, nil
	}
	if state.XQty, convErr = decimalOrZero(doc.XQty); convErr != nil {
		return PairState{}, false, nil
	}

	return state, true, nil
}

func decimalPtrJSON(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func jsonDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

var _ PairStateStore = (*FileStateStore)(nil)
