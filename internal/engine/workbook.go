package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultSheetName is the name of the sheet every new workbook starts with.
const DefaultSheetName = "Sheet1"

// Provenance is a free-form attribution record attached to a cell.
type Provenance map[string]any

// Cell is one grid position. Value holds a string, a float64 or nil.
// A non-empty Formula starting with "=" is live; the cached Value is
// only meaningful after the evaluator has run.
type Cell struct {
	Value      any          `json:"value"`
	Formula    string       `json:"formula,omitempty"`
	Format     string       `json:"format,omitempty"`
	Provenance []Provenance `json:"provenance,omitempty"`
}

// Clone returns a deep copy of the cell.
func (c Cell) Clone() Cell {
	out := c
	if c.Provenance != nil {
		out.Provenance = make([]Provenance, len(c.Provenance))
		for i, p := range c.Provenance {
			cp := make(Provenance, len(p))
			for k, v := range p {
				cp[k] = v
			}
			out.Provenance[i] = cp
		}
	}
	return out
}

// Sheet is a named rectangular grid of cells. Rows stays rectangular:
// every row has the same length after EnsureSize.
type Sheet struct {
	Name string   `json:"name"`
	Rows [][]Cell `json:"rows"`
}

// EnsureSize grows the grid so it covers at least rows x cols, padding
// with default cells. It never truncates and is idempotent.
func (s *Sheet) EnsureSize(rows, cols int) {
	if cols > 0 {
		for i := range s.Rows {
			for len(s.Rows[i]) < cols {
				s.Rows[i] = append(s.Rows[i], Cell{})
			}
		}
	}
	width := cols
	if len(s.Rows) > 0 && len(s.Rows[0]) > width {
		width = len(s.Rows[0])
	}
	for len(s.Rows) < rows {
		s.Rows = append(s.Rows, make([]Cell, width))
	}
}

// CellAt returns a pointer into the grid, or nil when the coordinate is
// outside the current bounds. Writers must call EnsureSize first.
func (s *Sheet) CellAt(row, col int) *Cell {
	if row < 0 || col < 0 || row >= len(s.Rows) || col >= len(s.Rows[row]) {
		return nil
	}
	return &s.Rows[row][col]
}

// Clone returns a deep copy of the sheet, used for delete snapshots.
func (s *Sheet) Clone() *Sheet {
	out := &Sheet{Name: s.Name, Rows: make([][]Cell, len(s.Rows))}
	for i, row := range s.Rows {
		out.Rows[i] = make([]Cell, len(row))
		for j, cell := range row {
			out.Rows[i][j] = cell.Clone()
		}
	}
	return out
}

// Workbook is the mutable aggregate: a set of named sheets plus the
// event log and checkpoint markers. It performs no locking; exactly one
// logical caller may mutate a workbook at a time and callers needing
// concurrent access must serialize externally.
type Workbook struct {
	ID          string
	Sheets      map[string]*Sheet
	Events      []Event
	Checkpoints []Checkpoint
}

// New creates a workbook with one default sheet and an initial checkpoint.
func New(id string) *Workbook {
	if id == "" {
		id = uuid.NewString()
	}
	wb := &Workbook{
		ID:     id,
		Sheets: map[string]*Sheet{DefaultSheetName: {Name: DefaultSheetName}},
	}
	wb.Checkpoints = append(wb.Checkpoints, Checkpoint{
		ID:         "init",
		EventCount: 0,
		Timestamp:  time.Now(),
	})
	return wb
}

// Sheet returns the named sheet or ErrSheetNotFound.
func (wb *Workbook) Sheet(name string) (*Sheet, error) {
	s, ok := wb.Sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return s, nil
}

// SheetNames returns the sheet names sorted for deterministic iteration.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, 0, len(wb.Sheets))
	for name := range wb.Sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (wb *Workbook) createSheet(name string) error {
	if _, exists := wb.Sheets[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSheet, name)
	}
	wb.Sheets[name] = &Sheet{Name: name}
	return nil
}

// deleteSheet removes a sheet and returns its snapshot so the inverse
// restore operation owns an exact copy.
func (wb *Workbook) deleteSheet(name string) (*Sheet, error) {
	s, ok := wb.Sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	snapshot := s.Clone()
	delete(wb.Sheets, name)
	return snapshot, nil
}

func (wb *Workbook) restoreSheet(s *Sheet) error {
	if s == nil {
		return fmt.Errorf("%w: restoreSheet requires a sheet", ErrSheetNotFound)
	}
	if _, exists := wb.Sheets[s.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSheet, s.Name)
	}
	wb.Sheets[s.Name] = s
	return nil
}

// ProvenanceAt returns the provenance list for the cell at an A1-style
// address, empty when the cell has none or lies outside the grid.
func (wb *Workbook) ProvenanceAt(sheetName, addr string) ([]Provenance, error) {
	s, err := wb.Sheet(sheetName)
	if err != nil {
		return nil, err
	}
	row, col, err := ParseCellName(addr)
	if err != nil {
		return nil, err
	}
	cell := s.CellAt(row, col)
	if cell == nil || cell.Provenance == nil {
		return []Provenance{}, nil
	}
	return cell.Provenance, nil
}
