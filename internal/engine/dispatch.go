package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Apply validates and applies one operation from an external caller.
// Internal-only ops (restoreSheet, setCells) are rejected here; they are
// reachable only through undo replay.
func (wb *Workbook) Apply(op Op) error {
	if _, ok := op.(internalOnly); ok {
		return fmt.Errorf("%w: %s is not externally invocable", ErrUnknownOp, op.Name())
	}
	return wb.apply(op, false)
}

// applyInternal applies an op on behalf of undo replay. It bypasses the
// external vocabulary restriction and records no event, so replaying an
// inverse never grows the history it is rewinding.
func (wb *Workbook) applyInternal(op Op) error {
	return wb.apply(op, true)
}

func (wb *Workbook) apply(op Op, internal bool) error {
	switch v := op.(type) {
	case CreateSheetOp:
		if err := wb.createSheet(v.SheetName); err != nil {
			return err
		}
		if !internal {
			wb.appendEvent(v, DeleteSheetOp{SheetName: v.SheetName})
		}
		return nil

	case DeleteSheetOp:
		snapshot, err := wb.deleteSheet(v.SheetName)
		if err != nil {
			return err
		}
		if !internal {
			wb.appendEvent(v, RestoreSheetOp{Sheet: snapshot})
		}
		return nil

	case RestoreSheetOp:
		return wb.restoreSheet(v.Sheet)

	case SetValuesOp:
		sheet, before, err := wb.prepare(v.Range)
		if err != nil {
			return err
		}
		for r := v.Range.R1; r <= v.Range.R2; r++ {
			for c := v.Range.C1; c <= v.Range.C2; c++ {
				cell := sheet.CellAt(r, c)
				cell.Value = gridValue(v.Values, r-v.Range.R1, c-v.Range.C1)
				cell.Formula = ""
				if v.Provenance != nil {
					cell.Provenance = cloneProvenance(v.Provenance)
				}
			}
		}
		if !internal {
			wb.appendEvent(v, SetCellsOp{Range: v.Range, Cells: before})
		}
		return nil

	case SetFormulasOp:
		sheet, before, err := wb.prepare(v.Range)
		if err != nil {
			return err
		}
		for r := v.Range.R1; r <= v.Range.R2; r++ {
			for c := v.Range.C1; c <= v.Range.C2; c++ {
				cell := sheet.CellAt(r, c)
				f := formulaValue(v.Formulas, r-v.Range.R1, c-v.Range.C1)
				if f == nil {
					cell.Formula = ""
				} else {
					cell.Formula = *f
				}
				cell.Value = nil // stale until the next recompute
			}
		}
		if !internal {
			wb.appendEvent(v, SetCellsOp{Range: v.Range, Cells: before})
		}
		return nil

	case FormatRangeOp:
		sheet, before, err := wb.prepare(v.Range)
		if err != nil {
			return err
		}
		format := ""
		if v.Format != nil {
			format = *v.Format
		}
		for r := v.Range.R1; r <= v.Range.R2; r++ {
			for c := v.Range.C1; c <= v.Range.C2; c++ {
				sheet.CellAt(r, c).Format = format
			}
		}
		if !internal {
			wb.appendEvent(v, SetCellsOp{Range: v.Range, Cells: before})
		}
		return nil

	case LinkProvenanceOp:
		sheet, before, err := wb.prepare(v.Range)
		if err != nil {
			return err
		}
		for r := v.Range.R1; r <= v.Range.R2; r++ {
			for c := v.Range.C1; c <= v.Range.C2; c++ {
				cell := sheet.CellAt(r, c)
				cell.Provenance = append(cell.Provenance, cloneProvenance(v.Provenance)...)
			}
		}
		if !internal {
			wb.appendEvent(v, SetCellsOp{Range: v.Range, Cells: before})
		}
		return nil

	case SetCellsOp:
		sheet, _, err := wb.prepare(v.Range)
		if err != nil {
			return err
		}
		for r := v.Range.R1; r <= v.Range.R2; r++ {
			for c := v.Range.C1; c <= v.Range.C2; c++ {
				row := r - v.Range.R1
				col := c - v.Range.C1
				if row < len(v.Cells) && col < len(v.Cells[row]) {
					*sheet.CellAt(r, c) = v.Cells[row][col].Clone()
				} else {
					*sheet.CellAt(r, c) = Cell{}
				}
			}
		}
		return nil

	case NoopOp:
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}

// prepare grows the sheet to cover the range and captures the pre-image
// of the affected rectangle. Growth happens first so the snapshot covers
// the full rectangle with default cells where the grid was short.
func (wb *Workbook) prepare(rng RangeRef) (*Sheet, [][]Cell, error) {
	sheet, err := wb.Sheet(rng.Sheet)
	if err != nil {
		return nil, nil, err
	}
	sheet.EnsureSize(rng.R2+1, rng.C2+1)
	before := make([][]Cell, 0, rng.R2-rng.R1+1)
	for r := rng.R1; r <= rng.R2; r++ {
		row := make([]Cell, 0, rng.C2-rng.C1+1)
		for c := rng.C1; c <= rng.C2; c++ {
			row = append(row, sheet.CellAt(r, c).Clone())
		}
		before = append(before, row)
	}
	return sheet, before, nil
}

func (wb *Workbook) appendEvent(forward, inverse Op) {
	wb.Events = append(wb.Events, Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Op:        forward,
		Inverse:   inverse,
		Summary:   forward.summary(),
	})
}

func gridValue(values [][]any, row, col int) any {
	if row < len(values) && col < len(values[row]) {
		return values[row][col]
	}
	return nil
}

func formulaValue(formulas [][]*string, row, col int) *string {
	if row < len(formulas) && col < len(formulas[row]) {
		return formulas[row][col]
	}
	return nil
}

func cloneProvenance(in []Provenance) []Provenance {
	if in == nil {
		return nil
	}
	out := make([]Provenance, len(in))
	for i, p := range in {
		cp := make(Provenance, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// PlanStep is one serialized step of an untrusted operation plan.
type PlanStep struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// StepResult reports the outcome of one plan step.
type StepResult struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ApplyPlan runs an ordered sequence of dispatch calls. Plans are not
// atomic: the first structural failure stops processing, is recorded on
// its step, and everything already applied stays applied.
func (wb *Workbook) ApplyPlan(steps []PlanStep) []StepResult {
	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		res := StepResult{Index: i, Op: step.Op}
		op, err := DecodeOp(step.Op, step.Args)
		if err == nil {
			err = wb.Apply(op)
		}
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			break
		}
		res.Applied = true
		res.Summary = op.summary()
		results = append(results, res)
	}
	return results
}
