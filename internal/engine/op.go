package engine

import (
	"encoding/json"
	"fmt"
)

// Op is the closed set of workbook mutations. Every variant is decoded
// and validated at the JSON boundary by DecodeOp; the dispatcher never
// sees an op name it does not know.
type Op interface {
	Name() string
	summary() string
}

// internalOnly marks ops that are reachable only as undo targets, never
// from untrusted external input.
type internalOnly interface {
	internalOnly()
}

type CreateSheetOp struct {
	SheetName string `json:"name"`
}

type DeleteSheetOp struct {
	SheetName string `json:"name"`
}

// RestoreSheetOp reinserts a previously captured sheet. Undo-only.
type RestoreSheetOp struct {
	Sheet *Sheet `json:"sheet"`
}

type SetValuesOp struct {
	Range      RangeRef     `json:"range"`
	Values     [][]any      `json:"values"`
	Provenance []Provenance `json:"provenance,omitempty"`
}

type SetFormulasOp struct {
	Range    RangeRef    `json:"range"`
	Formulas [][]*string `json:"formulas"`
}

type FormatRangeOp struct {
	Range  RangeRef `json:"range"`
	Format *string  `json:"format"`
}

type LinkProvenanceOp struct {
	Range      RangeRef     `json:"range"`
	Provenance []Provenance `json:"provenance"`
}

// SetCellsOp bulk-replaces a rectangle with raw cell records. Undo-only:
// it is the physical inverse carrying a pre-image snapshot.
type SetCellsOp struct {
	Range RangeRef `json:"range"`
	Cells [][]Cell `json:"cells"`
}

type NoopOp struct{}

func (CreateSheetOp) Name() string    { return "createSheet" }
func (DeleteSheetOp) Name() string    { return "deleteSheet" }
func (RestoreSheetOp) Name() string   { return "restoreSheet" }
func (SetValuesOp) Name() string      { return "setValues" }
func (SetFormulasOp) Name() string    { return "setFormulas" }
func (FormatRangeOp) Name() string    { return "formatRange" }
func (LinkProvenanceOp) Name() string { return "linkProvenance" }
func (SetCellsOp) Name() string       { return "setCells" }
func (NoopOp) Name() string           { return "noop" }

func (RestoreSheetOp) internalOnly() {}
func (SetCellsOp) internalOnly()     {}

func (op CreateSheetOp) summary() string { return "create sheet " + op.SheetName }
func (op DeleteSheetOp) summary() string { return "delete sheet " + op.SheetName }
func (op RestoreSheetOp) summary() string {
	if op.Sheet == nil {
		return "restore sheet"
	}
	return "restore sheet " + op.Sheet.Name
}
func (op SetValuesOp) summary() string   { return "set values in " + op.Range.String() }
func (op SetFormulasOp) summary() string { return "set formulas in " + op.Range.String() }
func (op FormatRangeOp) summary() string {
	if op.Format == nil {
		return "clear format in " + op.Range.String()
	}
	return "format " + op.Range.String() + " as " + *op.Format
}
func (op LinkProvenanceOp) summary() string { return "link provenance in " + op.Range.String() }
func (op SetCellsOp) summary() string       { return "replace cells in " + op.Range.String() }
func (NoopOp) summary() string              { return "noop" }

// rangePayload is the wire form of a range argument: a sheet name plus
// an A1-style reference, resolved through the address codec.
type rangePayload struct {
	Sheet string `json:"sheet"`
	Ref   string `json:"ref"`
}

func (p rangePayload) resolve() (RangeRef, error) {
	return ParseRange(p.Sheet, p.Ref)
}

// DecodeOp turns an (op name, JSON args) pair into a typed Op. Unknown
// names fail with ErrUnknownOp; malformed ranges with ErrBadAddress.
// Decoding an internal-only op succeeds here — the dispatcher decides
// whether the caller may apply it.
func DecodeOp(name string, args json.RawMessage) (Op, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "createSheet":
		var op CreateSheetOp
		if err := json.Unmarshal(args, &op); err != nil {
			return nil, fmt.Errorf("createSheet args: %w", err)
		}
		return op, nil
	case "deleteSheet":
		var op DeleteSheetOp
		if err := json.Unmarshal(args, &op); err != nil {
			return nil, fmt.Errorf("deleteSheet args: %w", err)
		}
		return op, nil
	case "restoreSheet":
		var op RestoreSheetOp
		if err := json.Unmarshal(args, &op); err != nil {
			return nil, fmt.Errorf("restoreSheet args: %w", err)
		}
		return op, nil
	case "setValues":
		var raw struct {
			Range      rangePayload `json:"range"`
			Values     [][]any      `json:"values"`
			Provenance []Provenance `json:"provenance"`
		}
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, fmt.Errorf("setValues args: %w", err)
		}
		rng, err := raw.Range.resolve()
		if err != nil {
			return nil, err
		}
		return SetValuesOp{Range: rng, Values: raw.Values, Provenance: raw.Provenance}, nil
	case "setFormulas":
		var raw struct {
			Range    rangePayload `json:"range"`
			Formulas [][]*string  `json:"formulas"`
		}
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, fmt.Errorf("setFormulas args: %w", err)
		}
		rng, err := raw.Range.resolve()
		if err != nil {
			return nil, err
		}
		return SetFormulasOp{Range: rng, Formulas: raw.Formulas}, nil
	case "formatRange":
		var raw struct {
			Range  rangePayload `json:"range"`
			Format *string      `json:"format"`
		}
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, fmt.Errorf("formatRange args: %w", err)
		}
		rng, err := raw.Range.resolve()
		if err != nil {
			return nil, err
		}
		return FormatRangeOp{Range: rng, Format: raw.Format}, nil
	case "linkProvenance":
		var raw struct {
			Range      rangePayload `json:"range"`
			Provenance []Provenance `json:"provenance"`
		}
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, fmt.Errorf("linkProvenance args: %w", err)
		}
		rng, err := raw.Range.resolve()
		if err != nil {
			return nil, err
		}
		return LinkProvenanceOp{Range: rng, Provenance: raw.Provenance}, nil
	case "setCells":
		var raw struct {
			Range rangePayload `json:"range"`
			Cells [][]Cell     `json:"cells"`
		}
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, fmt.Errorf("setCells args: %w", err)
		}
		rng, err := raw.Range.resolve()
		if err != nil {
			return nil, err
		}
		return SetCellsOp{Range: rng, Cells: raw.Cells}, nil
	case "noop":
		return NoopOp{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
}
