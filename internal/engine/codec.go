package engine

import "time"

// ExportedCell is the read-only wire form of a cell. Provenance is
// deliberately absent; it is served through the dedicated lookup.
type ExportedCell struct {
	Value   any     `json:"value"`
	Formula *string `json:"formula"`
	Format  *string `json:"format"`
}

type ExportedSheet struct {
	Name string           `json:"name"`
	Rows [][]ExportedCell `json:"rows"`
}

// ExportedEvent is the redacted audit form of an event: no arguments,
// no inverse. The serialized log is an audit trail, not a replayable
// one.
type ExportedEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Op        string    `json:"op"`
	Summary   string    `json:"summary"`
}

type Export struct {
	ID          string          `json:"id"`
	Sheets      []ExportedSheet `json:"sheets"`
	Checkpoints []Checkpoint    `json:"checkpoints"`
	Events      []ExportedEvent `json:"events"`
}

// Export produces the read-only serialized form of the workbook.
func (wb *Workbook) Export() Export {
	out := Export{
		ID:          wb.ID,
		Sheets:      make([]ExportedSheet, 0, len(wb.Sheets)),
		Checkpoints: append([]Checkpoint(nil), wb.Checkpoints...),
		Events:      make([]ExportedEvent, 0, len(wb.Events)),
	}
	for _, name := range wb.SheetNames() {
		sheet := wb.Sheets[name]
		es := ExportedSheet{Name: name, Rows: make([][]ExportedCell, len(sheet.Rows))}
		for r, row := range sheet.Rows {
			es.Rows[r] = make([]ExportedCell, len(row))
			for c, cell := range row {
				ec := ExportedCell{Value: cell.Value}
				if cell.Formula != "" {
					f := cell.Formula
					ec.Formula = &f
				}
				if cell.Format != "" {
					fm := cell.Format
					ec.Format = &fm
				}
				es.Rows[r][c] = ec
			}
		}
		out.Sheets = append(out.Sheets, es)
	}
	for _, ev := range wb.Events {
		out.Events = append(out.Events, ExportedEvent{
			ID:        ev.ID,
			Timestamp: ev.Timestamp,
			Op:        ev.Op.Name(),
			Summary:   ev.Summary,
		})
	}
	return out
}

// ImportCell accepts the external bulk-load cell shape; every field is
// optional.
type ImportCell struct {
	Value      any          `json:"value,omitempty"`
	Formula    *string      `json:"formula,omitempty"`
	Format     *string      `json:"format,omitempty"`
	Provenance []Provenance `json:"provenance,omitempty"`
}

type ImportSheet struct {
	Name string         `json:"name"`
	Rows [][]ImportCell `json:"rows"`
}

type Import struct {
	Sheets []ImportSheet `json:"sheets"`
}

// Load replaces the entire sheet set from the external shape. All
// event and checkpoint history is discarded, a default sheet is
// inserted when the input declares none, a fresh "import" checkpoint is
// recorded and one full recompute runs.
func (wb *Workbook) Load(in Import) {
	wb.Sheets = make(map[string]*Sheet, len(in.Sheets))
	for _, is := range in.Sheets {
		sheet := &Sheet{Name: is.Name, Rows: make([][]Cell, len(is.Rows))}
		width := 0
		for _, row := range is.Rows {
			if len(row) > width {
				width = len(row)
			}
		}
		for r, row := range is.Rows {
			sheet.Rows[r] = make([]Cell, width)
			for c, ic := range row {
				cell := Cell{Value: ic.Value, Provenance: cloneProvenance(ic.Provenance)}
				if ic.Formula != nil {
					cell.Formula = *ic.Formula
				}
				if ic.Format != nil {
					cell.Format = *ic.Format
				}
				sheet.Rows[r][c] = cell
			}
		}
		wb.Sheets[is.Name] = sheet
	}
	if len(wb.Sheets) == 0 {
		wb.Sheets[DefaultSheetName] = &Sheet{Name: DefaultSheetName}
	}
	wb.Events = nil
	wb.Checkpoints = nil
	wb.AddCheckpoint("import")
	wb.RecalculateAll()
}

// Dump produces a full-fidelity import shape, provenance included. It
// round-trips through Load except for history, which Load discards by
// contract. Used by the store layer for persistence.
func (wb *Workbook) Dump() Import {
	out := Import{Sheets: make([]ImportSheet, 0, len(wb.Sheets))}
	for _, name := range wb.SheetNames() {
		sheet := wb.Sheets[name]
		is := ImportSheet{Name: name, Rows: make([][]ImportCell, len(sheet.Rows))}
		for r, row := range sheet.Rows {
			is.Rows[r] = make([]ImportCell, len(row))
			for c, cell := range row {
				ic := ImportCell{Value: cell.Value, Provenance: cloneProvenance(cell.Provenance)}
				if cell.Formula != "" {
					f := cell.Formula
					ic.Formula = &f
				}
				if cell.Format != "" {
					fm := cell.Format
					ic.Format = &fm
				}
				is.Rows[r][c] = ic
			}
		}
		out.Sheets = append(out.Sheets, is)
	}
	return out
}
