package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportEmptySheetListYieldsDefault(t *testing.T) {
	wb := New("t")
	rng := mustRange(t, DefaultSheetName, "A1")
	require.NoError(t, wb.Apply(SetValuesOp{Range: rng, Values: [][]any{{1.0}}}))

	wb.Load(Import{})

	require.Len(t, wb.Sheets, 1)
	_, err := wb.Sheet(DefaultSheetName)
	require.NoError(t, err)

	require.Empty(t, wb.Events, "import discards event history")
	require.Len(t, wb.Checkpoints, 1)
	require.Equal(t, "import", wb.Checkpoints[0].ID)
	require.Equal(t, 0, wb.Checkpoints[0].EventCount)
}

func TestImportRecomputesFormulas(t *testing.T) {
	wb := New("t")
	wb.Load(Import{Sheets: []ImportSheet{{
		Name: "Calc",
		Rows: [][]ImportCell{
			{{Value: 2.0}, {Formula: strp("=A1*3")}},
		},
	}}})

	s, err := wb.Sheet("Calc")
	require.NoError(t, err)
	require.Equal(t, 6.0, s.CellAt(0, 1).Value)
}

func TestExportShape(t *testing.T) {
	wb := New("book-1")
	rng := mustRange(t, DefaultSheetName, "A1")
	pct := "percent"
	require.NoError(t, wb.Apply(SetValuesOp{Range: rng, Values: [][]any{{0.5}}}))
	require.NoError(t, wb.Apply(FormatRangeOp{Range: rng, Format: &pct}))

	out := wb.Export()

	require.Equal(t, "book-1", out.ID)
	require.Len(t, out.Sheets, 1)
	cell := out.Sheets[0].Rows[0][0]
	require.Equal(t, 0.5, cell.Value)
	require.Nil(t, cell.Formula)
	require.NotNil(t, cell.Format)
	require.Equal(t, "percent", *cell.Format)

	// Events are redacted to an audit trail: op name and summary only.
	require.Len(t, out.Events, 2)
	require.Equal(t, "setValues", out.Events[0].Op)
	require.NotEmpty(t, out.Events[0].ID)
	require.NotEmpty(t, out.Events[0].Summary)
}

func TestProvenanceLookup(t *testing.T) {
	wb := New("t")
	rng := mustRange(t, DefaultSheetName, "B2")
	require.NoError(t, wb.Apply(SetValuesOp{
		Range:      rng,
		Values:     [][]any{{"v"}},
		Provenance: []Provenance{{"source": "pdf", "page": 3.0}},
	}))

	got, err := wb.ProvenanceAt(DefaultSheetName, "B2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "pdf", got[0]["source"])

	// Cells without provenance, including ones outside the grid, answer
	// with an empty list.
	got, err = wb.ProvenanceAt(DefaultSheetName, "Z99")
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = wb.ProvenanceAt("Nope", "A1")
	require.ErrorIs(t, err, ErrSheetNotFound)

	_, err = wb.ProvenanceAt(DefaultSheetName, "not-an-address")
	require.ErrorIs(t, err, ErrBadAddress)
}

func TestSetValuesReplacesProvenance(t *testing.T) {
	wb := New("t")
	rng := mustRange(t, DefaultSheetName, "A1")
	require.NoError(t, wb.Apply(LinkProvenanceOp{Range: rng, Provenance: []Provenance{{"source": "old"}}}))
	require.NoError(t, wb.Apply(SetValuesOp{
		Range:      rng,
		Values:     [][]any{{1.0}},
		Provenance: []Provenance{{"source": "new"}},
	}))

	got, err := wb.ProvenanceAt(DefaultSheetName, "A1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "new", got[0]["source"])
}

func TestDumpLoadRoundTrip(t *testing.T) {
	wb := New("t")
	rng := mustRange(t, DefaultSheetName, "A1:A2")
	require.NoError(t, wb.Apply(SetValuesOp{
		Range:      rng,
		Values:     [][]any{{3.0}, {4.0}},
		Provenance: []Provenance{{"source": "seed"}},
	}))
	rngB := mustRange(t, DefaultSheetName, "B1")
	require.NoError(t, wb.Apply(SetFormulasOp{Range: rngB, Formulas: [][]*string{{strp("=A1+A2")}}}))

	dump := wb.Dump()
	fresh := New("t2")
	fresh.Load(dump)

	s, err := fresh.Sheet(DefaultSheetName)
	require.NoError(t, err)
	require.Equal(t, 3.0, s.CellAt(0, 0).Value)
	require.Equal(t, "=A1+A2", s.CellAt(0, 1).Formula)
	require.Equal(t, 7.0, s.CellAt(0, 1).Value, "Load runs a full recompute")

	got, err := fresh.ProvenanceAt(DefaultSheetName, "A1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
