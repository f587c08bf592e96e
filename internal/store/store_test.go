package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gridbook/internal/engine"
)

func mustRange(t *testing.T, sheet, ref string) engine.RangeRef {
	t.Helper()
	rng, err := engine.ParseRange(sheet, ref)
	require.NoError(t, err)
	return rng
}

func TestCreateAndWith(t *testing.T) {
	m := NewWorkbookManager(t.TempDir())

	id, err := m.Create("")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	err = m.With(id, func(wb *engine.Workbook) error {
		return wb.Apply(engine.SetValuesOp{
			Range:  mustRange(t, engine.DefaultSheetName, "A1"),
			Values: [][]any{{42.0}},
		})
	})
	require.NoError(t, err)

	err = m.View(id, func(wb *engine.Workbook) error {
		s, err := wb.Sheet(engine.DefaultSheetName)
		require.NoError(t, err)
		require.Equal(t, 42.0, s.CellAt(0, 0).Value)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateDuplicate(t *testing.T) {
	m := NewWorkbookManager(t.TempDir())
	_, err := m.Create("book")
	require.NoError(t, err)
	_, err = m.Create("book")
	require.ErrorIs(t, err, ErrWorkbookExists)
}

func TestWithUnknownWorkbook(t *testing.T) {
	m := NewWorkbookManager(t.TempDir())
	err := m.With("nope", func(*engine.Workbook) error { return nil })
	require.ErrorIs(t, err, ErrWorkbookNotFound)
}

func TestWithFailedOpNotPersisted(t *testing.T) {
	dir := t.TempDir()
	m := NewWorkbookManager(dir)
	id, err := m.Create("book")
	require.NoError(t, err)

	before, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)

	err = m.With(id, func(wb *engine.Workbook) error {
		return wb.Apply(engine.CreateSheetOp{SheetName: engine.DefaultSheetName})
	})
	require.ErrorIs(t, err, engine.ErrDuplicateSheet)

	after, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewWorkbookManager(dir)
	id, err := m.Create("book")
	require.NoError(t, err)

	err = m.With(id, func(wb *engine.Workbook) error {
		if err := wb.Apply(engine.CreateSheetOp{SheetName: "Data"}); err != nil {
			return err
		}
		if err := wb.Apply(engine.SetValuesOp{
			Range:      mustRange(t, "Data", "A1"),
			Values:     [][]any{{7.0}},
			Provenance: []engine.Provenance{{"source": "csv"}},
		}); err != nil {
			return err
		}
		f := "=A1*2"
		return wb.Apply(engine.SetFormulasOp{
			Range:    mustRange(t, "Data", "B1"),
			Formulas: [][]*string{{&f}},
		})
	})
	require.NoError(t, err)

	// A fresh manager over the same directory sees the same cells.
	fresh := NewWorkbookManager(dir)
	fresh.Load()

	err = fresh.View(id, func(wb *engine.Workbook) error {
		s, err := wb.Sheet("Data")
		require.NoError(t, err)
		require.Equal(t, 7.0, s.CellAt(0, 0).Value)
		require.Equal(t, "=A1*2", s.CellAt(0, 1).Formula)
		require.Equal(t, 14.0, s.CellAt(0, 1).Value)

		prov, err := wb.ProvenanceAt("Data", "A1")
		require.NoError(t, err)
		require.Len(t, prov, 1)

		// Event history does not survive a restart.
		require.Empty(t, wb.Events)
		return nil
	})
	require.NoError(t, err)
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte("[]"), 0644))

	good, err := json.Marshal(persistedWorkbook{ID: "ok", Sheets: engine.Import{}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.json"), good, 0644))

	m := NewWorkbookManager(dir)
	m.Load()

	require.Len(t, m.List(), 1)
	require.NoError(t, m.View("ok", func(*engine.Workbook) error { return nil }))
}

func TestListAndDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewWorkbookManager(dir)
	id, err := m.Create("book")
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 1)
	require.Equal(t, id, list[0].ID)
	require.Equal(t, []string{engine.DefaultSheetName}, list[0].SheetNames)

	require.NoError(t, m.Delete(id))
	require.Empty(t, m.List())
	require.ErrorIs(t, m.Delete(id), ErrWorkbookNotFound)

	_, err = os.Stat(filepath.Join(dir, id+".json"))
	require.True(t, os.IsNotExist(err))
}
