package engine

import "testing"

func testSheet(t *testing.T, wb *Workbook) *Sheet {
	t.Helper()
	s, err := wb.Sheet(DefaultSheetName)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func setCell(s *Sheet, row, col int, cell Cell) {
	s.EnsureSize(row+1, col+1)
	*s.CellAt(row, col) = cell
}

func TestEvaluateNonFormulaReturnsValueUnchanged(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: "hello"})
	setCell(s, 0, 1, Cell{Value: 42.5})
	setCell(s, 0, 2, Cell{Value: "A1+1"}) // no leading "=", stays inert

	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != "hello" {
		t.Fatalf("got %v, want hello", got)
	}
	if got := wb.EvaluateCell(s, 0, 1, map[string]bool{}); got != 42.5 {
		t.Fatalf("got %v, want 42.5", got)
	}
	if got := wb.EvaluateCell(s, 0, 2, map[string]bool{}); got != "A1+1" {
		t.Fatalf("got %v, want literal text", got)
	}
}

func TestSelfReferenceYieldsRefError(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Formula: "=A1"})

	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != RefError {
		t.Fatalf("A1: got %v, want %q", got, RefError)
	}

	// A dependent sees the same sentinel verbatim, not a thrown error and
	// not string concatenation.
	setCell(s, 0, 1, Cell{Formula: "=A1+10"})
	if got := wb.EvaluateCell(s, 0, 1, map[string]bool{}); got != RefError {
		t.Fatalf("B1: got %v, want %q", got, RefError)
	}
}

func TestSubtractionAcrossCells(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: 1000.0})
	setCell(s, 1, 0, Cell{Value: 600.0})
	setCell(s, 2, 1, Cell{Formula: "=A1-A2"})

	wb.RecalculateAll()

	if got := s.CellAt(2, 1).Value; got != 400.0 {
		t.Fatalf("B3: got %v, want 400", got)
	}
}

func TestNumericStringsCoerce(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: "1,000"})
	setCell(s, 1, 0, Cell{Value: "600"})
	setCell(s, 2, 0, Cell{Formula: "=A1-A2"})

	if got := wb.EvaluateCell(s, 2, 0, map[string]bool{}); got != 400.0 {
		t.Fatalf("got %v, want 400", got)
	}
}

func TestNonNumericSubstitutesAsZero(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: "not a number"})
	setCell(s, 0, 1, Cell{Formula: "=A1+7"})

	if got := wb.EvaluateCell(s, 0, 1, map[string]bool{}); got != 7.0 {
		t.Fatalf("got %v, want 7", got)
	}
}

func TestDivisionByZeroStoresEvalError(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Formula: "=1/0"})

	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != EvalError {
		t.Fatalf("got %v, want %q", got, EvalError)
	}
	if s.CellAt(0, 0).Value != EvalError {
		t.Fatalf("sentinel not stored in cell")
	}
}

func TestGarbageFormulaStoresEvalError(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Formula: "=what"})

	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != EvalError {
		t.Fatalf("got %v, want %q", got, EvalError)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		formula string
		want    any
	}{
		{"=(2+3)*4", 20.0},
		{"=10/4", 2.5},
		{"=2*3+4*5", 26.0},
		{"=-5+8", 3.0},
		{"=2*(3+(4-1))", 12.0},
		{"=1/(2-2)", EvalError},
		{"=)", EvalError},
	}
	for _, tt := range tests {
		wb := New("t")
		s := testSheet(t, wb)
		setCell(s, 0, 0, Cell{Formula: tt.formula})
		if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.formula, got, tt.want)
		}
	}
}

func TestSumOverRange(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: 10.0})
	setCell(s, 1, 0, Cell{Value: 20.0})
	setCell(s, 2, 0, Cell{Value: "thirty"}) // non-numeric coerces to 0
	setCell(s, 3, 0, Cell{Formula: "=SUM(A1:A3)+5"})

	if got := wb.EvaluateCell(s, 3, 0, map[string]bool{}); got != 35.0 {
		t.Fatalf("got %v, want 35", got)
	}
}

func TestSumRangeCoercesErrorsToZero(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: EvalError})
	setCell(s, 1, 0, Cell{Value: 5.0})
	setCell(s, 0, 1, Cell{Formula: "=SUM(A1:A2)"})

	// Range aggregation never reports an error itself.
	if got := wb.EvaluateCell(s, 0, 1, map[string]bool{}); got != 5.0 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestSumSingleRefShortCircuitsOnError(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Formula: "=1/0"}) // A1 evaluates to #ERROR!
	setCell(s, 1, 1, Cell{Formula: "=5"})   // B2, stale value nil
	setCell(s, 2, 1, Cell{Formula: "=6"})   // B3
	setCell(s, 3, 1, Cell{Formula: "=7"})   // B4
	setCell(s, 0, 2, Cell{Formula: "=SUM(A1, B2:B4)"})

	if got := wb.EvaluateCell(s, 0, 2, map[string]bool{}); got != EvalError {
		t.Fatalf("got %v, want %q", got, EvalError)
	}
	// The range argument after the failing reference was never evaluated.
	for r := 1; r <= 3; r++ {
		if v := s.CellAt(r, 1).Value; v != nil {
			t.Fatalf("B%d evaluated to %v despite short-circuit", r+1, v)
		}
	}
}

func TestVisitedSetDoesNotLeakAcrossCalls(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Formula: "=B1*2"})
	setCell(s, 0, 1, Cell{Value: 3.0})

	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != 6.0 {
		t.Fatalf("first call: got %v, want 6", got)
	}
	// A second top-level call starts clean and must not see phantom cycles.
	if got := wb.EvaluateCell(s, 0, 0, map[string]bool{}); got != 6.0 {
		t.Fatalf("second call: got %v, want 6", got)
	}
}

func TestRecalculateAllCoversEverySheet(t *testing.T) {
	wb := New("t")
	s := testSheet(t, wb)
	setCell(s, 0, 0, Cell{Value: 2.0})
	setCell(s, 0, 1, Cell{Formula: "=A1*10"})

	if err := wb.Apply(CreateSheetOp{SheetName: "Other"}); err != nil {
		t.Fatal(err)
	}
	other := wb.Sheets["Other"]
	setCell(other, 0, 0, Cell{Formula: "=4+4"})

	wb.RecalculateAll()

	if got := s.CellAt(0, 1).Value; got != 20.0 {
		t.Fatalf("Sheet1!B1: got %v, want 20", got)
	}
	if got := other.CellAt(0, 0).Value; got != 8.0 {
		t.Fatalf("Other!A1: got %v, want 8", got)
	}
}

func TestEvalArithmeticRejectsTrailingInput(t *testing.T) {
	if _, err := evalArithmetic("1+2)"); err == nil {
		t.Fatal("expected error for trailing input")
	}
	if _, err := evalArithmetic(""); err == nil {
		t.Fatal("expected error for empty expression")
	}
}
