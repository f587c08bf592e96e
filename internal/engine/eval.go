package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// In-band formula failure sentinels. They are stored as cell values and
// propagate verbatim through any formula referencing the failing cell.
const (
	RefError  = "#REF!"
	EvalError = "#ERROR!"
)

var (
	sumCallRe = regexp.MustCompile(`(?i)\bSUM\(([^()]*)\)`)
	cellRefRe = regexp.MustCompile(`(?i)\b[A-Z]+[0-9]+\b`)
	rangeRe   = regexp.MustCompile(`(?i)^([A-Z]+[0-9]+):([A-Z]+[0-9]+)$`)
)

// EvaluateCell resolves one cell into its stored value. visited is the
// recursion guard for a single top-level call; callers start each
// top-level evaluation with a fresh set and the engine threads it down
// through references, never sharing it across unrelated calls.
//
// A cell already in the visited set evaluates to RefError: the cycle is
// terminated there and dependents observe the same sentinel verbatim.
func (wb *Workbook) EvaluateCell(sheet *Sheet, row, col int, visited map[string]bool) any {
	key := sheet.Name + "!" + CellName(row, col)
	if visited[key] {
		if cell := sheet.CellAt(row, col); cell != nil {
			cell.Value = RefError
		}
		return RefError
	}
	visited[key] = true

	cell := sheet.CellAt(row, col)
	if cell == nil {
		return nil
	}
	if cell.Formula == "" || !strings.HasPrefix(cell.Formula, "=") {
		return cell.Value
	}

	expr := cell.Formula[1:]

	// Pass one: expand aggregation calls.
	expr = sumCallRe.ReplaceAllStringFunc(expr, func(call string) string {
		inner := sumCallRe.FindStringSubmatch(call)[1]
		return wb.expandSum(sheet, inner, visited)
	})

	// Pass two: substitute every remaining bare cell reference.
	expr = cellRefRe.ReplaceAllStringFunc(expr, func(ref string) string {
		r, c, err := ParseCellName(ref)
		if err != nil {
			return "0"
		}
		val := wb.EvaluateCell(sheet, r, c, visited)
		if s, ok := val.(string); ok && isSentinel(s) {
			return s
		}
		if num, ok := toNumber(val); ok {
			return formatNumber(num)
		}
		return "0"
	})

	// A sentinel anywhere in the residual text short-circuits arithmetic.
	if sentinel, ok := firstSentinel(expr); ok {
		cell.Value = sentinel
		return sentinel
	}

	result, err := evalArithmetic(expr)
	if err != nil {
		cell.Value = EvalError
		return EvalError
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		result = 0
	}
	cell.Value = result
	return result
}

// expandSum evaluates one SUM argument list. Range arguments coerce
// every cell, error results included, to 0 and never fail. A single
// reference argument that evaluates to a sentinel makes the whole call
// yield that sentinel and the remaining arguments are skipped.
func (wb *Workbook) expandSum(sheet *Sheet, argList string, visited map[string]bool) string {
	total := 0.0
	for _, arg := range strings.Split(argList, ",") {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if m := rangeRe.FindStringSubmatch(arg); m != nil {
			rng, err := ParseRange(sheet.Name, arg)
			if err != nil {
				continue
			}
			for r := rng.R1; r <= rng.R2; r++ {
				for c := rng.C1; c <= rng.C2; c++ {
					if num, ok := toNumber(wb.EvaluateCell(sheet, r, c, visited)); ok {
						total += num
					}
				}
			}
			continue
		}
		if cellRefRe.MatchString(arg) && cellRefRe.FindString(arg) == arg {
			r, c, err := ParseCellName(arg)
			if err != nil {
				continue
			}
			val := wb.EvaluateCell(sheet, r, c, visited)
			if s, ok := val.(string); ok && isSentinel(s) {
				return s
			}
			if num, ok := toNumber(val); ok {
				total += num
			}
			continue
		}
		// numeric literal, optionally with thousands separators
		if num, err := strconv.ParseFloat(strings.ReplaceAll(arg, ",", ""), 64); err == nil {
			total += num
		}
	}
	return formatNumber(total)
}

// RecalculateAll recomputes every cell on every sheet in row-major
// order, each cell starting a fresh visited set. There is no dependency
// graph and no memoization: a cell may see a dependency's stale or
// freshly computed value depending on iteration order. Callers must not
// rely on any particular ordering between dependent cells.
func (wb *Workbook) RecalculateAll() {
	for _, name := range wb.SheetNames() {
		sheet := wb.Sheets[name]
		for r := range sheet.Rows {
			for c := range sheet.Rows[r] {
				wb.EvaluateCell(sheet, r, c, map[string]bool{})
			}
		}
	}
}

func isSentinel(s string) bool {
	return s == RefError || s == EvalError
}

func firstSentinel(s string) (string, bool) {
	refIdx := strings.Index(s, RefError)
	errIdx := strings.Index(s, EvalError)
	switch {
	case refIdx < 0 && errIdx < 0:
		return "", false
	case errIdx < 0 || (refIdx >= 0 && refIdx < errIdx):
		return RefError, true
	default:
		return EvalError, true
	}
}

// toNumber reports whether a cell value is usable as a number. Numeric
// strings count, with thousands separators tolerated; sentinels and
// everything else do not.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		if isSentinel(n) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
