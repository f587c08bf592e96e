package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ColLabel converts a 0-based column index to its letter form:
// 0 -> "A", 25 -> "Z", 26 -> "AA".
func ColLabel(col int) string {
	label := ""
	n := col + 1
	for n > 0 {
		n--
		label = string(rune('A'+n%26)) + label
		n /= 26
	}
	return label
}

// ColIndex converts a column label back to its 0-based index.
// Returns -1 for anything that is not a run of A-Z letters.
func ColIndex(label string) int {
	if label == "" {
		return -1
	}
	idx := 0
	for i := 0; i < len(label); i++ {
		ch := label[i]
		if ch < 'A' || ch > 'Z' {
			return -1
		}
		idx = idx*26 + int(ch-'A'+1)
	}
	return idx - 1
}

// CellName converts 0-based coordinates to A1-style text.
func CellName(row, col int) string {
	return ColLabel(col) + strconv.Itoa(row+1)
}

// ParseCellName converts A1-style text back to 0-based coordinates.
// Round-trips exactly with CellName for every coordinate a sheet can
// reach; anything malformed fails with ErrBadAddress.
func ParseCellName(addr string) (row, col int, err error) {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	split := -1
	for i, ch := range addr {
		if ch >= '0' && ch <= '9' {
			split = i
			break
		}
	}
	if split <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	col = ColIndex(addr[:split])
	if col < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	n, convErr := strconv.Atoi(addr[split:])
	if convErr != nil || n < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	return n - 1, col, nil
}

// RangeRef is an inclusive rectangular region on one named sheet,
// 0-based, with R1 <= R2 and C1 <= C2 after parsing.
type RangeRef struct {
	Sheet string `json:"sheet"`
	R1    int    `json:"r1"`
	C1    int    `json:"c1"`
	R2    int    `json:"r2"`
	C2    int    `json:"c2"`
}

func (r RangeRef) String() string {
	return r.Sheet + "!" + CellName(r.R1, r.C1) + ":" + CellName(r.R2, r.C2)
}

// ParseRange parses "A1:B3" or a single-cell "A1" into a normalized
// RangeRef on the given sheet.
func ParseRange(sheet, ref string) (RangeRef, error) {
	parts := strings.Split(strings.TrimSpace(ref), ":")
	if len(parts) != 1 && len(parts) != 2 {
		return RangeRef{}, fmt.Errorf("%w: %q", ErrBadAddress, ref)
	}
	r1, c1, err := ParseCellName(parts[0])
	if err != nil {
		return RangeRef{}, err
	}
	r2, c2 := r1, c1
	if len(parts) == 2 {
		r2, c2, err = ParseCellName(parts[1])
		if err != nil {
			return RangeRef{}, err
		}
	}
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	return RangeRef{Sheet: sheet, R1: r1, C1: c1, R2: r2, C2: c2}, nil
}
