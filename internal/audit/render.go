package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// nameWidth is the column the size figure starts at in line output.
const nameWidth = 25

// OverLimitMarker is printed under every over-limit entry in line output.
const OverLimitMarker = "^-----------------------------^"

// Unit selects how sizes are printed.
type Unit string

const (
	// Bytes prints whole bytes.
	Bytes Unit = "bytes"
	// Kilobytes prints size/1000 with three decimals.
	Kilobytes Unit = "kb"
)

// ParseUnit parses "bytes" or "kb".
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(s)) {
	case "", Bytes:
		return Bytes, nil
	case Kilobytes:
		return Kilobytes, nil
	default:
		return "", fmt.Errorf("unknown size unit %q", s)
	}
}

// Format renders a byte count in the unit.
func (u Unit) Format(size int) string {
	if u == Kilobytes {
		return strconv.FormatFloat(float64(size)/1000, 'f', 3, 64)
	}
	return strconv.Itoa(size)
}

// Pad extends s to |n| characters with c. A positive n pads on the right, a
// negative n on the left. Strings already at least |n| long are returned as
// is. A zero c pads with spaces.
func Pad(s string, n int, c rune) string {
	if n < 0 {
		n = -n
		return strings.Repeat(string(padRune(c)), max(n-len(s), 0)) + s
	}
	return s + strings.Repeat(string(padRune(c)), max(n-len(s), 0))
}

func padRune(c rune) rune {
	if c == 0 {
		return ' '
	}
	return c
}

// WriteLines prints one "name-----size" line per entry, largest first, each
// over-limit entry followed by OverLimitMarker.
func WriteLines(w io.Writer, r *Report, unit Unit) error {
	for _, e := range r.Entries {
		if _, err := fmt.Fprintln(w, Pad(e.ContractName, nameWidth, '-')+unit.Format(e.SizeBytes)); err != nil {
			return err
		}
		if e.OverLimit {
			if _, err := fmt.Fprintln(w, OverLimitMarker); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTable prints the report as a table.
func WriteTable(w io.Writer, r *Report, unit Unit) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Contract", "Size (" + string(unit) + ")", "Limit %", "Over"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	for _, e := range r.Entries {
		over := ""
		if e.OverLimit {
			over = "yes"
		}
		pct := float64(e.SizeBytes) * 100 / float64(r.Threshold)
		t.AppendRow(table.Row{e.ContractName, unit.Format(e.SizeBytes), fmt.Sprintf("%.1f", pct), over})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d artifacts", len(r.Entries)),
		"limit " + unit.Format(r.Threshold),
		"",
		fmt.Sprintf("%d over", len(r.OverLimit())),
	})
	t.Render()
}

// WriteJSON prints the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
