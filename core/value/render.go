package value

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Render formats v as plain text for a terminal. Records and lists of records
// become aligned tables.
func Render(v Value) string {
	switch v := v.(type) {
	case Record:
		return renderTable([]string{"", ""}, recordRows(v), false)
	case List:
		if cols, ok := commonColumns(v.Vals); ok {
			rows := make([][]string, len(v.Vals))
			for i, item := range v.Vals {
				r := item.(Record)
				row := []string{strconv.Itoa(i)}
				for _, c := range cols {
					cell, _ := r.Get(c)
					row = append(row, Inline(cell))
				}
				rows[i] = row
			}
			return renderTable(append([]string{"#"}, cols...), rows, true)
		}
		rows := make([][]string, len(v.Vals))
		for i, item := range v.Vals {
			rows[i] = []string{strconv.Itoa(i), Inline(item)}
		}
		return renderTable(nil, rows, false)
	default:
		return Inline(v)
	}
}

// Inline formats v on a single line.
func Inline(v Value) string {
	switch v := v.(type) {
	case nil, Nothing:
		return ""
	case Bool:
		return strconv.FormatBool(v.Val)
	case Int:
		return strconv.FormatInt(v.Val, 10)
	case Float:
		return formatFloat(v.Val)
	case String:
		return v.Val
	case Binary:
		return fmt.Sprintf("0x[%x]", v.Val)
	case Record:
		parts := make([]string, v.Len())
		for i, c := range v.Cols {
			parts[i] = fmt.Sprintf("%s: %s", c, Inline(v.Vals[i]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case List:
		parts := make([]string, len(v.Vals))
		for i, item := range v.Vals {
			parts[i] = Inline(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Closure:
		return fmt.Sprintf("<Closure %d>", v.BlockID)
	case Error:
		return fmt.Sprintf("Error: %v", v.Err)
	}
	return fmt.Sprintf("%v", v)
}

// Debug formats v with its type and, when raw is set, its span.
func Debug(v Value, raw bool) string {
	if !raw {
		if s, ok := v.(String); ok {
			return strconv.Quote(s.Val)
		}
		return Inline(v)
	}

	var inner string
	switch v := v.(type) {
	case Record:
		parts := make([]string, v.Len())
		for i, c := range v.Cols {
			parts[i] = fmt.Sprintf("%s: %s", c, Debug(v.Vals[i], true))
		}
		inner = strings.Join(parts, ", ")
	case List:
		parts := make([]string, len(v.Vals))
		for i, item := range v.Vals {
			parts[i] = Debug(item, true)
		}
		inner = strings.Join(parts, ", ")
	case String:
		inner = strconv.Quote(v.Val)
	default:
		inner = Inline(v)
	}
	name := v.Kind().String()
	return fmt.Sprintf("%s%s { val: %s, span: %v }", strings.ToUpper(name[:1]), name[1:], inner, v.Span())
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func recordRows(r Record) [][]string {
	rows := make([][]string, r.Len())
	for i, c := range r.Cols {
		rows[i] = []string{c, Inline(r.Vals[i])}
	}
	return rows
}

// commonColumns returns the union of columns, in first-seen order, when
// every item is a record.
func commonColumns(vals []Value) ([]string, bool) {
	if len(vals) == 0 {
		return nil, false
	}
	seen := map[string]bool{}
	var cols []string
	for _, v := range vals {
		r, ok := v.(Record)
		if !ok {
			return nil, false
		}
		for _, c := range r.Cols {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols, true
}

func renderTable(header []string, rows [][]string, showHeader bool) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 2, ' ', 0)
	if showHeader {
		fmt.Fprintln(w, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}
