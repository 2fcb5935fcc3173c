package output

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// DefaultMaxWidth caps table cells so large JSON values keep rows readable.
const DefaultMaxWidth = 80

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	NoHeaders bool
	// MaxWidth truncates cells longer than this many runes. Zero means
	// DefaultMaxWidth, negative means no limit.
	MaxWidth int
}

// Format renders a *Table, a slice of structs (one row per element), a map
// (KEY/VALUE rows) or a single struct (FIELD/VALUE rows). Anything else is
// printed as JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	var table *Table
	switch t := data.(type) {
	case *Table:
		table = t
	case Table:
		table = &t
	default:
		var ok bool
		if table, ok = toTable(reflect.ValueOf(data)); !ok {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		}
	}

	return table.truncated(f.maxWidth()).RenderWithOptions(w, f.NoHeaders)
}

func (f *TableFormatter) maxWidth() int {
	if f.MaxWidth == 0 {
		return DefaultMaxWidth
	}
	return f.MaxWidth
}

func toTable(v reflect.Value) (*Table, bool) {
	v = deref(v)
	if !v.IsValid() {
		return nil, false
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Type() == rawMessageType {
			return nil, false
		}
		return rowsTable(v), true
	case reflect.Map:
		t := &Table{Headers: []string{"KEY", "VALUE"}}
		it := v.MapRange()
		for it.Next() {
			t.AddRow(formatValue(it.Key()), formatValue(it.Value()))
		}
		return t, true
	case reflect.Struct:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		addFields(t, "", v)
		return t, true
	default:
		return nil, false
	}
}

// rowsTable renders one row per element, with columns taken from the first
// element.
func rowsTable(v reflect.Value) *Table {
	t := &Table{}
	if v.Len() == 0 {
		return t
	}

	first := deref(v.Index(0))
	if first.Kind() != reflect.Struct {
		t.Headers = []string{"VALUE"}
		for i := 0; i < v.Len(); i++ {
			t.AddRow(formatValue(v.Index(i)))
		}
		return t
	}

	fields := columns(first.Type())
	for _, idx := range fields {
		t.Headers = append(t.Headers, strings.ToUpper(toSnakeCase(fieldName(first.Type().Field(idx)))))
	}
	for i := 0; i < v.Len(); i++ {
		elem := deref(v.Index(i))
		row := make([]string, len(fields))
		if elem.IsValid() {
			for c, idx := range fields {
				row[c] = formatValue(elem.Field(idx))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// addFields flattens nested structs into dotted FIELD names.
func addFields(t *Table, prefix string, v reflect.Value) {
	for _, idx := range columns(v.Type()) {
		name := prefix + fieldName(v.Type().Field(idx))
		fv := deref(v.Field(idx))
		if fv.Kind() == reflect.Struct && fv.Type() != rawMessageType {
			addFields(t, name+".", fv)
			continue
		}
		t.AddRow(name, formatValue(v.Field(idx)))
	}
}

// columns lists the displayed fields of a struct type.
func columns(typ reflect.Type) []int {
	var out []int
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.IsExported() && field.Tag.Get("table") != "-" {
			out = append(out, i)
		}
	}
	return out
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// formatValue renders one cell. Raw JSON is compacted onto a single line.
func formatValue(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}

	if v.Type() == rawMessageType {
		if v.Len() == 0 {
			return "-"
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v.Bytes()); err != nil {
			return string(v.Bytes())
		}
		return buf.String()
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		if (v.Kind() != reflect.Struct) && v.Len() == 0 {
			return "-"
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return "?"
		}
		return string(b)
	default:
		return "?"
	}
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// fieldName prefers the json tag name.
func fieldName(field reflect.StructField) string {
	if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return field.Name
}

// toSnakeCase converts CamelCase to Camel_Case; callers upper-case it.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Table is a header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// SetHeaders sets the header row.
func (t *Table) SetHeaders(headers ...string) {
	t.Headers = headers
}

// Render writes the table with headers.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions writes the table, optionally without the header row.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		io.WriteString(tw, strings.Join(t.Headers, "\t")+"\n")
	}
	for _, row := range t.Rows {
		io.WriteString(tw, strings.Join(row, "\t")+"\n")
	}
	return tw.Flush()
}

// truncated returns a copy whose cells are at most width runes.
func (t *Table) truncated(width int) *Table {
	if width < 0 {
		return t
	}
	out := &Table{Headers: t.Headers, Rows: make([][]string, len(t.Rows))}
	for i, row := range t.Rows {
		out.Rows[i] = make([]string, len(row))
		for j, cell := range row {
			out.Rows[i][j] = truncate(cell, width)
		}
	}
	return out
}

func truncate(s string, width int) string {
	if width < 4 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}
