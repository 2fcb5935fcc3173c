package output

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

type testNode struct {
	Seq   uint64          `json:"seq"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	note  string
}

type testDiff struct {
	Left   *testNode `json:"left"`
	Right  *testNode `json:"right"`
	Hidden string    `json:"hidden" table:"-"`
}

func render(t *testing.T, f *TableFormatter, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return buf.String()
}

func TestTableFormatter_Table(t *testing.T) {
	table := &Table{}
	table.SetHeaders("KEY", "VALUE")
	table.AddRow("/a", `"1"`)

	out := render(t, &TableFormatter{}, table)
	if !strings.Contains(out, "KEY") || !strings.Contains(out, `"1"`) {
		t.Errorf("output = %q", out)
	}

	out = render(t, &TableFormatter{NoHeaders: true}, *table)
	if strings.Contains(out, "KEY") || !strings.Contains(out, "/a") {
		t.Errorf("NoHeaders output = %q", out)
	}
}

func TestTableFormatter_Nodes(t *testing.T) {
	data := []*testNode{
		{Seq: 1, Key: "/users/1", Value: json.RawMessage(`{"name":"ada"}`), note: "x"},
		{Seq: 2, Key: "/users/2", Value: json.RawMessage(`null`)},
	}

	out := render(t, &TableFormatter{}, data)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "SEQ") || !strings.Contains(lines[0], "VALUE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], `{"name":"ada"}`) {
		t.Errorf("raw JSON value should print as text: %q", lines[1])
	}
	if strings.Contains(out, "NOTE") {
		t.Error("unexported fields should be skipped")
	}
}

func TestTableFormatter_SingleStruct(t *testing.T) {
	out := render(t, &TableFormatter{}, testDiff{
		Left:   &testNode{Seq: 3, Key: "/k"},
		Hidden: "secret",
	})

	if !strings.Contains(out, "FIELD") || !strings.Contains(out, "left.key") {
		t.Errorf("nested structs should flatten into dotted fields: %q", out)
	}
	if strings.Contains(out, "secret") {
		t.Error(`fields tagged table:"-" should be skipped`)
	}
}

func TestTableFormatter_MapAndEmpty(t *testing.T) {
	out := render(t, &TableFormatter{}, map[string]uint64{"version": 4})
	if !strings.Contains(out, "version") || !strings.Contains(out, "4") {
		t.Errorf("map output = %q", out)
	}

	if out := render(t, &TableFormatter{}, []testNode{}); strings.TrimSpace(out) != "" {
		t.Errorf("empty slice output = %q", out)
	}
	if out := render(t, &TableFormatter{}, nil); out != "" {
		t.Errorf("nil output = %q", out)
	}
}

func TestTableFormatter_FallbackToJSON(t *testing.T) {
	out := render(t, &TableFormatter{}, 42)
	if strings.TrimSpace(out) != "42" {
		t.Errorf("scalar output = %q, want JSON fallback", out)
	}
}

func TestFormatValue(t *testing.T) {
	str := "x"
	var nilPtr *string
	var iface any = uint64(7)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "hello", "hello"},
		{"empty string", "", "-"},
		{"int", -3, "-3"},
		{"uint", uint64(9), "9"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"raw json", json.RawMessage(`[1,2]`), "[1,2]"},
		{"empty raw json", json.RawMessage(nil), "-"},
		{"indented raw json", json.RawMessage("{\n  \"a\": 1\n}"), `{"a":1}`},
		{"slice", []int{1, 2}, "[1,2]"},
		{"empty slice", []int{}, "-"},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
		{"pointer", &str, "x"},
		{"nil pointer", nilPtr, ""},
		{"interface", iface, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.value)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}

	if got := formatValue(reflect.Value{}); got != "" {
		t.Errorf("formatValue(invalid) = %q", got)
	}
}

func TestTableFormatter_Truncate(t *testing.T) {
	long := json.RawMessage(`"` + strings.Repeat("x", 200) + `"`)
	data := []testNode{{Seq: 1, Key: "/big", Value: long}}

	out := render(t, &TableFormatter{MaxWidth: 20}, data)
	if strings.Contains(out, strings.Repeat("x", 30)) || !strings.Contains(out, "...") {
		t.Errorf("value should be truncated: %q", out)
	}

	out = render(t, &TableFormatter{MaxWidth: -1}, data)
	if !strings.Contains(out, strings.Repeat("x", 200)) {
		t.Errorf("negative MaxWidth should disable truncation: %q", out)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"seq":          "seq",
		"OtherVersion": "Other_Version",
		"ID":           "I_D",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
