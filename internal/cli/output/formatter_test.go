// Package output provides output formatting for the LexSync CLI.
package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("json format should return JSONFormatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("yaml format should return YAMLFormatter")
	}
	if _, ok := NewFormatter(FormatTable, false).(*TableFormatter); !ok {
		t.Error("table format should return TableFormatter")
	}
	if _, ok := NewFormatter("bogus", false).(*TableFormatter); !ok {
		t.Error("unknown format should fall back to TableFormatter")
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{}
	if err := f.Format(&buf, map[string]int{"applied": 3}); err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["applied"] != 3 {
		t.Errorf("applied = %d, want 3", decoded["applied"])
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &YAMLFormatter{}
	data := struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
	}{Key: "greeting", Value: "hello"}

	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "key: greeting") {
		t.Errorf("yaml output missing key field:\n%s", out)
	}
	if !strings.Contains(out, "value: hello") {
		t.Errorf("yaml output missing value field:\n%s", out)
	}
}

func TestTableRender(t *testing.T) {
	table := &Table{}
	table.SetHeaders("KEY", "LANGUAGE")
	table.AddRow("greeting", "de")
	table.AddRow("farewell", "fr")

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"KEY", "LANGUAGE", "greeting", "de", "farewell"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := table.RenderWithOptions(&buf, true); err != nil {
		t.Fatalf("RenderWithOptions failed: %v", err)
	}
	if strings.Contains(buf.String(), "KEY") {
		t.Error("noHeaders output should not contain headers")
	}
}

func TestTableFormatterStructSlice(t *testing.T) {
	type row struct {
		Name      string    `json:"name"`
		Count     int       `json:"count"`
		CreatedAt time.Time `json:"created_at" table:"wide"`
	}
	rows := []row{
		{Name: "greeting", Count: 2, CreatedAt: time.Now()},
		{Name: "farewell", Count: 1},
	}

	var buf bytes.Buffer
	f := &TableFormatter{}
	if err := f.Format(&buf, rows); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "greeting") {
		t.Errorf("struct slice table missing data:\n%s", out)
	}
	if strings.Contains(out, "CREATED_AT") {
		t.Error("wide column rendered without wide mode")
	}

	buf.Reset()
	wide := &TableFormatter{Wide: true}
	if err := wide.Format(&buf, rows); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(buf.String(), "CREATED_AT") {
		t.Error("wide mode should include wide columns")
	}
}

func TestTableFormatterStruct(t *testing.T) {
	data := struct {
		ID      string `json:"id"`
		Applied int    `json:"applied"`
	}{ID: "lxh-01ABC", Applied: 4}

	var buf bytes.Buffer
	f := &TableFormatter{}
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "lxh-01ABC") || !strings.Contains(out, "applied") {
		t.Errorf("struct table missing fields:\n%s", out)
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf, "importing", "entries")
	p.SetTotal(10)
	p.Increment(5)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "importing") {
		t.Errorf("progress output missing title:\n%s", out)
	}
	if !strings.Contains(out, "10/10 entries") {
		t.Errorf("finished bar should show full count:\n%s", out)
	}
}

func TestProgressBarNoTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf, "scanning", "rows")
	p.Increment(3)
	if !strings.Contains(buf.String(), "3 rows") {
		t.Errorf("totalless bar should show plain count:\n%s", buf.String())
	}
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "restoring")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Success("restored")

	if !strings.Contains(buf.String(), "restored") {
		t.Errorf("spinner output missing success message:\n%s", buf.String())
	}
}
