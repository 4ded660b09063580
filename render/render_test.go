package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type row struct {
	Name  string `json:"name" yaml:"name"`
	Bytes string `json:"bytes" yaml:"bytes"`
}

func TestNewFormatter(t *testing.T) {
	for _, f := range []string{"", "table", "JSON", "yaml"} {
		if _, err := NewFormatter(f); err != nil {
			t.Errorf("%q: %v", f, err)
		}
	}
	if _, err := NewFormatter("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	out := (&TableFormatter{}).Format([]row{{"play", "c31c34"}, {"pause", "c31c35"}})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "BYTES") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "pause") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	if out := (&TableFormatter{}).Format([]row{}); out != "Nothing to show.\n" {
		t.Errorf("got %q", out)
	}
}

func TestTableFormatter_NestedStruct(t *testing.T) {
	type inner struct{ Port int }
	type outer struct {
		Host  string
		Inner inner
		Log   *inner
	}
	out := (&TableFormatter{}).Format(&outer{Host: "h", Inner: inner{Port: 5}})
	for _, want := range []string{"Host:", "Inner.Port:", "Log:"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestJSONAndYAML(t *testing.T) {
	data := []row{{"play", "c31c34"}}

	var back []row
	if err := json.Unmarshal([]byte((&JSONFormatter{}).Format(data)), &back); err != nil || back[0].Name != "play" {
		t.Fatalf("json: %v %+v", err, back)
	}
	back = nil
	if err := yaml.Unmarshal([]byte((&YAMLFormatter{}).Format(data)), &back); err != nil || back[0].Bytes != "c31c34" {
		t.Fatalf("yaml: %v %+v", err, back)
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "clip.bin")
	p.Update(1, 3)
	p.Update(1, 3)
	p.Update(3, 3)
	p.Done(nil)

	out := buf.String()
	if strings.Count(out, "\r") != 2 {
		t.Errorf("expected 2 redraws, got %q", out)
	}
	for _, want := range []string{"clip.bin", "3/3", "100%", "uploaded"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestProgress_Failure(t *testing.T) {
	var buf bytes.Buffer
	NewProgress(&buf, "clip.bin").Done(errors.New("device not ready"))
	if !strings.Contains(buf.String(), "device not ready") {
		t.Errorf("got %q", buf.String())
	}
}
