package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rblower/compiler-go/pkg/lowering"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLowerAllOutcomes(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a_good.rb":      "def f(x)\n  x + 1\nend\nf(2)\n",
		"b_retry.rb":     "x = 1\nretry\n",
		"c_broken.rb":    "def (\n",
		"d_unknown.rb":   "a = 1\na&.succ\n",
		"e_closure.rb":   "[1, 2].map { |x| x * 2 }\n",
		"vendor/skip.rb": "1\n",
		"notes.txt":      "not ruby\n",
	})
	files, err := Collect(dir, func(path string) bool {
		return filepath.Ext(path) == ".rb" && !strings.HasPrefix(path, "vendor")
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("expected 5 files, got %v", files)
	}
	files = append(files, filepath.Join(dir, "missing.rb"))

	for _, limit := range []int{1, 4} {
		report, err := LowerAll(context.Background(), files, Options{
			Lowering:    lowering.DefaultOptions(),
			Concurrency: limit,
		})
		if err != nil {
			t.Fatalf("lower all: %v", err)
		}
		want := []Status{StatusCompiled, StatusNotCompilable, StatusParseError, StatusNotCompilable, StatusCompiled, StatusFailed}
		for i, out := range report.Outcomes {
			if out.Path != files[i] {
				t.Fatalf("limit %d: outcome %d out of order: got=%s want=%s", limit, i, out.Path, files[i])
			}
			if out.Status != want[i] {
				t.Fatalf("limit %d: %s: status mismatch: got=%s want=%s (%v)", limit, filepath.Base(out.Path), out.Status, want[i], out.Err)
			}
			if out.Unit != nil {
				t.Fatalf("limit %d: expected units to be dropped without KeepUnits", limit)
			}
		}
		if report.Compiled != 2 || report.NotCompilable != 2 || report.ParseErrors != 1 || report.Failed != 1 {
			t.Fatalf("limit %d: counter mismatch: got=%#v", limit, report)
		}
		if id := report.Outcomes[0].UnitID; len(id) != 26 {
			t.Fatalf("expected a compiled file to carry a unit id, got %q", id)
		}
		if report.Outcomes[1].UnitID != "" {
			t.Fatalf("expected no unit id for a file that did not compile, got %q", report.Outcomes[1].UnitID)
		}
		if report.Outcomes[4].Units != 2 {
			t.Fatalf("expected the closure file to produce 2 units, got %d", report.Outcomes[4].Units)
		}
		if report.Outcomes[1].Position.StartLine != 2 {
			t.Fatalf("expected retry to be located on line 2, got %v", report.Outcomes[1].Position)
		}
	}
}

func TestLowerAllKeepsUnits(t *testing.T) {
	dir := writeFiles(t, map[string]string{"one.rb": "1 + 2\n"})
	report, err := LowerAll(context.Background(), []string{filepath.Join(dir, "one.rb")}, Options{
		Lowering:  lowering.DefaultOptions(),
		KeepUnits: true,
	})
	if err != nil {
		t.Fatalf("lower all: %v", err)
	}
	out := report.Outcomes[0]
	if out.Unit == nil || out.Instructions != out.Unit.Size() {
		t.Fatalf("expected the unit to be kept, got %#v", out)
	}
	if out.UnitID != out.Unit.UnitID() {
		t.Fatalf("unit id mismatch: got=%s want=%s", out.UnitID, out.Unit.UnitID())
	}

	again, err := LowerAll(context.Background(), []string{filepath.Join(dir, "one.rb")}, Options{Lowering: lowering.DefaultOptions()})
	if err != nil {
		t.Fatalf("lower all: %v", err)
	}
	if again.Outcomes[0].UnitID == out.UnitID {
		t.Fatalf("expected a fresh unit id per lowering, got %s twice", out.UnitID)
	}
}

func TestLowerAllCancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"one.rb": "1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LowerAll(ctx, []string{filepath.Join(dir, "one.rb")}, Options{Lowering: lowering.DefaultOptions()}); err == nil {
		t.Fatalf("expected a cancelled run to fail")
	}
}

func TestReportWrite(t *testing.T) {
	report := &Report{
		Outcomes: []Outcome{
			{Path: "a.rb", Status: StatusCompiled, Units: 1, Instructions: 4, UnitID: "01ARZ3NDEKTSV4RRFFQ69G5FAV"},
			{Path: "b.rb", Status: StatusFailed, Err: os.ErrNotExist},
		},
		Compiled: 1,
		Failed:   1,
	}
	var buf bytes.Buffer
	if err := report.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"compiled", "a.rb", "1 units, 4 instructions, unit 01ARZ3NDEKTSV4RRFFQ69G5FAV", "file does not exist", "2 files: 1 compiled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report, got:\n%s", want, out)
		}
	}
}
