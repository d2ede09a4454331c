package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"rblower/compiler-go/pkg/inspector"
	"rblower/compiler-go/pkg/lowering"
)

func TestDefaultsMatchEngineDefaults(t *testing.T) {
	file := Defaults()
	got := file.LoweringOptions()
	want := lowering.DefaultOptions()
	if got.MaxSpecificArity != want.MaxSpecificArity ||
		got.FastMultipleAssignment != want.FastMultipleAssignment ||
		got.FastMasgnMinArity != want.FastMasgnMinArity ||
		got.FastMasgnMaxArity != want.FastMasgnMaxArity ||
		got.FastMasgnNestedTargets != want.FastMasgnNestedTargets {
		t.Fatalf("lowering options mismatch: got=%#v want=%#v", got, want)
	}
	if !reflect.DeepEqual(got.Inspector.FrameAwareMethods, inspector.DefaultFrameAwareMethods) {
		t.Fatalf("frame-aware methods mismatch: got=%v", got.Inspector.FrameAwareMethods)
	}
	if depth := file.VMOptions().MaxCallDepth; depth != 512 {
		t.Fatalf("expected call depth 512, got %d", depth)
	}
	if err := file.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	file, err := Load(filepath.Join("testdata", "override.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := file.LoweringOptions()
	if opts.MaxSpecificArity != 5 || opts.FastMasgnMinArity != 3 || opts.FastMasgnMaxArity != 6 {
		t.Fatalf("lowering overrides mismatch: got=%#v", opts)
	}
	// keys absent from the file keep their defaults
	if !opts.FastMultipleAssignment || opts.FastMasgnNestedTargets {
		t.Fatalf("expected untouched fast-path flags, got=%#v", opts)
	}
	if !opts.Inspector.Dump || opts.Inspector.Conservative {
		t.Fatalf("inspector overrides mismatch: got=%#v", opts.Inspector)
	}
	if want := []string{"block_given?", "binding"}; !reflect.DeepEqual(opts.Inspector.FrameAwareMethods, want) {
		t.Fatalf("frame-aware methods mismatch: got=%v want=%v", opts.Inspector.FrameAwareMethods, want)
	}
	if !reflect.DeepEqual(opts.Inspector.ScopeAwareMethods, inspector.DefaultScopeAwareMethods) {
		t.Fatalf("scope-aware methods should keep defaults, got=%v", opts.Inspector.ScopeAwareMethods)
	}
	if depth := file.VMOptions().MaxCallDepth; depth != 64 {
		t.Fatalf("expected call depth 64, got %d", depth)
	}
	if file.Concurrency() != 8 {
		t.Fatalf("expected concurrency 8, got %d", file.Concurrency())
	}
	if !filepath.IsAbs(file.Path) {
		t.Fatalf("expected an absolute path, got %q", file.Path)
	}
}

func TestExplicitZeroValuesSurvive(t *testing.T) {
	file, err := Load(filepath.Join("testdata", "explicit_false.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := file.LoweringOptions()
	if opts.FastMultipleAssignment {
		t.Fatalf("expected enabled: false to override the default")
	}
	if opts.MaxSpecificArity != 0 {
		t.Fatalf("expected max_specific_arity 0, got %d", opts.MaxSpecificArity)
	}
	if opts.FastMasgnMinArity != 2 {
		t.Fatalf("expected default min arity, got %d", opts.FastMasgnMinArity)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		file string
		want string
	}{
		{"unknown_key.yml", "fast_masgn"},
		{"invalid.yml", "max_call_depth"},
		{"invalid.yml", "exceeds max_arity"},
		{"missing.yml", "no such file"},
	}
	for _, tc := range cases {
		_, err := Load(filepath.Join("testdata", tc.file))
		if err == nil {
			t.Fatalf("%s: expected an error", tc.file)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.file, tc.want, err)
		}
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	file, err := Load(filepath.Join("testdata", "empty.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := file.LoweringOptions().MaxSpecificArity; got != 3 {
		t.Fatalf("expected the default arity, got %d", got)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	file, err := LoadOptional("", dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if file.Path != "" || file.Concurrency() != 4 {
		t.Fatalf("expected bare defaults, got path=%q concurrency=%d", file.Path, file.Concurrency())
	}

	body := "corpus:\n  concurrency: 2\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	file, err = LoadOptional("", dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if file.Concurrency() != 2 {
		t.Fatalf("expected the discovered file to apply, got %d", file.Concurrency())
	}
}

func TestMergeLayersOverrides(t *testing.T) {
	file := Defaults()
	off := false
	depth := 9
	if err := file.Merge(File{
		Lowering: Lowering{FastMultipleAssignment: FastMultipleAssignment{Enabled: &off}},
		VM:       VM{MaxCallDepth: &depth},
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if file.LoweringOptions().FastMultipleAssignment {
		t.Fatalf("expected the override to disable the fast path")
	}
	if file.VMOptions().MaxCallDepth != 9 {
		t.Fatalf("expected depth 9, got %d", file.VMOptions().MaxCallDepth)
	}
	if file.LoweringOptions().MaxSpecificArity != 3 {
		t.Fatalf("expected untouched keys to keep defaults")
	}
}

func TestSelects(t *testing.T) {
	file := Defaults()
	cases := map[string]bool{
		"lib/a.rb":          true,
		"lib/A.RB":          true,
		"lib/a.py":          false,
		"vendor/gems/x.rb":  false,
		"app/.git/hooks.rb": false,
		"vendored/x.rb":     true,
	}
	for path, want := range cases {
		if got := file.Selects(path); got != want {
			t.Fatalf("selects %s: got=%t want=%t", path, got, want)
		}
	}
}
