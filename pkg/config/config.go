// Package config loads rblower.yml, the optional settings file for the
// lowering engine, the capability inspector, the simulated backend and
// corpus runs.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"rblower/compiler-go/pkg/inspector"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/vm"
)

// DefaultFileName is looked up in the working directory when no -config
// flag is given.
const DefaultFileName = "rblower.yml"

// File mirrors the YAML layout. Scalars are pointers so that a value set
// explicitly to its zero (false, 0) still overrides a default.
type File struct {
	Path string `yaml:"-"`

	Lowering  Lowering  `yaml:"lowering"`
	Inspector Inspector `yaml:"inspector"`
	VM        VM        `yaml:"vm"`
	Corpus    Corpus    `yaml:"corpus"`
}

type Lowering struct {
	MaxSpecificArity       *int                   `yaml:"max_specific_arity"`
	FastMultipleAssignment FastMultipleAssignment `yaml:"fast_multiple_assignment"`
}

type FastMultipleAssignment struct {
	Enabled       *bool `yaml:"enabled"`
	MinArity      *int  `yaml:"min_arity"`
	MaxArity      *int  `yaml:"max_arity"`
	NestedTargets *bool `yaml:"nested_targets"`
}

type Inspector struct {
	Conservative      *bool    `yaml:"conservative"`
	Dump              *bool    `yaml:"dump"`
	FrameAwareMethods []string `yaml:"frame_aware_methods"`
	ScopeAwareMethods []string `yaml:"scope_aware_methods"`
}

type VM struct {
	MaxCallDepth *int `yaml:"max_call_depth"`
}

// Corpus drives `rblower corpus`.
type Corpus struct {
	Concurrency *int     `yaml:"concurrency"`
	Extensions  []string `yaml:"extensions"`
	Exclude     []string `yaml:"exclude"`
}

// Defaults returns a fully populated File.
func Defaults() File {
	return File{
		Lowering: Lowering{
			MaxSpecificArity: intPtr(3),
			FastMultipleAssignment: FastMultipleAssignment{
				Enabled:       boolPtr(true),
				MinArity:      intPtr(2),
				MaxArity:      intPtr(10),
				NestedTargets: boolPtr(false),
			},
		},
		Inspector: Inspector{
			Conservative:      boolPtr(false),
			Dump:              boolPtr(false),
			FrameAwareMethods: append([]string(nil), inspector.DefaultFrameAwareMethods...),
			ScopeAwareMethods: append([]string(nil), inspector.DefaultScopeAwareMethods...),
		},
		VM: VM{MaxCallDepth: intPtr(512)},
		Corpus: Corpus{
			Concurrency: intPtr(4),
			Extensions:  []string{".rb"},
			Exclude:     []string{"vendor", ".git"},
		},
	}
}

// Load reads path and layers it over Defaults.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	loaded, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}
	out := Defaults()
	if err := out.Merge(*loaded); err != nil {
		return nil, err
	}
	out.Path = abs
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", abs, err)
	}
	return &out, nil
}

// LoadOptional loads path when given. With an empty path it tries
// DefaultFileName in dir and falls back to Defaults when that is absent.
func LoadOptional(path, dir string) (*File, error) {
	if path != "" {
		return Load(path)
	}
	candidate := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(candidate); err == nil {
		return Load(candidate)
	}
	out := Defaults()
	return &out, nil
}

// Decode parses one YAML document without applying defaults. Unknown keys
// are rejected.
func Decode(r io.Reader) (*File, error) {
	var raw File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	return &raw, nil
}

// Merge layers every field set in src over f.
func (f *File) Merge(src File) error {
	if err := mergo.Merge(f, src, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return fmt.Errorf("config: merge: %w", err)
	}
	return nil
}

func (f *File) Validate() error {
	var problems []string
	if n := derefInt(f.Lowering.MaxSpecificArity); n < 0 {
		problems = append(problems, fmt.Sprintf("lowering.max_specific_arity must be >= 0 (got %d)", n))
	}
	fm := f.Lowering.FastMultipleAssignment
	if lo, hi := derefInt(fm.MinArity), derefInt(fm.MaxArity); lo > hi {
		problems = append(problems, fmt.Sprintf("lowering.fast_multiple_assignment.min_arity %d exceeds max_arity %d", lo, hi))
	}
	if n := derefInt(f.VM.MaxCallDepth); n <= 0 {
		problems = append(problems, fmt.Sprintf("vm.max_call_depth must be positive (got %d)", n))
	}
	if n := derefInt(f.Corpus.Concurrency); n <= 0 {
		problems = append(problems, fmt.Sprintf("corpus.concurrency must be positive (got %d)", n))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// LoweringOptions converts the lowering and inspector sections.
func (f *File) LoweringOptions() lowering.Options {
	opts := lowering.DefaultOptions()
	if f.Lowering.MaxSpecificArity != nil {
		opts.MaxSpecificArity = *f.Lowering.MaxSpecificArity
	}
	fm := f.Lowering.FastMultipleAssignment
	if fm.Enabled != nil {
		opts.FastMultipleAssignment = *fm.Enabled
	}
	if fm.MinArity != nil {
		opts.FastMasgnMinArity = *fm.MinArity
	}
	if fm.MaxArity != nil {
		opts.FastMasgnMaxArity = *fm.MaxArity
	}
	if fm.NestedTargets != nil {
		opts.FastMasgnNestedTargets = *fm.NestedTargets
	}
	opts.Inspector = f.InspectorConfig()
	return opts
}

func (f *File) InspectorConfig() inspector.Config {
	cfg := inspector.DefaultConfig()
	if f.Inspector.Conservative != nil {
		cfg.Conservative = *f.Inspector.Conservative
	}
	if f.Inspector.Dump != nil {
		cfg.Dump = *f.Inspector.Dump
	}
	if f.Inspector.FrameAwareMethods != nil {
		cfg.FrameAwareMethods = append([]string(nil), f.Inspector.FrameAwareMethods...)
	}
	if f.Inspector.ScopeAwareMethods != nil {
		cfg.ScopeAwareMethods = append([]string(nil), f.Inspector.ScopeAwareMethods...)
	}
	return cfg
}

func (f *File) VMOptions() vm.Options {
	opts := vm.DefaultOptions()
	if f.VM.MaxCallDepth != nil {
		opts.MaxCallDepth = *f.VM.MaxCallDepth
	}
	return opts
}

// Concurrency is the corpus worker count, at least one.
func (f *File) Concurrency() int {
	if n := derefInt(f.Corpus.Concurrency); n > 0 {
		return n
	}
	return 1
}

// Selects reports whether path belongs in a corpus run: its extension is
// listed and no path segment is excluded.
func (f *File) Selects(path string) bool {
	ext := filepath.Ext(path)
	matched := false
	for _, want := range f.Corpus.Extensions {
		if strings.EqualFold(ext, want) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		for _, skip := range f.Corpus.Exclude {
			if segment == skip {
				return false
			}
		}
	}
	return true
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
