package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/parser"
)

// Status classifies what happened to one file.
type Status int

const (
	StatusCompiled Status = iota
	StatusNotCompilable
	StatusParseError
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompiled:
		return "compiled"
	case StatusNotCompilable:
		return "not-compilable"
	case StatusParseError:
		return "parse-error"
	default:
		return "failed"
	}
}

// Options configures a batch run.
type Options struct {
	Lowering    lowering.Options
	Concurrency int
	Logger      *slog.Logger
	// KeepUnits retains each compiled unit tree on its Outcome.
	KeepUnits bool
}

// Outcome is the result of lowering one file.
type Outcome struct {
	Path         string
	Status       Status
	Units        int
	Instructions int
	Err          error
	// Position locates Err when the parser or the lowering could place it.
	Position ast.Position
	// UnitID identifies the compiled root unit; it is fresh on every
	// lowering, so two runs over the same file never share one.
	UnitID string
	Unit   *emit.Unit
}

// Report collects per-file outcomes in input order.
type Report struct {
	Outcomes      []Outcome
	Compiled      int
	NotCompilable int
	ParseErrors   int
	Failed        int
}

// LowerAll parses and lowers every file with at most opts.Concurrency files
// in flight. Per-file problems land on the Outcome; the returned error is
// reserved for cancellation and setup failures.
func LowerAll(ctx context.Context, files []string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	if opts.Lowering.Logger == nil {
		opts.Lowering.Logger = logger
	}
	compiler := lowering.New(opts.Lowering)

	outcomes := make([]Outcome, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := parser.New()
			if err != nil {
				return fmt.Errorf("driver: %w", err)
			}
			defer p.Close()
			out := lowerFile(ctx, p, compiler, path)
			if !opts.KeepUnits {
				out.Unit = nil
			}
			outcomes[i] = out
			logger.Debug("lowered file", "path", path, "status", out.Status, "unit", out.UnitID,
				"units", out.Units, "instructions", out.Instructions)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Outcomes: outcomes}
	for _, out := range outcomes {
		switch out.Status {
		case StatusCompiled:
			report.Compiled++
		case StatusNotCompilable:
			report.NotCompilable++
		case StatusParseError:
			report.ParseErrors++
		default:
			report.Failed++
		}
	}
	logger.Info("corpus lowered", "files", len(files), "compiled", report.Compiled,
		"not_compilable", report.NotCompilable, "parse_errors", report.ParseErrors, "failed", report.Failed)
	return report, nil
}

// LowerFile parses and lowers a single file.
func LowerFile(ctx context.Context, compiler *lowering.Compiler, path string) (Outcome, error) {
	p, err := parser.New()
	if err != nil {
		return Outcome{}, fmt.Errorf("driver: %w", err)
	}
	defer p.Close()
	return lowerFile(ctx, p, compiler, path), nil
}

func lowerFile(ctx context.Context, p *parser.Parser, compiler *lowering.Compiler, path string) Outcome {
	out := Outcome{Path: path}
	src, err := os.ReadFile(path)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("driver: read %s: %w", path, err)
		return out
	}
	root, err := p.ParseContext(ctx, path, src)
	if err != nil {
		out.Status = StatusParseError
		out.Err = err
		if loc, ok := parser.LocationOf(err); ok {
			out.Position = ast.Position{File: path, StartLine: loc.Line, EndLine: loc.EndLine}
		}
		return out
	}
	unit, err := compiler.Compile(root)
	if err != nil {
		out.Err = err
		out.Status = StatusFailed
		if lowering.IsNotCompilable(err) {
			out.Status = StatusNotCompilable
			out.Position, _ = lowering.PositionOf(err)
		}
		return out
	}
	out.Status = StatusCompiled
	out.Unit = unit
	out.UnitID = unit.UnitID()
	out.Units = unit.Count()
	out.Instructions = unit.Size()
	return out
}

// Collect walks dir and returns the selected files in lexical order.
// selects sees paths relative to dir.
func Collect(dir string, selects func(path string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || !selects(rel) {
			return err
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("driver: walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
