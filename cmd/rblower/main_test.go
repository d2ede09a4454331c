package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"unknown command", []string{"frobnicate"}},
		{"lower without a file", []string{"lower"}},
		{"run with two files", []string{"run", "a.rb", "b.rb"}},
		{"unknown flag", []string{"lower", "-nope", "a.rb"}},
		{"rev without git", []string{"corpus", "-rev", "main", "."}},
		{"corpus without a source", []string{"corpus"}},
		{"zero workers", []string{"corpus", "-j", "0", "."}},
	}
	for _, tc := range cases {
		if code, _, stderr := runCLI(tc.args...); code != 2 {
			t.Fatalf("%s: expected exit 2, got %d (%s)", tc.name, code, stderr)
		}
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI("version")
	if code != 0 || strings.TrimSpace(stdout) != cliToolVersion {
		t.Fatalf("version mismatch: code=%d out=%q", code, stdout)
	}
}

func TestLowerPrintsListing(t *testing.T) {
	path := writeSource(t, t.TempDir(), "sum.rb", "a = 1\nb = 2\na + b\n")
	code, stdout, stderr := runCLI("lower", path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	for _, want := range []string{"unit 0 root", "store_local", "dispatch        +/1"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in listing:\n%s", want, stdout)
		}
	}
}

func TestLowerReportsFailures(t *testing.T) {
	dir := t.TempDir()
	broken := writeSource(t, dir, "broken.rb", "def (\n")
	if code, _, stderr := runCLI("lower", broken); code != 1 || !strings.Contains(stderr, "syntax error") {
		t.Fatalf("expected a syntax error, got %d: %s", code, stderr)
	}
	retry := writeSource(t, dir, "retry.rb", "retry\n")
	if code, _, stderr := runCLI("lower", retry); code != 1 || !strings.Contains(stderr, "not compilable") {
		t.Fatalf("expected a not compilable error, got %d: %s", code, stderr)
	}
	if code, _, _ := runCLI("lower", filepath.Join(dir, "missing.rb")); code != 1 {
		t.Fatalf("expected a missing file to fail with 1, got %d", code)
	}
}

func TestRunExecutesProgram(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "hello.rb", "def twice(x)\n  x * 2\nend\nputs \"hi\"\ntwice(21)\n")
	code, stdout, stderr := runCLI("run", path)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if stdout != "hi\n=> 42\n" {
		t.Fatalf("output mismatch: got=%q", stdout)
	}

	exit := writeSource(t, dir, "exit.rb", "exit 3\n")
	if code, _, _ := runCLI("run", exit); code != 3 {
		t.Fatalf("expected exit status 3, got %d", code)
	}

	raise := writeSource(t, dir, "raise.rb", "raise \"boom\"\n")
	if code, _, stderr := runCLI("run", raise); code != 1 || !strings.Contains(stderr, "boom") {
		t.Fatalf("expected an uncaught exception, got %d: %s", code, stderr)
	}
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "one.rb", "1\n")
	bad := writeSource(t, dir, "bad.yml", "lowering:\n  fast_masgn: true\n")
	if code, _, stderr := runCLI("-config", bad, "lower", src); code != 1 || !strings.Contains(stderr, "config") {
		t.Fatalf("expected a config error, got %d: %s", code, stderr)
	}

	conservative := writeSource(t, dir, "conservative.yml", "inspector:\n  conservative: true\n")
	if code, _, stderr := runCLI("-config", conservative, "lower", src); code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}

	aware := writeSource(t, dir, "aware.rb", "block_given?\n")
	code, _, stderr := runCLI("-v", "lower", "-dump", aware)
	if code != 0 || !strings.Contains(stderr, "inspector flag") {
		t.Fatalf("expected -dump to log inspector flags, got %d: %s", code, stderr)
	}
	if _, _, quiet := runCLI("lower", "-dump", aware); strings.Contains(quiet, "inspector flag") {
		t.Fatalf("expected debug entries to stay hidden without -v: %s", quiet)
	}
}

func TestCorpusDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "lib/a.rb", "def a\n  1\nend\n")
	writeSource(t, dir, "lib/b.rb", "retry\n")
	writeSource(t, dir, "vendor/c.rb", "1\n")
	writeSource(t, dir, "README.md", "# corpus\n")
	code, stdout, stderr := runCLI("corpus", "-j", "2", dir)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 files: 1 compiled, 1 not compilable, 0 parse errors, 0 failed") {
		t.Fatalf("summary mismatch:\n%s", stdout)
	}
	if strings.Contains(stdout, "c.rb") {
		t.Fatalf("expected vendor to be excluded:\n%s", stdout)
	}
}

func TestRepoName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/rails/rails.git": "rails",
		"git@github.com:ruby/rake.git":       "rake",
		"/srv/repos/local/":                  "local",
		"":                                   "repo",
	}
	for url, want := range cases {
		if got := repoName(url); got != want {
			t.Fatalf("repoName(%q) mismatch: got=%q want=%q", url, got, want)
		}
	}
	if got := sanitizePathSegment("rake@v13.0/x"); got != "rake@v13.0_x" {
		t.Fatalf("sanitize mismatch: got=%q", got)
	}
}
