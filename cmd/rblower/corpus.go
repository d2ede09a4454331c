package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"rblower/compiler-go/pkg/config"
	"rblower/compiler-go/pkg/driver"
)

func (c *cli) corpus(args []string) error {
	fs := flag.NewFlagSet("corpus", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	url := fs.String("git", "", "clone this repository instead of reading a local directory")
	rev := fs.String("rev", "", "revision to check out (default HEAD)")
	cache := fs.String("cache", "", "checkout cache directory (default: user cache dir)")
	jobs := fs.Int("j", 0, "files lowered concurrently")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if set(fs)["j"] {
		if err := c.config.Merge(config.File{Corpus: config.Corpus{Concurrency: jobs}}); err != nil {
			return err
		}
		if err := c.config.Validate(); err != nil {
			return usageError("%v", err)
		}
	}

	var dir string
	switch {
	case *url != "" && fs.NArg() == 0:
		base := *cache
		if base == "" {
			userCache, err := os.UserCacheDir()
			if err != nil {
				return err
			}
			base = filepath.Join(userCache, "rblower", "corpus")
		}
		checkout, commit, err := ensureCheckout(base, *url, *rev)
		if err != nil {
			return err
		}
		c.logger.Info("corpus checked out", "url", *url, "commit", commit, "dir", checkout)
		dir = checkout
	case *url == "" && fs.NArg() == 1:
		if *rev != "" {
			return usageError("-rev requires -git")
		}
		dir = fs.Arg(0)
	default:
		return usageError("corpus expects a directory or -git URL")
	}

	files, err := driver.Collect(dir, c.config.Selects)
	if err != nil {
		return err
	}
	opts := c.config.LoweringOptions()
	opts.Logger = c.logger
	opts.Inspector.Logger = c.logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := driver.LowerAll(ctx, files, driver.Options{
		Lowering:    opts,
		Concurrency: c.config.Concurrency(),
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	return report.Write(c.stdout)
}

// ensureCheckout clones url under baseDir and checks out rev. A checkout
// already present for the resolved commit is reused.
func ensureCheckout(baseDir, url, rev string) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", err
	}
	revision := plumbing.Revision("HEAD")
	if rev = strings.TrimSpace(rev); rev != "" {
		revision = plumbing.Revision(rev)
		existing := filepath.Join(baseDir, sanitizePathSegment(repoName(url)+"@"+rev))
		if _, err := os.Stat(existing); err == nil {
			return existing, rev, nil
		}
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", "", err
	}

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: url})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git clone %s: %w", url, err)
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	pinned := rev
	if pinned == "" {
		pinned = hash.String()
	}
	targetDir := filepath.Join(baseDir, sanitizePathSegment(repoName(url)+"@"+pinned))
	if _, err := os.Stat(targetDir); err == nil {
		_ = os.RemoveAll(tmpDir)
		return targetDir, hash.String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git checkout %s: %w", revision, err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	return targetDir, hash.String(), nil
}

func repoName(url string) string {
	name := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "repo"
	}
	return name
}

func sanitizePathSegment(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
