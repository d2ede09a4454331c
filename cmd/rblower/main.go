package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"rblower/compiler-go/pkg/config"
)

const cliToolVersion = "rblower 0.0.0-dev"

// errUsage marks argument errors, which exit with status 2.
var errUsage = errors.New("usage")

type cli struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	config *config.File
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	globals := flag.NewFlagSet("rblower", flag.ContinueOnError)
	globals.SetOutput(stderr)
	configPath := globals.String("config", "", "path to an rblower.yml (default: ./"+config.DefaultFileName+" when present)")
	verbose := globals.Bool("v", false, "log at debug level")
	globals.Usage = func() { printUsage(stderr) }
	if err := globals.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	remaining := globals.Args()
	if len(remaining) == 0 {
		printUsage(stderr)
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	c := &cli{
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	}

	var err error
	switch remaining[0] {
	case "--help", "-h", "help":
		printUsage(stdout)
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(stdout, cliToolVersion)
		return 0
	case "lower", "run", "corpus":
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			fmt.Fprintln(stderr, cwdErr)
			return 1
		}
		if c.config, err = config.LoadOptional(*configPath, cwd); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		switch remaining[0] {
		case "lower":
			err = c.lower(remaining[1:])
		case "run":
			err = c.runProgram(remaining[1:])
		default:
			err = c.corpus(remaining[1:])
		}
	default:
		fmt.Fprintf(stderr, "rblower: unknown command %q\n", remaining[0])
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		var exit exitError
		if errors.As(err, &exit) {
			return int(exit)
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
}

// exitError carries a program's exit status out of run.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}
