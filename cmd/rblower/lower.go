package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"rblower/compiler-go/pkg/config"
	"rblower/compiler-go/pkg/driver"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/runtime"
	"rblower/compiler-go/pkg/vm"
)

// parseFlags parses a subcommand's flags and reports flag errors as usage
// errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// set collects the names of flags given on the command line.
func set(fs *flag.FlagSet) map[string]bool {
	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}

func (c *cli) compile(path string) (*driver.Outcome, error) {
	opts := c.config.LoweringOptions()
	opts.Logger = c.logger
	opts.Inspector.Logger = c.logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	out, err := driver.LowerFile(ctx, lowering.New(opts), path)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		if out.Status == driver.StatusNotCompilable {
			return nil, fmt.Errorf("%s: not compilable: %s", out.Position, lowering.ReasonOf(out.Err))
		}
		return nil, out.Err
	}
	return &out, nil
}

func (c *cli) lower(args []string) error {
	fs := flag.NewFlagSet("lower", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	conservative := fs.Bool("conservative", false, "give every unit a full frame and scope")
	dump := fs.Bool("dump", false, "log every inspector flag at debug level")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("lower expects one file")
	}
	var overrides config.File
	given := set(fs)
	if given["conservative"] {
		overrides.Inspector.Conservative = conservative
	}
	if given["dump"] {
		overrides.Inspector.Dump = dump
	}
	if err := c.config.Merge(overrides); err != nil {
		return err
	}

	out, err := c.compile(fs.Arg(0))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.stdout, out.Unit.Listing())
	return err
}

func (c *cli) runProgram(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	maxDepth := fs.Int("max-depth", 0, "maximum nested call depth")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("run expects one file")
	}
	if set(fs)["max-depth"] {
		if err := c.config.Merge(config.File{VM: config.VM{MaxCallDepth: maxDepth}}); err != nil {
			return err
		}
		if err := c.config.Validate(); err != nil {
			return usageError("%v", err)
		}
	}

	out, err := c.compile(fs.Arg(0))
	if err != nil {
		return err
	}
	opts := c.config.VMOptions()
	opts.Stdout = c.stdout
	opts.Logger = c.logger
	machine := vm.New(opts)
	result, err := machine.Run(out.Unit)
	if err != nil {
		return err
	}
	if status := machine.ExitStatus(); status != 0 {
		return exitError(status)
	}
	if result == nil {
		return nil
	}
	_, err = fmt.Fprintf(c.stdout, "=> %s\n", runtime.Inspect(result))
	return err
}
