// Package main implements aobscan, a byte-pattern scanner for binary files.
// It compiles hex patterns with wildcard positions and reports every address
// where they occur in the file's mapped segments.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/aobscan/aobscan/scan"
)

const version = "1.0.0"

// CLI defines the command-line interface structure
type CLI struct {
	Pattern    string        `short:"p" name:"pattern" help:"Hex pattern with wildcards (e.g. \"48 8B ?? ?? 89\"; ? matches any nibble, ?? any byte)"`
	Mask       string        `short:"m" name:"mask" help:"Per-byte mask for an escaped byte-string pattern (? = wildcard, x = fixed)"`
	Patterns   string        `name:"patterns" type:"path" help:"YAML file of named patterns to scan in one pass"`
	MaxResults int           `name:"max-results" default:"1000" help:"Hard cap on reported matches"`
	Runs       int           `name:"runs" default:"1" help:"Repeat the scan N times to average timings (results accumulate before truncation)"`
	Format     string        `short:"F" name:"format" enum:"text,json,markdown" default:"text" help:"Output format (text/json/markdown)"`
	Color      string        `name:"color" enum:"auto,always,never" default:"auto" help:"When to use colored output"`
	Timeout    time.Duration `name:"timeout" help:"Cancel the scan after this duration (e.g. 30s)"`
	Verbose    bool          `short:"v" name:"verbose" help:"Enable debug logging and the instrumentation footer"`
	Version    bool          `short:"V" name:"version" help:"Display version information"`
	File       string        `arg:"" optional:"" name:"file" type:"path" help:"Binary file to scan (ELF, PE, Mach-O or raw)"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("aobscan"),
		kong.Description("Scan binary files for byte patterns with wildcards."),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("aobscan %s\n", version)
		os.Exit(0)
	}

	if cli.File == "" {
		fmt.Fprintln(os.Stderr, "aobscan: a file argument is required")
		os.Exit(1)
	}
	if (cli.Pattern == "") == (cli.Patterns == "") {
		fmt.Fprintln(os.Stderr, "aobscan: exactly one of --pattern or --patterns is required")
		os.Exit(1)
	}

	level := zerolog.WarnLevel
	if cli.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	// The engine has no internal deadline; a wall-clock limit is applied
	// here by cancelling the context from the outside.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	if err := run(ctx, &cli, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "aobscan: %s: %v\n", cli.File, err)

		var compileErr *scan.CompileError
		if errors.As(err, &compileErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
