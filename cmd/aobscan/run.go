package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/aobscan/aobscan/internal/patfile"
	"github.com/aobscan/aobscan/internal/report"
	"github.com/aobscan/aobscan/scan"
	"github.com/aobscan/aobscan/view"
)

// namedScan pairs a display name with a prepared session.
type namedScan struct {
	name string
	sess *scan.Session
}

// run opens the target file and executes every requested scan against it,
// rendering each outcome to w.
func run(ctx context.Context, cli *CLI, w io.Writer, log zerolog.Logger) error {
	v, err := view.OpenFile(cli.File)
	if err != nil {
		return err
	}
	defer func() { _ = v.Close() }()

	log.Debug().
		Stringer("format", v.Format()).
		Int("segments", len(v.Segments())).
		Msg("opened binary view")

	cfg := scan.Config{MaxResults: cli.MaxResults, Runs: cli.Runs}

	scans, err := buildScans(cli, v, cfg, log)
	if err != nil {
		return err
	}

	opts := report.Options{
		Format:  cli.Format,
		Color:   report.ColorMode(cli.Color),
		Verbose: cli.Verbose,
		Source:  cli.File,
	}

	for _, s := range scans {
		out, err := s.sess.Run(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}

		if len(scans) > 1 {
			if err := printHeader(w, s.name, cli.Format); err != nil {
				return err
			}
		}
		if err := report.Render(w, out, opts); err != nil {
			return err
		}
	}
	return nil
}

// buildScans prepares one session per requested pattern, compiling everything
// before the first byte is scanned.
func buildScans(cli *CLI, v view.View, cfg scan.Config, log zerolog.Logger) ([]namedScan, error) {
	if cli.Patterns != "" {
		entries, err := patfile.Load(cli.Patterns)
		if err != nil {
			return nil, err
		}
		scans := make([]namedScan, len(entries))
		for i, e := range entries {
			scans[i] = namedScan{
				name: e.Name,
				sess: scan.NewCompiledSession(v, e.Compiled, cfg).WithLogger(log),
			}
		}
		return scans, nil
	}

	sess, err := scan.NewSession(v, cli.Pattern, cli.Mask, cfg)
	if err != nil {
		return nil, err
	}
	return []namedScan{{name: cli.Pattern, sess: sess.WithLogger(log)}}, nil
}

func printHeader(w io.Writer, name, format string) error {
	switch format {
	case "markdown":
		_, err := fmt.Fprintf(w, "## %s\n\n", name)
		return err
	case "json":
		// JSON documents are already self-describing via "pattern".
		return nil
	default:
		_, err := fmt.Fprintf(w, "== %s ==\n", name)
		return err
	}
}
