// Command exportgraph loads the rule registry, writes it as a workflow graph
// and proves the graph selects the same rule as the engine on generated
// samples. It exits non-zero on any registry or equivalence error.
package main

import (
	"bytes"
	"flag"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/logger"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
	"github.com/pesio-ai/be-payroll-review/internal/workflow"
)

// Fixed seeds keep the equivalence check reproducible between builds.
var defaultSeeds = []uint64{1, 7, 42, 2026}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("exportgraph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		rulesPath string
		outPath   string
		name      string
		samples   int
		level     string
	)
	fs.StringVar(&rulesPath, "rules", "config/rules.yaml", "rule registry YAML file")
	fs.StringVar(&outPath, "out", "", "output file (default stdout)")
	fs.StringVar(&name, "name", workflow.DefaultName, "graph name")
	fs.IntVar(&samples, "samples", 250, "generated samples per seed for the equivalence check")
	fs.StringVar(&level, "log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logger.New(logger.Config{
		Level:       level,
		Environment: "build",
		ServiceName: "exportgraph",
		Version:     "dev",
		Output:      stderr,
	})

	set, err := rules.LoadRegistryFile(rulesPath)
	if err != nil {
		log.Error().Err(err).Str("path", rulesPath).Msg("Failed to load rule registry")
		return 1
	}

	g, err := workflow.Export(name, set)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export workflow")
		return 1
	}

	total := 0
	for _, seed := range defaultSeeds {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		batch := workflow.RandomSamples(rng, set, samples)
		if err := workflow.Verify(g, set, batch); err != nil {
			ev := log.Error().Err(err).Uint64("seed", seed)
			if errors.HasCode(err, errors.ErrCodeExportEquivalence) {
				ev = ev.Str("code", string(errors.ErrCodeExportEquivalence))
			}
			ev.Msg("Exported graph is not equivalent to the rule engine")
			return 1
		}
		total += len(batch)
	}

	var buf bytes.Buffer
	if err := g.WriteJSON(&buf); err != nil {
		log.Error().Err(err).Msg("Failed to encode graph")
		return 1
	}
	if outPath == "" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			log.Error().Err(err).Msg("Failed to write graph")
			return 1
		}
	} else if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		log.Error().Err(err).Str("path", outPath).Msg("Failed to write graph")
		return 1
	}

	log.Info().
		Str("name", g.Name).
		Int("rules", set.Len()).
		Int("nodes", len(g.Nodes)).
		Int("edges", len(g.Edges)).
		Int("samples", total).
		Msg("Workflow graph exported and verified")
	return 0
}
