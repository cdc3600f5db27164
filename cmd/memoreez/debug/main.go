package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"
	"github.com/spf13/pflag"

	"github.com/astromechza/memoreez/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	pflag.Parse()
	if pflag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the dumped board to read")
	}
	f, err := os.Open(pflag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(buff)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}

	generation, _ := automerge.As[string](doc.Path("generation").Get())
	cells, _ := automerge.As[[]string](doc.Path("cells").Get())
	slog.Info("loaded board", "generation", generation, "cells", cells)
	slog.Info("loaded heads", "heads", doc.Heads())

	steps, err := viz.History(doc)
	if err != nil {
		return err
	}
	slog.Info("changes:")
	for i, step := range steps {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", step.Hash, "actor", step.Actor, "message", step.Message, "dep", step.Dependencies)
	}

	return viz.WriteDot(os.Stdout, steps)
}
