package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/xyproto/env/v2"

	"wordcc/pkg/asm"
	"wordcc/pkg/compiler"
	"wordcc/pkg/cpu"
	"wordcc/pkg/watch"
)

type config struct {
	input    string
	output   string
	run      bool
	maxSteps int
	opts     compiler.Options
}

func main() {
	defaults := compiler.OptionsFromEnv()

	var cfg config
	flag.StringVar(&cfg.opts.Entry, "entry", defaults.Entry, "function called by the start-up prelude (WORDCC_ENTRY)")
	flag.BoolVar(&cfg.opts.Trace, "trace", defaults.Trace, "log scope and stack events to stderr (WORDCC_TRACE)")
	flag.StringVar(&cfg.output, "o", "", "write the program to this file instead of stdout")
	flag.BoolVar(&cfg.run, "run", false, "execute the program on the emulator and print ax")
	flag.IntVar(&cfg.maxSteps, "max-steps", env.Int("WORDCC_MAX_STEPS", cpu.DefaultMaxSteps), "emulator step limit (WORDCC_MAX_STEPS)")
	watchInput := flag.Bool("watch", false, "recompile whenever the input file is written")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] unit.json\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("ccompiler: ")

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cfg.input = flag.Arg(0)

	if !*watchInput {
		if err := compile(cfg, os.Stdout); err != nil {
			log.Print(err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := watchAndCompile(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

// compile runs the whole pipeline once for cfg.input.
func compile(cfg config, stdout io.Writer) error {
	var data []byte
	var err error
	if cfg.input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(cfg.input)
	}
	if err != nil {
		return err
	}

	unit, err := compiler.Decode(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	code, err := compiler.Generate(unit, cfg.opts)
	if err != nil {
		return fmt.Errorf("codegen: %w", err)
	}

	if cfg.output != "" {
		if err := os.WriteFile(cfg.output, []byte(code), 0o644); err != nil {
			return err
		}
	} else if !cfg.run {
		fmt.Fprint(stdout, code)
	}

	if !cfg.run {
		return nil
	}
	c, err := cpu.LoadText(code)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := c.Run(cfg.maxSteps); err != nil {
		return fmt.Errorf("run after %d steps: %w", c.Steps, err)
	}
	ax := c.Reg(asm.AX)
	fmt.Fprintf(stdout, "ax = %d (0x%04X), %d steps\n", int16(ax), ax, c.Steps)
	return nil
}

func watchAndCompile(ctx context.Context, cfg config) error {
	if cfg.input == "-" {
		return errors.New("cannot watch stdin")
	}
	rebuild := func(string) {
		if err := compile(cfg, os.Stdout); err != nil {
			log.Print(err)
			return
		}
		log.Printf("compiled %s", cfg.input)
	}

	w, err := watch.New(rebuild, 0)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(cfg.input); err != nil {
		return err
	}

	rebuild(cfg.input)
	log.Printf("watching %s", cfg.input)
	return w.Run(ctx)
}
