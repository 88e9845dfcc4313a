package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/binzume/modelio/internal/config"
	"github.com/binzume/modelio/internal/logger"
	"go.uber.org/zap"
)

var (
	flagOutput = flag.String("o", "", "output file (single input) or directory (batch)")
	flagInfo   = flag.Bool("info", false, "print a scene summary instead of converting")
	flagWatch  = flag.Bool("watch", false, "re-convert inputs when they change")
	flagAnim   = flag.String("anim", "", "motion file whose animations are added to every scene (.vmd, .glb, .fbx)")
	flagScale  = flag.Float64("scale", 1, "uniform scale applied to the root node")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input [input...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	config.ParseFlags()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		logger.Log.Error("modelconv failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, inputs []string) error {
	c, err := newConverter(cfg, logger.Log)
	if err != nil {
		return err
	}
	c.scale = float32(*flagScale)
	if *flagAnim != "" {
		if err := c.loadMotion(*flagAnim); err != nil {
			return err
		}
	}

	if *flagInfo {
		for _, in := range inputs {
			if err := c.info(os.Stdout, in); err != nil {
				return err
			}
		}
		return nil
	}

	jobs, err := c.plan(inputs, *flagOutput)
	if err != nil {
		return err
	}
	if err := c.convertAll(ctx, jobs); err != nil && !*flagWatch {
		return err
	}
	if *flagWatch {
		return c.watch(ctx, jobs)
	}
	return nil
}
