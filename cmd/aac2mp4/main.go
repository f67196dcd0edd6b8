// Package main
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teocci/go-mp4clip/config"
	"github.com/teocci/go-mp4clip/format/mp4"
	"github.com/teocci/go-mp4clip/utils/logger"
)

type muxOptions struct {
	sentinel   bool
	readBuffer int
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := muxOptions{
		sentinel:   cfg.AACSentinel,
		readBuffer: cfg.ReadBuffer,
	}

	cmd := &cobra.Command{
		Use:           "aac2mp4 <input> <output>",
		Short:         "Wrap an ADTS AAC stream into an M4A file.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], args[1], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.sentinel, "sentinel", opts.sentinel, "write an 8-byte marker after every frame payload")
	cmd.Flags().IntVar(&opts.readBuffer, "read-buffer", opts.readBuffer, "maximum bytes fed to the frame scanner per read")
	return cmd
}

func run(ctx context.Context, input, output string, opts muxOptions) (err error) {
	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("cannot open input (%s): %w", input, err)
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("cannot create/open output (%s): %w", output, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	res, err := mp4.MuxAAC(ctx, in, out,
		mp4.WithLogger(logger.L()),
		mp4.WithSentinel(opts.sentinel),
		mp4.WithReadBuffer(opts.readBuffer),
	)
	if err != nil {
		return err
	}
	logger.Info("done",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("frames", res.Frames),
	)
	return nil
}

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: logger: %v\n", err)
		os.Exit(1)
	}

	err := newRootCmd(cfg).ExecuteContext(context.Background())
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
