// Package main
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teocci/go-mp4clip/config"
	"github.com/teocci/go-mp4clip/format/mp4/clip"
	"github.com/teocci/go-mp4clip/utils/logger"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := clip.Options{TimeScale: cfg.TimeScale}
	var thumb bool

	cmd := &cobra.Command{
		Use:           "mp4extractclip --start <t> --end <t> [options] <input> <output>",
		Short:         "Extract a clip or a thumbnail frame from an MP4 file.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if thumb {
				opts.NoAudio = true
				opts.NoMeta = true
				opts.NoUUID = false
				opts.Thumbnail = true
			}
			opts.Logger = logger.L()
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&opts.Start, "start", 0, "clip start, in timescale units")
	flags.Uint64Var(&opts.End, "end", 0, "clip end, in timescale units; below start selects one frame")
	flags.Uint64Var(&opts.Duration, "duration", 0, "clip duration, used when --end is not set")
	flags.Uint32Var(&opts.TimeScale, "timescale", opts.TimeScale, "units per second of --start, --end and --duration")
	flags.BoolVar(&opts.NoAudio, "noaudio", false, "drop the audio tracks")
	flags.BoolVar(&opts.NoMeta, "nometa", false, "do not copy the movie metadata")
	flags.BoolVar(&opts.NoUUID, "nouuid", false, "do not copy the uuid (XMP) atom")
	flags.BoolVar(&thumb, "thumb", false, "extract the video sync frame at --start only")
	return cmd
}

func run(ctx context.Context, stdout io.Writer, input, output string, opts clip.Options) (err error) {
	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("cannot open input (%s): %w", input, err)
	}
	defer in.Close()

	// rejected inputs must not leave an output file behind
	c, err := clip.Prepare(in, opts)
	if err != nil {
		return err
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("cannot create/open output (%s): %w", output, err)
	}
	if err = c.WriteTo(ctx, out); err != nil {
		out.Close()
		os.Remove(output)
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	logger.Info("clip written",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("tracks", len(c.File.Movie.Tracks)),
	)
	_, err = fmt.Fprintln(stdout, c.Summary)
	return
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
