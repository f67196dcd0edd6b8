// Package main
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package main

import (
	"fmt"
	"io"
	"os"

	gomp4 "github.com/abema/go-mp4"
	"github.com/spf13/cobra"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/config"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/logger"
)

type probeOptions struct {
	atoms   bool
	samples bool
}

func newRootCmd() *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:           "mp4probe <file>",
		Short:         "Print the tracks of an MP4 file or the frames of an ADTS stream.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.atoms, "atoms", false, "also dump the decoded atom tree")
	cmd.Flags().BoolVar(&opts.samples, "samples", false, "also list every sample in decode order")
	return cmd
}

func codecType(c gomp4.Codec) av.CodecType {
	switch c {
	case gomp4.CodecAVC1:
		return av.H264
	case gomp4.CodecMP4A:
		return av.AAC
	}
	return 0
}

func run(w io.Writer, path string, opts probeOptions) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open input (%s): %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 2)
	if _, err = io.ReadFull(f, head); err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if head[0] == 0xff && head[1]&0xf0 == 0xf0 {
		return probeADTS(w, f, opts)
	}
	return probeMP4(w, f, opts)
}

func probeMP4(w io.Writer, f io.ReadSeeker, opts probeOptions) (err error) {
	info, err := gomp4.Probe(f)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	fmt.Fprintf(w, "brand: %s minor: %d faststart: %v\n", string(info.MajorBrand[:]), info.MinorVersion, info.FastStart)
	fmt.Fprintf(w, "timescale: %d duration: %d\n", info.Timescale, info.Duration)
	for _, t := range info.Tracks {
		ct := codecType(t.Codec)
		name := ct.String()
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(w, "track %d: codec %s timescale %d duration %d samples %d chunks %d",
			t.TrackID, name, t.Timescale, t.Duration, len(t.Samples), len(t.Chunks))
		if ct.IsAudio() && t.MP4A != nil {
			fmt.Fprintf(w, " oti 0x%02x aot %d layout %s", t.MP4A.OTI, t.MP4A.AudOTI,
				av.ChannelLayoutFromConfig(int(t.MP4A.ChannelCount)))
		}
		if t.AVC != nil {
			fmt.Fprintf(w, " %dx%d", t.AVC.Width, t.AVC.Height)
		}
		fmt.Fprintln(w)
	}

	if opts.samples {
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return
		}
		d := mp4.NewDemuxer(f, nil)
		for {
			track, sample, data, rerr := d.ReadSample()
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
			fmt.Fprintf(w, "sample track %d dts %d cts %d size %d sync %v\n",
				track.ID, sample.DTS, sample.CTS(), len(data), sample.Sync)
		}
	}

	if !opts.atoms {
		return nil
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return
	}
	var top []mp4io.Atom
	if top, err = mp4io.ReadFileAtoms(f, nil); err != nil {
		return
	}
	for _, atom := range top {
		mp4io.FprintAtom(w, atom)
	}
	return nil
}

func probeADTS(w io.Writer, r io.Reader, opts probeOptions) (err error) {
	d := aac.NewDemuxer(r)
	var first aac.FrameInfo
	frames := 0
	for {
		start := d.Time()
		var frame aac.Frame
		if frame, err = d.ReadFrame(); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("probe: frame %d: %w", frames, err)
		}
		if frames == 0 {
			first = frame.Info
		}
		if opts.samples {
			fmt.Fprintf(w, "frame %d time %v size %d\n", frames, start, len(frame.Data))
		}
		frames++
	}
	if frames == 0 {
		return fmt.Errorf("probe: %w", aac.ErrInvalidFrame)
	}
	fmt.Fprintf(w, "adts: aot %d rate %d layout %s frames %d duration %v\n",
		first.ObjectType(), first.SampleRate(), first.ChannelLayout(), frames, d.Time())
	return nil
}

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: logger: %v\n", err)
		os.Exit(1)
	}

	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
