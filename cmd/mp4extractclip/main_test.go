// Package main
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teocci/go-mp4clip/config"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

// muxedFile writes an M4A of 50 AAC frames at 44.1 kHz into dir.
func muxedFile(t *testing.T, dir string, trailer []byte) string {
	t.Helper()
	var adts bytes.Buffer
	m := aac.NewMuxer(&adts, aac.FrameInfo{Profile: 1, SamplingFrequencyIndex: 4, ChannelConfiguration: 2})
	for i := 0; i < 50; i++ {
		if err := m.WriteFrame(bytes.Repeat([]byte{byte(i)}, 64)); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(dir, "in.m4a")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err = mp4.MuxAAC(context.Background(), &adts, f); err != nil {
		t.Fatal(err)
	}
	if _, err = f.Write(trailer); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd(&config.Config{TimeScale: config.DefaultTimeScale})
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestExtractClip(t *testing.T) {
	dir := t.TempDir()
	in := muxedFile(t, dir, nil)
	out := filepath.Join(dir, "out.m4a")

	stdout, err := execute("--start", "0", "--end", "500", in, out)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(stdout); got != `{ "start": [0, 44100], "duration": [21504, 44100] }` {
		t.Errorf("summary %s", got)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	f, err := mp4.ReadFile(bytes.NewReader(b), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Movie.Tracks) != 1 || f.Movie.Tracks[0].SampleCount() != 22 {
		t.Fatalf("tracks %d", len(f.Movie.Tracks))
	}
}

func TestExtractClipRejectsFragmented(t *testing.T) {
	dir := t.TempDir()
	moof := make([]byte, 8)
	pio.PutU32BE(moof[0:], 8)
	pio.PutU32BE(moof[4:], uint32(mp4io.MOOF))
	in := muxedFile(t, dir, moof)

	for _, flags := range [][]string{nil, {"--noaudio"}, {"--nometa", "--nouuid"}, {"--thumb"}} {
		out := filepath.Join(dir, "out.m4a")
		args := append(append([]string{"--start", "0", "--end", "1000"}, flags...), in, out)
		if _, err := execute(args...); !errors.Is(err, mp4.ErrFragmented) {
			t.Errorf("%v: %v", flags, err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Errorf("%v: output file created", flags)
		}
	}
}

func TestExtractClipArguments(t *testing.T) {
	dir := t.TempDir()
	in := muxedFile(t, dir, nil)
	if _, err := execute(in, filepath.Join(dir, "a.m4a"), filepath.Join(dir, "b.m4a")); err == nil {
		t.Error("third file name accepted")
	}
	if _, err := execute("--bogus", in, filepath.Join(dir, "a.m4a")); err == nil {
		t.Error("unknown flag accepted")
	}
	if _, err := execute(filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "a.m4a")); err == nil {
		t.Error("missing input accepted")
	}
}
