// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	gomp4 "github.com/abema/go-mp4"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

// adtsStream returns n ADTS frames of size-byte payloads and the payloads.
func adtsStream(t *testing.T, n, size, freqIdx, ch int) ([]byte, [][]byte) {
	t.Helper()
	var b bytes.Buffer
	m := aac.NewMuxer(&b, aac.FrameInfo{Profile: 1, SamplingFrequencyIndex: freqIdx, ChannelConfiguration: ch})
	var payloads [][]byte
	for i := 0; i < n; i++ {
		p := bytes.Repeat([]byte{byte(i + 1)}, size)
		if err := m.WriteFrame(p); err != nil {
			t.Fatal(err)
		}
		payloads = append(payloads, p)
	}
	return b.Bytes(), payloads
}

// Offsets of the muxer header: ftyp with two compatible brands, then wide.
const (
	testWidePos = 24
	testMdatPos = 32
)

func TestMuxAACMdatSize(t *testing.T) {
	t.Parallel()
	in, payloads := adtsStream(t, 10, 200, 4, 2)
	out := &memFile{}
	res, err := MuxAAC(context.Background(), bytes.NewReader(in), out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 10 || res.SampleRate != 44100 || res.Channels != 2 || res.ChannelLayout != av.CH_STEREO {
		t.Errorf("result %+v", res)
	}
	if res.MdatSize != 2088 || res.LargeMdat {
		t.Errorf("mdat size %d large=%v", res.MdatSize, res.LargeMdat)
	}

	b := out.Bytes()
	if tag := mp4io.Tag(pio.U32BE(b[testWidePos+4:])); tag != mp4io.WIDE {
		t.Errorf("atom at %d is %s", testWidePos, tag)
	}
	if size := pio.U32BE(b[testMdatPos:]); size != 2088 {
		t.Errorf("declared mdat size %d", size)
	}
	if tag := mp4io.Tag(pio.U32BE(b[testMdatPos+4:])); tag != mp4io.MDAT {
		t.Errorf("atom at %d is %s", testMdatPos, tag)
	}

	f, err := ReadFile(bytes.NewReader(b), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.FileType == nil || mp4io.Tag(f.FileType.MajorBrand) != mp4io.BrandM4A {
		t.Fatalf("file type %v", f.FileType)
	}
	if f.Movie.TimeScale != 44100 || len(f.Movie.Tracks) != 1 {
		t.Fatalf("movie timescale %d tracks %d", f.Movie.TimeScale, len(f.Movie.Tracks))
	}
	track := f.Movie.Tracks[0]
	if track.Type != TrackTypeAudio || track.ID != 1 || track.Language != "eng" {
		t.Errorf("track %v id %d lang %s", track.Type, track.ID, track.Language)
	}
	if track.MediaTimeScale != 44100 || track.MediaDuration != 10*1024 || track.MovieDuration != 10*1024 {
		t.Errorf("track time %d/%d movie %d", track.MediaDuration, track.MediaTimeScale, track.MovieDuration)
	}

	desc, ok := track.SampleDescription(0).(*MPEGAudioSampleDescription)
	if !ok {
		t.Fatalf("description %T", track.SampleDescription(0))
	}
	if !bytes.Equal(desc.DecoderInfo, []byte{0x12, 0x10}) || desc.SampleRate != 44100 || desc.ChannelCount != 2 {
		t.Errorf("description %+v", desc)
	}
	if desc.ObjectType != 0x40 || desc.SampleSize != 16 || desc.BufferSize != 6144 || desc.MaxBitrate != 128000 || desc.AvgBitrate != 128000 {
		t.Errorf("description %+v", desc)
	}

	var dts uint64
	for i, s := range track.Table.Samples {
		if s.DTS != dts || s.Duration != 1024 || !s.Sync {
			t.Errorf("sample %d: dts %d duration %d sync %v", i, s.DTS, s.Duration, s.Sync)
		}
		dts += uint64(s.Duration)
		if want := int64(testMdatPos + 8 + i*208); s.Offset != want {
			t.Errorf("sample %d at %d, want %d", i, s.Offset, want)
		}
		data, err := s.ReadData()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, payloads[i]) {
			t.Errorf("sample %d payload mismatch", i)
		}
		if marker := pio.U64BE(b[s.Offset+int64(s.Size):]); marker != FrameSentinel {
			t.Errorf("sample %d marker %x", i, marker)
		}
	}
}

func TestMuxAACProbe(t *testing.T) {
	t.Parallel()
	in, _ := adtsStream(t, 10, 200, 3, 1)
	out := &memFile{}
	if _, err := MuxAAC(context.Background(), bytes.NewReader(in), out); err != nil {
		t.Fatal(err)
	}

	info, err := gomp4.Probe(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if info.MajorBrand != [4]byte{'M', '4', 'A', ' '} {
		t.Errorf("major brand %q", info.MajorBrand)
	}
	if info.Timescale != 48000 || len(info.Tracks) != 1 {
		t.Fatalf("timescale %d tracks %d", info.Timescale, len(info.Tracks))
	}
	track := info.Tracks[0]
	if track.Codec != gomp4.CodecMP4A || track.Timescale != 48000 || track.Duration != 10240 {
		t.Errorf("track codec %v timescale %d duration %d", track.Codec, track.Timescale, track.Duration)
	}
	if track.MP4A == nil || track.MP4A.OTI != 0x40 || track.MP4A.AudOTI != 2 || track.MP4A.ChannelCount != 1 {
		t.Errorf("mp4a %+v", track.MP4A)
	}
	if len(track.Samples) != 10 || len(track.Chunks) != 10 {
		t.Fatalf("samples %d chunks %d", len(track.Samples), len(track.Chunks))
	}
	for i, s := range track.Samples {
		if s.Size != 200 || s.TimeDelta != 1024 {
			t.Errorf("sample %d: size %d delta %d", i, s.Size, s.TimeDelta)
		}
	}
	for i, c := range track.Chunks {
		if want := uint64(testMdatPos + 8 + i*208); c.DataOffset != want {
			t.Errorf("chunk %d at %d, want %d", i, c.DataOffset, want)
		}
	}
}

func TestMuxAACWithoutSentinel(t *testing.T) {
	t.Parallel()
	in, payloads := adtsStream(t, 10, 200, 4, 2)
	out := &memFile{}
	res, err := MuxAAC(context.Background(), iotest.HalfReader(bytes.NewReader(in)), out,
		WithSentinel(false), WithReadBuffer(100))
	if err != nil {
		t.Fatal(err)
	}
	if res.MdatSize != 8+10*200 {
		t.Errorf("mdat size %d", res.MdatSize)
	}

	f, err := ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	track := f.Movie.Tracks[0]
	if track.SampleCount() != 10 {
		t.Fatalf("samples %d", track.SampleCount())
	}
	for i, s := range track.Table.Samples {
		if want := int64(testMdatPos + 8 + i*200); s.Offset != want {
			t.Errorf("sample %d at %d, want %d", i, s.Offset, want)
		}
		data, err := s.ReadData()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, payloads[i]) {
			t.Errorf("sample %d payload mismatch", i)
		}
	}
}

func TestMuxAACZeroFrames(t *testing.T) {
	t.Parallel()
	out := &memFile{}
	res, err := MuxAAC(context.Background(), bytes.NewReader([]byte("no adts frames in here")), out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 0 || res.MdatSize != 8 {
		t.Errorf("result %+v", res)
	}
	if size := pio.U32BE(out.Bytes()[testMdatPos:]); size != 8 {
		t.Errorf("declared mdat size %d", size)
	}

	f, err := ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Movie.Tracks) != 0 || f.Movie.TimeScale != DefaultTimeScale {
		t.Errorf("movie tracks %d timescale %d", len(f.Movie.Tracks), f.Movie.TimeScale)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestMuxAACReadError(t *testing.T) {
	t.Parallel()
	if _, err := MuxAAC(context.Background(), failingReader{}, &memFile{}); err == nil {
		t.Fatal("read error swallowed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in, _ := adtsStream(t, 3, 10, 4, 2)
	if _, err := MuxAAC(ctx, bytes.NewReader(in), &memFile{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled mux: %v", err)
	}
}

// patchRecorder is an io.WriteSeeker that keeps every write with its
// position instead of the file contents.
type patchRecorder struct {
	pos    int64
	writes []recordedWrite
}

type recordedWrite struct {
	pos  int64
	data []byte
}

func (r *patchRecorder) Write(p []byte) (int, error) {
	r.writes = append(r.writes, recordedWrite{pos: r.pos, data: append([]byte(nil), p...)})
	r.pos += int64(len(p))
	return len(p), nil
}

func (r *patchRecorder) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.pos = offset
	case io.SeekCurrent:
		r.pos += offset
	default:
		return 0, errors.New("patchRecorder: unsupported whence")
	}
	return r.pos, nil
}

func TestMuxAACLargeMdat(t *testing.T) {
	t.Parallel()
	rec := &patchRecorder{}
	m := NewMuxer(rec)
	if err := m.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	in, _ := adtsStream(t, 2, 100, 4, 2)
	if err := m.ReadFrom(context.Background(), bytes.NewReader(in)); err != nil {
		t.Fatal(err)
	}
	if err := m.bufw.Flush(); err != nil {
		t.Fatal(err)
	}
	// pretend 4 GiB of payload went out
	m.wpos += 1 << 32
	end := m.wpos

	res, err := m.WriteTrailer()
	if err != nil {
		t.Fatal(err)
	}
	if !res.LargeMdat || res.MdatSize != uint64(end-testWidePos) {
		t.Fatalf("result %+v", res)
	}

	var patch, moov *recordedWrite
	for i := range rec.writes {
		w := &rec.writes[i]
		switch w.pos {
		case testWidePos:
			patch = w
		case end:
			moov = w
		}
	}
	if patch == nil || len(patch.data) != 16 {
		t.Fatalf("no 16-byte patch at %d", testWidePos)
	}
	if pio.U32BE(patch.data[0:]) != 1 || mp4io.Tag(pio.U32BE(patch.data[4:])) != mp4io.MDAT {
		t.Errorf("patched header % x", patch.data[:8])
	}
	if size := pio.U64BE(patch.data[8:]); size != uint64(end-testWidePos) {
		t.Errorf("largesize %d, want %d", size, end-testWidePos)
	}
	if moov == nil || mp4io.Tag(pio.U32BE(moov.data[4:])) != mp4io.MOOV {
		t.Fatal("moov not written at the end of the payload")
	}
}
