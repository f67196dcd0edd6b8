// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

// memFile is an in-memory io.WriteSeeker.
type memFile struct {
	b   []byte
	pos int64
}

func (f *memFile) Write(p []byte) (n int, err error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.b)) {
		f.b = append(f.b, make([]byte, end-int64(len(f.b)))...)
	}
	n = copy(f.b[f.pos:], p)
	f.pos = end
	return
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = int64(len(f.b)) + offset
	}
	if pos < 0 {
		return 0, errors.New("memFile: negative position")
	}
	f.pos = pos
	return pos, nil
}

func (f *memFile) Bytes() []byte {
	return f.b
}

// uniformTrack returns a track of n samples of duration dur, sync every
// gop samples, with a single raw description.
func uniformTrack(n int, dur uint32, gop int, timescale uint32) *Track {
	table := &SampleTable{}
	table.AddSampleDescription(&RawSampleDescription{})
	for i := 0; i < n; i++ {
		_ = table.AddSample(Sample{Size: 10, Duration: dur, Sync: gop <= 1 || i%gop == 0})
	}
	return NewTrack(TrackTypeVideo, table, timescale)
}

func TestConvertTime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		v        uint64
		from, to uint32
		want     uint64
	}{
		{1200, 600, 1000, 2000},
		{2000, 1000, 600, 1200},
		{1023, 44100, 1000, 23},
		{42, 90000, 90000, 42},
		{1 << 40 * 90000, 90000, 1, 1 << 40},
		{math.MaxUint64 / 2, 1000, 1000, math.MaxUint64 / 2},
		{math.MaxUint64, 1, 2, math.MaxUint64},
		{5, 0, 1000, 0},
	}
	for _, c := range cases {
		if got := ConvertTime(c.v, c.from, c.to); got != c.want {
			t.Errorf("ConvertTime(%d, %d, %d) = %d, want %d", c.v, c.from, c.to, got, c.want)
		}
	}
}

func TestSampleTableAddSample(t *testing.T) {
	t.Parallel()
	table := &SampleTable{}
	if err := table.AddSample(Sample{Duration: 10}); err == nil {
		t.Fatal("sample without description accepted")
	}
	table.AddSampleDescription(&RawSampleDescription{})
	for _, d := range []uint32{10, 20, 30} {
		if err := table.AddSample(Sample{Duration: d, DTS: 999}); err != nil {
			t.Fatal(err)
		}
	}
	var dts uint64
	for i, s := range table.Samples {
		if s.DTS != dts {
			t.Errorf("sample %d: dts %d, want %d", i, s.DTS, dts)
		}
		dts += uint64(s.Duration)
	}
	if table.Duration() != 60 {
		t.Errorf("duration %d", table.Duration())
	}
	if err := table.AppendSample(Sample{DTS: 5}); err == nil {
		t.Error("out of order dts accepted")
	}
	if err := table.AppendSample(Sample{DTS: 60, DescriptionIndex: 1}); err == nil {
		t.Error("dangling description index accepted")
	}
}

func TestSampleIndexForTimeStamp(t *testing.T) {
	t.Parallel()
	track := uniformTrack(10, 100, 1, 1000)
	cases := []struct {
		ts        uint64
		timescale uint32
		want      int
	}{
		{0, 1000, 0},
		{250, 1000, 2},
		{300, 1000, 3},
		{999, 1000, 9},
		{30, 100, 3},
		{1, 2, 5},
	}
	for _, c := range cases {
		got, err := track.SampleIndexForTimeStamp(c.ts, c.timescale)
		if err != nil {
			t.Fatalf("ts %d/%d: %v", c.ts, c.timescale, err)
		}
		if got != c.want {
			t.Errorf("ts %d/%d: index %d, want %d", c.ts, c.timescale, got, c.want)
		}
	}
	if _, err := track.SampleIndexForTimeStamp(1000, 1000); !errors.Is(err, ErrTimestampOutOfRange) {
		t.Errorf("end of track: %v", err)
	}
	if _, err := track.SampleIndexForTimeStamp(1, 0); err == nil {
		t.Error("zero timescale accepted")
	}
}

func TestNearestSyncSampleIndex(t *testing.T) {
	t.Parallel()
	track := uniformTrack(10, 100, 4, 1000)
	cases := []struct {
		i      int
		before bool
		want   int
	}{
		{5, true, 4},
		{5, false, 8},
		{4, true, 4},
		{4, false, 4},
		{0, false, 0},
		{9, false, 9},
		{9, true, 8},
		{42, true, 8},
	}
	for _, c := range cases {
		if got := track.NearestSyncSampleIndex(c.i, c.before); got != c.want {
			t.Errorf("NearestSyncSampleIndex(%d, %v) = %d, want %d", c.i, c.before, got, c.want)
		}
	}
	for i := 0; i < 10; i++ {
		snapped := track.NearestSyncSampleIndex(i, true)
		if again := track.NearestSyncSampleIndex(snapped, true); again != snapped {
			t.Errorf("snap of %d not idempotent: %d then %d", i, snapped, again)
		}
	}
}

func TestMovieAddTrack(t *testing.T) {
	t.Parallel()
	movie := NewMovie(0)
	if movie.TimeScale != DefaultTimeScale {
		t.Fatalf("timescale %d", movie.TimeScale)
	}
	a := uniformTrack(30, 20, 10, 600)
	b := uniformTrack(44, 1024, 1, 44100)
	b.Type = TrackTypeAudio
	movie.AddTrack(a)
	movie.AddTrack(b)
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("ids %d %d", a.ID, b.ID)
	}
	if a.MovieTimeScale != 1000 || a.MovieDuration != 1000 {
		t.Errorf("track a movie time %d/%d", a.MovieDuration, a.MovieTimeScale)
	}
	if b.MovieDuration != 1021 {
		t.Errorf("track b movie duration %d", b.MovieDuration)
	}
	if movie.Duration() != 1021 {
		t.Errorf("movie duration %d", movie.Duration())
	}
	if movie.Track(TrackTypeAudio) != b || movie.TrackByID(1) != a {
		t.Error("track lookup")
	}
	if movie.HasFragments() {
		t.Error("new movie fragmented")
	}
}

func TestNewAudioSampleDescription(t *testing.T) {
	t.Parallel()
	d, err := NewAudioSampleDescription(aac.FrameInfo{SamplingFrequencyIndex: 3, SamplingFrequency: 48000, ChannelConfiguration: 6})
	if err != nil {
		t.Fatal(err)
	}
	if d.SampleRate != 48000 || d.ChannelCount != 6 || d.ChannelLayout() != av.CH_5_1 {
		t.Errorf("description %+v", d)
	}
	if _, idx, ch, err := aac.ParseDecoderSpecificInfo(d.DecoderInfo); err != nil || idx != 3 || ch != 6 {
		t.Errorf("decoder info % x", d.DecoderInfo)
	}

	if _, err = NewAudioSampleDescription(aac.FrameInfo{SamplingFrequency: 44000}); err == nil {
		t.Error("unknown sample rate accepted")
	}
}

func TestTrackCodec(t *testing.T) {
	t.Parallel()
	codecs := map[SampleDescription]av.CodecType{
		NewAACSampleDescription(4, 2): av.AAC,
		NewRawSampleDescription(&mp4io.Dummy{Tag_: mp4io.StringToTag("avc1"), Data: []byte{0, 0, 0, 8, 'a', 'v', 'c', '1'}}): av.H264,
		NewRawSampleDescription(&mp4io.Dummy{Tag_: mp4io.StringToTag("hev1"), Data: []byte{0, 0, 0, 8, 'h', 'e', 'v', '1'}}): av.H265,
		NewRawSampleDescription(&mp4io.Dummy{Tag_: mp4io.StringToTag("text"), Data: []byte{0, 0, 0, 8, 't', 'e', 'x', 't'}}): 0,
	}
	for d, want := range codecs {
		table := &SampleTable{}
		table.AddSampleDescription(d)
		if got := NewTrack(TrackTypeUnknown, table, 1000).Codec(); got != want {
			t.Errorf("%s: codec %v, want %v", d.Format(), got, want)
		}
	}
	if (&Track{}).Codec() != 0 {
		t.Error("track without descriptions has a codec")
	}
}
