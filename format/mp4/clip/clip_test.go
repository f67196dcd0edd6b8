// Package clip
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/teocci/go-mp4clip/format/mp4"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

// Source layout: a 600 Hz video track of 90 samples lasting 20 units each
// with a sync sample every 10, and a 44.1 kHz audio track of 130 frames.
const (
	videoTimeScale = 600
	videoSamples   = 90
	videoDuration  = 20
	videoGOP       = 10
	videoSize      = 40

	audioTimeScale = 44100
	audioSamples   = 130
	audioSize      = 12
)

func opaqueAtom(tag string, body []byte) *mp4io.Dummy {
	b := make([]byte, 8+len(body))
	pio.PutU32BE(b[0:], uint32(len(b)))
	copy(b[4:], tag)
	copy(b[8:], body)
	return &mp4io.Dummy{Tag_: mp4io.StringToTag(tag), Data: b}
}

func videoTrack(src []byte) *mp4.Track {
	r := bytes.NewReader(src)
	table := &mp4.SampleTable{}
	table.AddSampleDescription(mp4.NewRawSampleDescription(opaqueAtom("avc1", []byte("fake avc config"))))
	for i := 0; i < videoSamples; i++ {
		_ = table.AddSample(mp4.Sample{
			Source:   r,
			Offset:   int64(i * videoSize),
			Size:     videoSize,
			Duration: videoDuration,
			Sync:     i%videoGOP == 0,
		})
	}
	t := mp4.NewTrack(mp4.TrackTypeVideo, table, videoTimeScale)
	t.Width, t.Height = 640, 360
	return t
}

func audioTrack(src []byte) *mp4.Track {
	r := bytes.NewReader(src)
	table := &mp4.SampleTable{}
	table.AddSampleDescription(mp4.NewAACSampleDescription(4, 2))
	base := videoSamples * videoSize
	for i := 0; i < audioSamples; i++ {
		_ = table.AddSample(mp4.Sample{
			Source:   r,
			Offset:   int64(base + i*audioSize),
			Size:     audioSize,
			Duration: 1024,
			Sync:     true,
		})
	}
	t := mp4.NewTrack(mp4.TrackTypeAudio, table, audioTimeScale)
	t.Language = "eng"
	return t
}

// payloads fills every sample of the source with a byte derived from its
// index so copies can be told apart.
func payloads() []byte {
	b := make([]byte, videoSamples*videoSize+audioSamples*audioSize)
	for i := 0; i < videoSamples; i++ {
		for j := 0; j < videoSize; j++ {
			b[i*videoSize+j] = byte(i)
		}
	}
	base := videoSamples * videoSize
	for i := 0; i < audioSamples; i++ {
		for j := 0; j < audioSize; j++ {
			b[base+i*audioSize+j] = byte(0x80 + i)
		}
	}
	return b
}

func sourceMovie(withAudio bool) *mp4.Movie {
	src := payloads()
	movie := mp4.NewMovie(1000)
	movie.AddTrack(videoTrack(src))
	if withAudio {
		movie.AddTrack(audioTrack(src))
	}
	return movie
}

var xmpPacket = []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"/>`)

// sourceFile serializes a source movie with user data and an XMP uuid atom.
func sourceFile(t *testing.T, withAudio bool) []byte {
	t.Helper()
	return writeSource(t, sourceMovie(withAudio))
}

// shortAudioMovie is the source movie with the audio cut to its first n
// frames.
func shortAudioMovie(n int) *mp4.Movie {
	movie := sourceMovie(true)
	audio := movie.Tracks[1]
	audio.Table.Samples = audio.Table.Samples[:n]
	audio.MediaDuration = audio.Table.Duration()
	audio.MovieDuration = mp4.ConvertTime(audio.MediaDuration, audioTimeScale, movie.TimeScale)
	return movie
}

func writeSource(t *testing.T, movie *mp4.Movie) []byte {
	t.Helper()
	movie.Meta = []mp4io.Atom{opaqueAtom("udta", []byte("user data"))}
	f := &mp4.File{
		FileType: mp4io.NewFileType(mp4io.StringToTag("isom"), 512, mp4io.BrandISOM, mp4io.BrandMP42),
		Movie:    movie,
		Extra:    []mp4io.Atom{&mp4io.UUIDAtom{UserType: mp4io.XMPUserType, Data: xmpPacket}},
	}
	var b bytes.Buffer
	if err := mp4.NewWriter(&b).Write(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func TestSelectExtractionRangeSyncStart(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(false)

	// 200/600 is sample 10, a sync sample
	r, err := SelectExtractionRange(movie, 200, 600, videoTimeScale)
	if err != nil {
		t.Fatal(err)
	}
	if r.Start != 200 || r.TimeScale != videoTimeScale || r.Tracks[0].First != 10 {
		t.Fatalf("range %+v", r)
	}
	again, err := SelectExtractionRange(movie, r.Start, r.End, r.TimeScale)
	if err != nil {
		t.Fatal(err)
	}
	if again.Start != r.Start || again.End != r.End || again.Tracks[0] != r.Tracks[0] {
		t.Errorf("second pass %+v, first %+v", again, r)
	}
}

func TestSelectExtractionRangeSnapBack(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(false)

	// 400 ms is sample 12; the window moves to sample 10 in media units
	r, err := SelectExtractionRange(movie, 400, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := Range{Start: 200, End: 600, TimeScale: videoTimeScale, Tracks: []TrackRange{{TrackID: 1, First: 10, Last: 30}}}
	if fmt.Sprint(r) != fmt.Sprint(want) {
		t.Errorf("range %+v, want %+v", r, want)
	}
}

func TestSelectExtractionRangeLastTrackWins(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(true)

	r, err := SelectExtractionRange(movie, 400, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	// the audio track works from the video window 200..600 at 600 Hz
	want := Range{
		Start:     14700,
		End:       43 * 1024,
		TimeScale: audioTimeScale,
		Tracks: []TrackRange{
			{TrackID: 1, First: 10, Last: 30},
			{TrackID: 2, First: 14, Last: 43},
		},
	}
	if fmt.Sprint(r) != fmt.Sprint(want) {
		t.Errorf("range %+v, want %+v", r, want)
	}
}

func TestSelectExtractionRangeThumbnail(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(false)

	r, err := SelectExtractionRange(movie, 400, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	tr := r.Tracks[0]
	if tr.First != 10 || tr.Last != tr.First {
		t.Errorf("track range %+v", tr)
	}
	if r.Start != 200 || r.End != r.Start || r.Duration() != 0 {
		t.Errorf("range %+v", r)
	}
}

func TestSelectExtractionRangeClampEnd(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(false)

	r, err := SelectExtractionRange(movie, 0, 1<<40, videoTimeScale)
	if err != nil {
		t.Fatal(err)
	}
	if r.Tracks[0].Last != videoSamples-1 || r.End != (videoSamples-1)*videoDuration {
		t.Errorf("range %+v", r)
	}

	if _, err = SelectExtractionRange(movie, 1<<40, 1<<41, videoTimeScale); !errors.Is(err, mp4.ErrTimestampOutOfRange) {
		t.Errorf("start beyond the track: %v", err)
	}
}

func TestSelectExtractionRangeShortTrack(t *testing.T) {
	t.Parallel()
	// 40 frames of audio end at 0.93 s
	movie := shortAudioMovie(40)

	r, err := SelectExtractionRange(movie, 2000, 2500, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := Range{Start: 1200, End: 1500, TimeScale: videoTimeScale, Tracks: []TrackRange{{TrackID: 1, First: 60, Last: 75}}}
	if fmt.Sprint(r) != fmt.Sprint(want) {
		t.Errorf("range %+v, want %+v", r, want)
	}

	// the first track has nothing to keep
	movie.Tracks[0], movie.Tracks[1] = movie.Tracks[1], movie.Tracks[0]
	if _, err = SelectExtractionRange(movie, 2000, 2500, 1000); !errors.Is(err, mp4.ErrTimestampOutOfRange) {
		t.Errorf("start beyond the first track: %v", err)
	}
}

func TestTrimTrack(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(false)
	src := movie.Tracks[0]

	trimmed, err := TrimTrack(src, 13, 24)
	if err != nil {
		t.Fatal(err)
	}
	if trimmed.SampleCount() != 12 || trimmed.ID != src.ID || trimmed.Width != src.Width || trimmed.Language != src.Language {
		t.Fatalf("trimmed %+v", trimmed)
	}
	if trimmed.MediaDuration != 12*videoDuration || trimmed.MovieDuration != 400 {
		t.Errorf("durations media %d movie %d", trimmed.MediaDuration, trimmed.MovieDuration)
	}
	for i, s := range trimmed.Table.Samples {
		orig := src.Table.Samples[13+i]
		if s.DTS != uint64(i*videoDuration) {
			t.Errorf("sample %d dts %d", i, s.DTS)
		}
		if s.Offset != orig.Offset || s.Source != orig.Source || s.Sync != orig.Sync {
			t.Errorf("sample %d does not share its payload", i)
		}
	}
	if trimmed.SampleDescription(0) == src.SampleDescription(0) {
		t.Error("descriptions shared with the source")
	}

	if _, err = TrimTrack(src, 5, 4); err == nil {
		t.Error("inverted range accepted")
	}
	if _, err = TrimTrack(src, 80, videoSamples); !errors.Is(err, mp4.ErrSampleIndex) {
		t.Errorf("range past the end: %v", err)
	}
}

func TestTrimRebasesToZero(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(true)
	for _, track := range movie.Tracks {
		for _, first := range []int{0, 1, 10, 57} {
			trimmed, err := TrimTrack(track, first, first+5)
			if err != nil {
				t.Fatal(err)
			}
			if dts := trimmed.Table.Samples[0].DTS; dts != 0 {
				t.Errorf("track %d from %d: first dts %d", track.ID, first, dts)
			}
		}
	}
}

func TestNewTrimmedMovie(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(true)
	movie.Meta = []mp4io.Atom{opaqueAtom("udta", []byte("x")), opaqueAtom("meta", []byte("y"))}

	trimmed, err := NewTrimmedMovie(movie, 250, 500, 1000, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if trimmed.TimeScale != movie.TimeScale || len(trimmed.Tracks) != 2 {
		t.Fatalf("movie timescale %d tracks %d", trimmed.TimeScale, len(trimmed.Tracks))
	}
	// 250 ms is video sample 7, moved forward to the sync sample 10
	video := trimmed.Tracks[0]
	if video.SampleCount() != 6 || video.Table.Samples[0].Offset != 10*videoSize {
		t.Errorf("video samples %d", video.SampleCount())
	}
	if len(trimmed.Meta) != 2 || trimmed.Meta[0].Tag() != mp4io.UDTA || trimmed.Meta[1].Tag() != mp4io.META {
		t.Errorf("meta %v", trimmed.Meta)
	}
	if trimmed.Meta[0] == movie.Meta[0] {
		t.Error("meta atoms shared with the source")
	}

	trimmed, err = NewTrimmedMovie(movie, 250, 500, 1000, Options{NoAudio: true, NoMeta: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(trimmed.Tracks) != 1 || trimmed.Tracks[0].Type != mp4.TrackTypeVideo || len(trimmed.Meta) != 0 {
		t.Errorf("tracks %d meta %d", len(trimmed.Tracks), len(trimmed.Meta))
	}
}

func TestNewThumbnailMovie(t *testing.T) {
	t.Parallel()
	movie := sourceMovie(true)

	thumb, err := NewThumbnailMovie(movie, 250, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if thumb.TimeScale != videoTimeScale || len(thumb.Tracks) != 1 {
		t.Fatalf("movie timescale %d tracks %d", thumb.TimeScale, len(thumb.Tracks))
	}
	track := thumb.Tracks[0]
	if track.SampleCount() != 1 || !track.Table.Samples[0].Sync || track.Table.Samples[0].Offset != 10*videoSize {
		t.Errorf("thumbnail samples %+v", track.Table.Samples)
	}

	audioOnly := mp4.NewMovie(1000)
	audioOnly.AddTrack(movie.Tracks[1])
	if _, err = NewThumbnailMovie(audioOnly, 0, 1000); !errors.Is(err, ErrNoVideoTrack) {
		t.Errorf("audio only movie: %v", err)
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()
	in := sourceFile(t, false)
	var out bytes.Buffer
	summary, err := Extract(context.Background(), bytes.NewReader(in), &out, Options{End: 1200, TimeScale: 600})
	if err != nil {
		t.Fatal(err)
	}
	if got := summary.String(); got != `{ "start": [0, 600], "duration": [1200, 600] }` {
		t.Errorf("summary %s", got)
	}

	f, err := mp4.ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if mp4io.Tag(f.FileType.MajorBrand) != mp4io.BrandM4A {
		t.Errorf("major brand %s", mp4io.Tag(f.FileType.MajorBrand))
	}
	if len(f.Atoms) < 2 || f.Atoms[1].Tag() != mp4io.UUID {
		t.Fatal("uuid atom not copied right after ftyp")
	}
	if u := f.Atoms[1].(*mp4io.UUIDAtom); !bytes.Equal(u.Data, xmpPacket) {
		t.Errorf("uuid payload %q", u.Data)
	}
	if len(f.Movie.Meta) != 1 || f.Movie.Meta[0].Tag() != mp4io.UDTA {
		t.Errorf("meta %v", f.Movie.Meta)
	}

	track := f.Movie.Tracks[0]
	if track.SampleCount() != 61 {
		t.Fatalf("samples %d", track.SampleCount())
	}
	for i, s := range track.Table.Samples {
		data, err := s.ReadData()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, bytes.Repeat([]byte{byte(i)}, videoSize)) {
			t.Errorf("sample %d payload % x", i, data[:4])
		}
	}
}

func TestExtractOptions(t *testing.T) {
	t.Parallel()
	in := sourceFile(t, true)
	var out bytes.Buffer
	if _, err := Extract(context.Background(), bytes.NewReader(in), &out,
		Options{Start: 500, Duration: 1000, NoAudio: true, NoMeta: true, NoUUID: true}); err != nil {
		t.Fatal(err)
	}
	f, err := mp4.ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Atom(mp4io.UUID) != nil || len(f.Movie.Meta) != 0 {
		t.Error("uuid or metadata copied")
	}
	if len(f.Movie.Tracks) != 1 || f.Movie.Tracks[0].Type != mp4.TrackTypeVideo {
		t.Errorf("tracks %d", len(f.Movie.Tracks))
	}
}

func TestExtractNoAudioPastShortAudio(t *testing.T) {
	t.Parallel()
	movie := shortAudioMovie(40)
	// audio first, so only skipping it lets the resolver reach the video
	movie.Tracks[0], movie.Tracks[1] = movie.Tracks[1], movie.Tracks[0]
	in := writeSource(t, movie)

	var out bytes.Buffer
	summary, err := Extract(context.Background(), bytes.NewReader(in), &out,
		Options{Start: 2000, End: 2500, TimeScale: 1000, NoAudio: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary != (Summary{Start: 1200, Duration: 300, TimeScale: videoTimeScale}) {
		t.Errorf("summary %s", summary)
	}
	f, err := mp4.ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Movie.Tracks) != 1 || f.Movie.Tracks[0].SampleCount() != 16 {
		t.Fatalf("tracks %d", len(f.Movie.Tracks))
	}

	// with the audio kept the window cannot start past its end
	if _, err = Extract(context.Background(), bytes.NewReader(in), &bytes.Buffer{},
		Options{Start: 2000, End: 2500, TimeScale: 1000}); !errors.Is(err, mp4.ErrTimestampOutOfRange) {
		t.Errorf("audio kept: %v", err)
	}
}

func TestExtractThumbnail(t *testing.T) {
	t.Parallel()
	in := sourceFile(t, true)
	var out bytes.Buffer
	summary, err := Extract(context.Background(), bytes.NewReader(in), &out,
		Options{Start: 250, Thumbnail: true, NoAudio: true, NoMeta: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary != (Summary{Start: 200, Duration: videoDuration, TimeScale: videoTimeScale}) {
		t.Errorf("summary %s", summary)
	}

	f, err := mp4.ReadFile(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Movie.TimeScale != videoTimeScale || len(f.Movie.Tracks) != 1 || f.Movie.Tracks[0].SampleCount() != 1 {
		t.Fatalf("thumbnail movie %+v", f.Movie)
	}
	if f.Atom(mp4io.UUID) == nil {
		t.Error("uuid atom dropped")
	}
	data, err := f.Movie.Tracks[0].Table.Samples[0].ReadData()
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 10 {
		t.Errorf("thumbnail is sample %d", data[0])
	}
}

func TestExtractRejects(t *testing.T) {
	t.Parallel()
	plain := sourceFile(t, true)

	// a top-level moof marks the file as fragmented
	moof := make([]byte, 8)
	pio.PutU32BE(moof[0:], 8)
	pio.PutU32BE(moof[4:], uint32(mp4io.MOOF))
	fragmented := append(append([]byte(nil), plain...), moof...)

	ftyp := mp4io.NewFileType(mp4io.BrandM4A, 0, mp4io.BrandISOM)
	noMovie := make([]byte, ftyp.Len())
	ftyp.Marshal(noMovie)

	inputs := []struct {
		name string
		in   []byte
		want error
	}{
		{"fragmented", fragmented, mp4.ErrFragmented},
		{"no movie", noMovie, mp4.ErrNoMovie},
	}
	for _, input := range inputs {
		for flags := 0; flags < 16; flags++ {
			opts := Options{
				End:       1000,
				NoAudio:   flags&1 != 0,
				NoMeta:    flags&2 != 0,
				NoUUID:    flags&4 != 0,
				Thumbnail: flags&8 != 0,
			}
			var out bytes.Buffer
			_, err := Extract(context.Background(), bytes.NewReader(input.in), &out, opts)
			if !errors.Is(err, input.want) {
				t.Errorf("%s with %+v: %v", input.name, opts, err)
			}
			if out.Len() != 0 {
				t.Errorf("%s with %+v: %d bytes written", input.name, opts, out.Len())
			}
		}
	}
}
