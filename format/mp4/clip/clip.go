// Package clip
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/teocci/go-mp4clip/format/mp4"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

var ErrNoVideoTrack = errors.New("clip: no video track found")

type Options struct {
	// Start and End bound the clip in TimeScale units. With End zero and
	// Duration set, End is Start + Duration.
	Start     uint64
	End       uint64
	Duration  uint64
	TimeScale uint32

	NoAudio bool
	NoMeta  bool
	NoUUID  bool
	// Thumbnail extracts the sync sample of the first video track found at
	// Start.
	Thumbnail bool

	Registry *mp4io.Registry
	Logger   *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) window() (start, end uint64, timescale uint32) {
	start, end, timescale = o.Start, o.End, o.TimeScale
	if end == 0 && o.Duration != 0 {
		end = start + o.Duration
	}
	if timescale == 0 {
		timescale = mp4.DefaultTimeScale
	}
	return
}

// Summary reports the extracted window as (value, timescale) pairs.
type Summary struct {
	Start     int64
	Duration  int64
	TimeScale uint32
}

func (s Summary) String() string {
	return fmt.Sprintf(`{ "start": [%d, %d], "duration": [%d, %d] }`, s.Start, s.TimeScale, s.Duration, s.TimeScale)
}

// tracks returns the tracks of src kept in the clip.
func (o Options) tracks(src *mp4.Movie) (kept []*mp4.Track) {
	for _, track := range src.Tracks {
		if o.NoAudio && track.Type == mp4.TrackTypeAudio {
			continue
		}
		kept = append(kept, track)
	}
	return
}

// NewTrimmedMovie cuts every track of src to [start, end] given in
// timescale units. Each track starts on the first sync sample at or after
// start and ends on the sample holding end, or its last sample. The moov
// children other than trak and mvhd are copied unless opts.NoMeta is set.
func NewTrimmedMovie(src *mp4.Movie, start, end uint64, timescale uint32, opts Options) (movie *mp4.Movie, err error) {
	movie = mp4.NewMovie(src.TimeScale)
	for _, track := range opts.tracks(src) {
		var first, last int
		if first, err = track.SampleIndexForTimeStamp(start, timescale); err != nil {
			err = fmt.Errorf("clip: track %d: start: %w", track.ID, err)
			return nil, err
		}
		first = track.NearestSyncSampleIndex(first, false)
		if last, err = track.SampleIndexForTimeStamp(end, timescale); err != nil {
			if !errors.Is(err, mp4.ErrTimestampOutOfRange) {
				err = fmt.Errorf("clip: track %d: end: %w", track.ID, err)
				return nil, err
			}
			last = track.SampleCount() - 1
		}
		if last < first {
			last = first
		}

		var trimmed *mp4.Track
		if trimmed, err = TrimTrack(track, first, last); err != nil {
			return nil, err
		}
		movie.AddTrack(trimmed)
	}

	if !opts.NoMeta {
		for _, atom := range src.Meta {
			movie.Meta = append(movie.Meta, mp4io.CloneAtom(atom))
		}
	}
	return
}

// thumbnailSample returns the first video track of src and the index of
// its sync sample at or after ts.
func thumbnailSample(src *mp4.Movie, ts uint64, timescale uint32) (track *mp4.Track, i int, err error) {
	if track = src.Track(mp4.TrackTypeVideo); track == nil {
		err = ErrNoVideoTrack
		return
	}
	if i, err = track.SampleIndexForTimeStamp(ts, timescale); err != nil {
		err = fmt.Errorf("clip: track %d: %w", track.ID, err)
		return
	}
	i = track.NearestSyncSampleIndex(i, false)
	return
}

// NewThumbnailMovie returns a movie holding the sync sample of the first
// video track of src found at or after ts. The movie uses the media
// timescale of that track.
func NewThumbnailMovie(src *mp4.Movie, ts uint64, timescale uint32) (movie *mp4.Movie, err error) {
	var track, thumb *mp4.Track
	var i int
	if track, i, err = thumbnailSample(src, ts, timescale); err != nil {
		return
	}
	if thumb, err = TrimTrack(track, i, i); err != nil {
		return
	}
	movie = mp4.NewMovie(track.MediaTimeScale)
	movie.AddTrack(thumb)
	return
}

// Clip is an extraction ready to be written. Its samples read from the
// input it was prepared from.
type Clip struct {
	File    *mp4.File
	Summary Summary

	opts Options
}

// Prepare reads the movie of in and builds the clip described by opts.
// Inputs without a movie or with movie fragments are rejected.
func Prepare(in io.ReadSeeker, opts Options) (c *Clip, err error) {
	var src *mp4.File
	if src, err = mp4.ReadFile(in, opts.Registry); err != nil {
		return
	}
	if src.Movie.HasFragments() {
		err = mp4.ErrFragmented
		return
	}

	start, end, timescale := opts.window()
	c = &Clip{opts: opts}
	var movie *mp4.Movie
	if opts.Thumbnail {
		if movie, err = NewThumbnailMovie(src.Movie, start, timescale); err != nil {
			return nil, err
		}
		track, i, _ := thumbnailSample(src.Movie, start, timescale)
		c.Summary = Summary{
			Start:     int64(track.Table.Samples[i].DTS),
			Duration:  int64(track.Table.Samples[i].Duration),
			TimeScale: track.MediaTimeScale,
		}
	} else {
		var r Range
		view := &mp4.Movie{TimeScale: src.Movie.TimeScale, Tracks: opts.tracks(src.Movie)}
		if r, err = SelectExtractionRange(view, start, end, timescale); err != nil {
			return nil, err
		}
		if movie, err = NewTrimmedMovie(src.Movie, r.Start, r.End, r.TimeScale, opts); err != nil {
			return nil, err
		}
		c.Summary = Summary{Start: int64(r.Start), Duration: int64(r.Duration()), TimeScale: r.TimeScale}
	}

	c.File = &mp4.File{
		FileType: mp4io.NewFileType(mp4io.BrandM4A, 0, mp4io.BrandISOM, mp4io.BrandMP42),
		Movie:    movie,
	}
	if !opts.NoUUID {
		if u, ok := src.Atom(mp4io.UUID).(*mp4io.UUIDAtom); ok {
			c.File.Extra = append(c.File.Extra, u.Clone())
		}
	}

	opts.logger().Debug("clip prepared",
		zap.Bool("thumbnail", opts.Thumbnail),
		zap.Int("tracks", len(movie.Tracks)),
		zap.Int("meta_atoms", len(movie.Meta)),
		zap.Int("extra_atoms", len(c.File.Extra)),
		zap.Stringer("summary", c.Summary),
	)
	return
}

// WriteTo serializes the clip to out.
func (c *Clip) WriteTo(ctx context.Context, out io.Writer) error {
	return mp4.NewWriter(out, mp4.WithLogger(c.opts.logger())).Write(ctx, c.File)
}

// Extract writes the clip of in described by opts to out. Nothing is
// written when in is rejected.
func Extract(ctx context.Context, in io.ReadSeeker, out io.Writer, opts Options) (summary Summary, err error) {
	var c *Clip
	if c, err = Prepare(in, opts); err != nil {
		return
	}
	if err = c.WriteTo(ctx, out); err != nil {
		return
	}
	summary = c.Summary
	return
}
