// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"
	"io"
	"sync"

	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

// Demuxer builds the File model of an MP4 stream. Sample payloads are not
// loaded: every Sample keeps the input as its Source.
type Demuxer struct {
	r    io.ReadSeeker
	reg  *mp4io.Registry
	src  io.ReaderAt
	file *File

	// ReadSample cursors, one per track
	next []int
}

// NewDemuxer reads r with reg; a nil registry decodes moov, ftyp and uuid.
func NewDemuxer(r io.ReadSeeker, reg *mp4io.Registry) *Demuxer {
	d := &Demuxer{r: r, reg: reg}
	if ra, ok := r.(io.ReaderAt); ok {
		d.src = ra
	} else {
		d.src = &seekReaderAt{r: r}
	}
	return d
}

// ReadFile parses r into a File.
func ReadFile(r io.ReadSeeker, reg *mp4io.Registry) (*File, error) {
	return NewDemuxer(r, reg).File()
}

// seekReaderAt serves ReadAt through Seek and Read for inputs that only
// implement io.ReadSeeker.
type seekReaderAt struct {
	mu sync.Mutex
	r  io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(b []byte, pos int64) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err = s.r.Seek(pos, io.SeekStart); err != nil {
		return
	}
	return io.ReadFull(s.r, b)
}

func (d *Demuxer) File() (f *File, err error) {
	if err = d.probe(); err != nil {
		return
	}
	f = d.file
	return
}

func (d *Demuxer) probe() (err error) {
	if d.file != nil {
		return
	}

	if _, err = d.r.Seek(0, io.SeekStart); err != nil {
		return
	}
	var atoms []mp4io.Atom
	if atoms, err = mp4io.ReadFileAtoms(d.r, d.reg); err != nil {
		return
	}

	f := &File{Atoms: atoms}
	var moov *mp4io.Movie
	fragmented := false
	for _, atom := range atoms {
		switch v := atom.(type) {
		case *mp4io.Movie:
			if moov == nil {
				moov = v
			}
		case *mp4io.FileType:
			if f.FileType == nil {
				f.FileType = v
			}
		}
		if atom.Tag() == mp4io.MOOF {
			fragmented = true
		}
	}

	if moov == nil {
		err = ErrNoMovie
		return
	}
	if moov.Header == nil {
		err = fmt.Errorf("%w: mvhd not found", ErrNoMovie)
		return
	}

	movie := NewMovie(moov.Header.TimeScale)
	movie.fragmented = fragmented || moov.IsFragmented()
	movie.Meta = moov.Unknowns
	for i, atrack := range moov.Tracks {
		var track *Track
		if track, err = d.newTrack(i, atrack, movie.TimeScale); err != nil {
			return
		}
		movie.Tracks = append(movie.Tracks, track)
	}

	f.Movie = movie
	d.file = f
	d.next = make([]int, len(movie.Tracks))
	return
}

func (d *Demuxer) newTrack(i int, atrack *mp4io.Track, movieTimeScale uint32) (track *Track, err error) {
	if atrack.Header == nil {
		err = fmt.Errorf("mp4: track[%d]: tkhd not found", i)
		return
	}
	if atrack.Media == nil || atrack.Media.Header == nil {
		err = fmt.Errorf("mp4: track[%d]: mdhd not found", i)
		return
	}
	if atrack.Media.Info == nil || atrack.Media.Info.Sample == nil {
		err = fmt.Errorf("mp4: track[%d]: sample table not found", i)
		return
	}

	mdhd := atrack.Media.Header
	track = &Track{
		ID:             atrack.Header.TrackId,
		MovieTimeScale: movieTimeScale,
		MovieDuration:  atrack.Header.Duration,
		MediaTimeScale: mdhd.TimeScale,
		MediaDuration:  mdhd.Duration,
		Language:       mp4io.UnpackLanguage(mdhd.Language),
		Width:          atrack.Header.TrackWidth,
		Height:         atrack.Header.TrackHeight,
		Table:          &SampleTable{},
	}
	if atrack.Media.Handler != nil {
		track.Type = trackTypeOf(atrack.Media.Handler.HandlerType)
	}

	stbl := atrack.Media.Info.Sample
	if stbl.SampleDesc != nil {
		for _, entry := range stbl.SampleDesc.Entries {
			track.Table.AddSampleDescription(sampleDescriptionOf(entry))
		}
	}

	var s *stream
	if s, err = newStream(i, stbl); err != nil {
		return
	}
	var count int
	if count, err = s.sampleCount(); err != nil {
		return
	}
	track.Table.Samples = make([]Sample, 0, count)
	for n := 0; n < count; n++ {
		var sample Sample
		if sample, err = s.current(); err != nil {
			return
		}
		sample.Source = d.src
		if err = track.Table.AppendSample(sample); err != nil {
			err = fmt.Errorf("mp4: track[%d]: sample %d: %w", i, n, err)
			return
		}
		s.incSampleIndex()
	}
	return
}

// ReadSample returns the next sample across all tracks in decode time order
// with its payload. It returns io.EOF after the last sample.
func (d *Demuxer) ReadSample() (track *Track, sample Sample, data []byte, err error) {
	if err = d.probe(); err != nil {
		return
	}

	chosen := -1
	var chosenTime uint64
	for i, t := range d.file.Movie.Tracks {
		if d.next[i] >= t.SampleCount() {
			continue
		}
		tm := ConvertTime(t.Table.Samples[d.next[i]].DTS, t.MediaTimeScale, d.file.Movie.TimeScale)
		if chosen < 0 || tm < chosenTime {
			chosen, chosenTime = i, tm
		}
	}
	if chosen < 0 {
		err = io.EOF
		return
	}

	track = d.file.Movie.Tracks[chosen]
	sample = track.Table.Samples[d.next[chosen]]
	d.next[chosen]++
	data, err = sample.ReadData()
	return
}
