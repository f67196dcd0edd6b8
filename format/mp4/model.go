// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

var (
	ErrNoMovie             = errors.New("mp4: no movie found in the file")
	ErrFragmented          = errors.New("mp4: file is fragmented")
	ErrSampleIndex         = errors.New("mp4: sample index out of range")
	ErrTimestampOutOfRange = errors.New("mp4: timestamp beyond the last sample")
)

const DefaultTimeScale = 1000

type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeAudio
	TrackTypeVideo
	TrackTypeHint
	TrackTypeText
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	case TrackTypeHint:
		return "hint"
	case TrackTypeText:
		return "text"
	}
	return "unknown"
}

var handlerData = mp4io.StringToTag("data")

func trackTypeOf(handler mp4io.Tag) TrackType {
	switch handler {
	case mp4io.SOUN:
		return TrackTypeAudio
	case mp4io.VIDE:
		return TrackTypeVideo
	case mp4io.HINT:
		return TrackTypeHint
	case mp4io.TEXT:
		return TrackTypeText
	}
	return TrackTypeUnknown
}

func (t TrackType) handler() (mp4io.Tag, string) {
	switch t {
	case TrackTypeAudio:
		return mp4io.SOUN, "SoundHandler"
	case TrackTypeVideo:
		return mp4io.VIDE, "VideoHandler"
	case TrackTypeHint:
		return mp4io.HINT, "HintHandler"
	case TrackTypeText:
		return mp4io.TEXT, "TextHandler"
	}
	return handlerData, "DataHandler"
}

// Sample locates one access unit. Source is the stream holding the payload;
// a nil Source means the payload already sits in the output at Offset.
type Sample struct {
	Source           io.ReaderAt
	Offset           int64
	Size             uint32
	Duration         uint32
	CtsDelta         int32
	DescriptionIndex int
	DTS              uint64
	Sync             bool
}

// CTS is the composition timestamp.
func (s Sample) CTS() int64 {
	return int64(s.DTS) + int64(s.CtsDelta)
}

// ReadData loads the sample payload from its source.
func (s Sample) ReadData() (b []byte, err error) {
	if s.Source == nil {
		err = fmt.Errorf("mp4: sample at %d has no data source", s.Offset)
		return
	}
	b = make([]byte, s.Size)
	if _, err = s.Source.ReadAt(b, s.Offset); err != nil {
		err = fmt.Errorf("mp4: read sample at %d: %w", s.Offset, err)
		return
	}
	return
}

// SampleTable holds samples in decode order and the descriptions they
// reference.
type SampleTable struct {
	Samples      []Sample
	Descriptions []SampleDescription
}

// AddSampleDescription registers d and returns its index.
func (st *SampleTable) AddSampleDescription(d SampleDescription) int {
	st.Descriptions = append(st.Descriptions, d)
	return len(st.Descriptions) - 1
}

// AddSample appends s with its DTS set to the end of the previous sample.
func (st *SampleTable) AddSample(s Sample) error {
	s.DTS = st.Duration()
	return st.AppendSample(s)
}

// AppendSample appends s keeping its DTS, which must not precede the DTS of
// the previous sample.
func (st *SampleTable) AppendSample(s Sample) error {
	if s.DescriptionIndex < 0 || s.DescriptionIndex >= len(st.Descriptions) {
		return fmt.Errorf("mp4: sample description index %d with %d descriptions", s.DescriptionIndex, len(st.Descriptions))
	}
	if n := len(st.Samples); n > 0 && s.DTS < st.Samples[n-1].DTS {
		return fmt.Errorf("mp4: sample dts %d precedes %d", s.DTS, st.Samples[n-1].DTS)
	}
	st.Samples = append(st.Samples, s)
	return nil
}

// Duration is the decode end time of the last sample.
func (st *SampleTable) Duration() uint64 {
	if len(st.Samples) == 0 {
		return 0
	}
	last := st.Samples[len(st.Samples)-1]
	return last.DTS + uint64(last.Duration)
}

type Track struct {
	Type           TrackType
	ID             uint32
	MovieTimeScale uint32
	MovieDuration  uint64
	MediaTimeScale uint32
	MediaDuration  uint64
	Language       string
	Width          float64
	Height         float64
	Table          *SampleTable
}

// NewTrack returns a track whose media duration spans the whole table.
func NewTrack(typ TrackType, table *SampleTable, mediaTimeScale uint32) *Track {
	return &Track{
		Type:           typ,
		MediaTimeScale: mediaTimeScale,
		MediaDuration:  table.Duration(),
		Language:       "und",
		Table:          table,
	}
}

func (t *Track) SampleCount() int {
	if t.Table == nil {
		return 0
	}
	return len(t.Table.Samples)
}

func (t *Track) Sample(i int) (s Sample, err error) {
	if i < 0 || i >= t.SampleCount() {
		err = fmt.Errorf("%w: track %d sample %d of %d", ErrSampleIndex, t.ID, i, t.SampleCount())
		return
	}
	s = t.Table.Samples[i]
	return
}

// SampleDescription returns nil when i is out of range.
func (t *Track) SampleDescription(i int) SampleDescription {
	if t.Table == nil || i < 0 || i >= len(t.Table.Descriptions) {
		return nil
	}
	return t.Table.Descriptions[i]
}

var (
	avc1 = mp4io.StringToTag("avc1")
	hvc1 = mp4io.StringToTag("hvc1")
	hev1 = mp4io.StringToTag("hev1")
)

// Codec identifies the codec of the first sample description, or zero.
func (t *Track) Codec() av.CodecType {
	d := t.SampleDescription(0)
	if d == nil {
		return 0
	}
	if cd, ok := d.(av.CodecData); ok {
		return cd.Type()
	}
	switch d.Format() {
	case avc1:
		return av.H264
	case hvc1, hev1:
		return av.H265
	}
	return 0
}

// SampleIndexForTimeStamp returns the index of the sample whose decode
// interval contains ts, given in timescale units. A ts falling in a gap
// selects the next sample.
func (t *Track) SampleIndexForTimeStamp(ts uint64, timescale uint32) (index int, err error) {
	if timescale == 0 {
		err = fmt.Errorf("mp4: track %d: zero timescale", t.ID)
		return
	}
	mts := ConvertTime(ts, timescale, t.MediaTimeScale)
	n := t.SampleCount()
	index = sort.Search(n, func(i int) bool {
		s := t.Table.Samples[i]
		return s.DTS+uint64(s.Duration) > mts
	})
	if index == n {
		err = fmt.Errorf("%w: track %d time %d/%d", ErrTimestampOutOfRange, t.ID, ts, timescale)
	}
	return
}

// NearestSyncSampleIndex snaps i to the closest sync sample at or before i,
// or at or after i when before is false. i is returned unchanged when no
// sync sample lies in that direction.
func (t *Track) NearestSyncSampleIndex(i int, before bool) int {
	n := t.SampleCount()
	if n == 0 {
		return i
	}
	if i < 0 {
		i = 0
	} else if i >= n {
		i = n - 1
	}
	samples := t.Table.Samples
	if before {
		for j := i; j >= 0; j-- {
			if samples[j].Sync {
				return j
			}
		}
		return i
	}
	for j := i; j < n; j++ {
		if samples[j].Sync {
			return j
		}
	}
	return i
}

type Movie struct {
	TimeScale uint32
	Tracks    []*Track
	// Meta holds the moov children other than trak and mvhd, in file order.
	Meta []mp4io.Atom

	fragmented bool
}

func NewMovie(timeScale uint32) *Movie {
	if timeScale == 0 {
		timeScale = DefaultTimeScale
	}
	return &Movie{TimeScale: timeScale}
}

// AddTrack appends t, assigning the next free id when t.ID is zero and
// expressing its duration in the movie timescale.
func (m *Movie) AddTrack(t *Track) {
	if t.ID == 0 {
		t.ID = m.nextTrackID()
	}
	t.MovieTimeScale = m.TimeScale
	t.MovieDuration = ConvertTime(t.MediaDuration, t.MediaTimeScale, m.TimeScale)
	m.Tracks = append(m.Tracks, t)
}

func (m *Movie) nextTrackID() uint32 {
	var id uint32
	for _, t := range m.Tracks {
		if t.ID > id {
			id = t.ID
		}
	}
	return id + 1
}

// Track returns the first track of type typ.
func (m *Movie) Track(typ TrackType) *Track {
	for _, t := range m.Tracks {
		if t.Type == typ {
			return t
		}
	}
	return nil
}

func (m *Movie) TrackByID(id uint32) *Track {
	for _, t := range m.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Duration is the longest track duration in the movie timescale.
func (m *Movie) Duration() (d uint64) {
	for _, t := range m.Tracks {
		if t.MovieDuration > d {
			d = t.MovieDuration
		}
	}
	return
}

func (m *Movie) HasFragments() bool {
	return m.fragmented
}

// File is a parsed or to-be-written MP4 file. Atoms lists the top level of a
// parsed file; Extra atoms are written right after ftyp.
type File struct {
	FileType *mp4io.FileType
	Movie    *Movie
	Atoms    []mp4io.Atom
	Extra    []mp4io.Atom
}

// Atom returns the first top-level atom with tag.
func (f *File) Atom(tag mp4io.Tag) mp4io.Atom {
	for _, atom := range f.Atoms {
		if atom.Tag() == tag {
			return atom
		}
	}
	return nil
}
