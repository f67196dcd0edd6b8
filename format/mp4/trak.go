// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"
	"math"

	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

// Chunk limits.
const (
	maxChunkSamples  = 1024
	maxChunkDuration = 1 // seconds
)

// chunk is a run of consecutive samples of one track stored contiguously.
type chunk struct {
	track  *Track
	first  int
	count  int
	size   int64
	offset int64
}

// planChunks groups the samples of t. A chunk closes after one second of
// media, after maxChunkSamples samples or when the description changes.
func planChunks(t *Track) (chunks []*chunk) {
	var c *chunk
	var start uint64
	limit := uint64(t.MediaTimeScale) * maxChunkDuration
	for i, s := range t.Table.Samples {
		if c != nil {
			prev := t.Table.Samples[i-1]
			if c.count >= maxChunkSamples || s.DTS-start >= limit || s.DescriptionIndex != prev.DescriptionIndex {
				c = nil
			}
		}
		if c == nil {
			c = &chunk{track: t, first: i}
			start = s.DTS
			chunks = append(chunks, c)
		}
		c.count++
		c.size += int64(s.Size)
	}
	return
}

// sampleChunks puts every sample in its own chunk at the sample offset.
func sampleChunks(t *Track) (chunks []*chunk) {
	for i, s := range t.Table.Samples {
		chunks = append(chunks, &chunk{track: t, first: i, count: 1, size: int64(s.Size), offset: s.Offset})
	}
	return
}

func (c *chunk) startTime() uint64 {
	return ConvertTime(c.track.Table.Samples[c.first].DTS, c.track.MediaTimeScale, 1000000)
}

func needsChunkOffset64(chunks []*chunk) bool {
	for _, c := range chunks {
		if c.offset > math.MaxUint32 {
			return true
		}
	}
	return false
}

// newSampleTableAtom encodes the sample table of t laid out as chunks.
func newSampleTableAtom(t *Track, chunks []*chunk) (stbl *mp4io.SampleTable, err error) {
	samples := t.Table.Samples

	stbl = &mp4io.SampleTable{
		SampleDesc:    &mp4io.SampleDesc{},
		TimeToSample:  &mp4io.TimeToSample{},
		SampleToChunk: &mp4io.SampleToChunk{},
		SampleSize:    &mp4io.SampleSize{},
	}
	for _, d := range t.Table.Descriptions {
		stbl.SampleDesc.Entries = append(stbl.SampleDesc.Entries, d.Atom())
	}

	var sttsEntry *mp4io.TimeToSampleEntry
	for _, s := range samples {
		if sttsEntry == nil || s.Duration != sttsEntry.Duration {
			stbl.TimeToSample.Entries = append(stbl.TimeToSample.Entries, mp4io.TimeToSampleEntry{Duration: s.Duration})
			sttsEntry = &stbl.TimeToSample.Entries[len(stbl.TimeToSample.Entries)-1]
		}
		sttsEntry.Count++
	}

	hasCts, negativeCts, hasNonSync := false, false, false
	for _, s := range samples {
		if s.CtsDelta != 0 {
			hasCts = true
		}
		if s.CtsDelta < 0 {
			negativeCts = true
		}
		if !s.Sync {
			hasNonSync = true
		}
	}
	if hasCts {
		table := &mp4io.CompositionOffset{}
		if negativeCts {
			table.Version = 1
		}
		var cttsEntry *mp4io.CompositionOffsetEntry
		for _, s := range samples {
			if cttsEntry == nil || s.CtsDelta != cttsEntry.Offset {
				table.Entries = append(table.Entries, mp4io.CompositionOffsetEntry{Offset: s.CtsDelta})
				cttsEntry = &table.Entries[len(table.Entries)-1]
			}
			cttsEntry.Count++
		}
		stbl.CompositionOffset = table
	}
	if hasNonSync {
		stbl.SyncSample = &mp4io.SyncSample{}
		for i, s := range samples {
			if s.Sync {
				stbl.SyncSample.Entries = append(stbl.SyncSample.Entries, uint32(i+1))
			}
		}
	}

	var stscEntry *mp4io.SampleToChunkEntry
	for i, c := range chunks {
		descId := uint32(samples[c.first].DescriptionIndex + 1)
		if stscEntry == nil || uint32(c.count) != stscEntry.SamplesPerChunk || descId != stscEntry.SampleDescId {
			stbl.SampleToChunk.Entries = append(stbl.SampleToChunk.Entries, mp4io.SampleToChunkEntry{
				FirstChunk:      uint32(i + 1),
				SamplesPerChunk: uint32(c.count),
				SampleDescId:    descId,
			})
			stscEntry = &stbl.SampleToChunk.Entries[len(stbl.SampleToChunk.Entries)-1]
		}
	}

	constant := len(samples) > 0
	for _, s := range samples {
		if s.Size != samples[0].Size {
			constant = false
			break
		}
	}
	if constant && samples[0].Size != 0 {
		stbl.SampleSize.SampleSize = samples[0].Size
		stbl.SampleSize.SampleCount = uint32(len(samples))
	} else {
		stbl.SampleSize.Entries = make([]uint32, len(samples))
		for i, s := range samples {
			stbl.SampleSize.Entries[i] = s.Size
		}
	}

	if needsChunkOffset64(chunks) {
		stbl.ChunkOffset64 = &mp4io.ChunkOffset64{}
		for _, c := range chunks {
			stbl.ChunkOffset64.Entries = append(stbl.ChunkOffset64.Entries, uint64(c.offset))
		}
	} else {
		stbl.ChunkOffset = &mp4io.ChunkOffset{}
		for _, c := range chunks {
			stbl.ChunkOffset.Entries = append(stbl.ChunkOffset.Entries, uint32(c.offset))
		}
	}

	total := 0
	for _, c := range chunks {
		total += c.count
	}
	if total != len(samples) {
		err = fmt.Errorf("mp4: track %d: chunks hold %d of %d samples", t.ID, total, len(samples))
	}
	return
}

// newTrackAtom encodes t as a trak with its samples laid out as chunks.
func newTrackAtom(t *Track, chunks []*chunk) (trak *mp4io.Track, err error) {
	var stbl *mp4io.SampleTable
	if stbl, err = newSampleTableAtom(t, chunks); err != nil {
		return
	}

	handlerType, handlerName := t.Type.handler()
	trak = &mp4io.Track{
		Header: &mp4io.TrackHeader{
			Flags:       mp4io.TKHD_ENABLED | mp4io.TKHD_IN_MOVIE | mp4io.TKHD_IN_PREVIEW,
			TrackId:     t.ID,
			Duration:    t.MovieDuration,
			Matrix:      mp4io.IdentityMatrix,
			TrackWidth:  t.Width,
			TrackHeight: t.Height,
		},
		Media: &mp4io.Media{
			Header: &mp4io.MediaHeader{
				TimeScale: t.MediaTimeScale,
				Duration:  t.MediaDuration,
				Language:  mp4io.PackLanguage(t.Language),
			},
			Handler: &mp4io.HandlerRefer{
				HandlerType: handlerType,
				Name:        handlerName,
			},
			Info: &mp4io.MediaInfo{
				Data:   mp4io.NewSelfContainedDataInfo(),
				Sample: stbl,
			},
		},
	}

	switch t.Type {
	case TrackTypeAudio:
		trak.Header.Volume = 1
		trak.Header.AlternateGroup = 1
		trak.Media.Info.Sound = &mp4io.SoundMediaInfo{}
	case TrackTypeVideo:
		trak.Media.Info.Video = &mp4io.VideoMediaInfo{Flags: 0x000001}
	}
	return
}

// newMovieAtom encodes m with the chunk layout of each track.
func newMovieAtom(m *Movie, layout map[*Track][]*chunk) (moov *mp4io.Movie, err error) {
	var nextTrackId uint32 = 1
	for _, t := range m.Tracks {
		if t.ID >= nextTrackId {
			nextTrackId = t.ID + 1
		}
	}

	moov = &mp4io.Movie{
		Header: mp4io.NewMovieHeader(m.TimeScale, m.Duration(), nextTrackId),
	}
	for _, t := range m.Tracks {
		var trak *mp4io.Track
		if trak, err = newTrackAtom(t, layout[t]); err != nil {
			return
		}
		moov.Tracks = append(moov.Tracks, trak)
	}
	moov.Unknowns = append(moov.Unknowns, m.Meta...)
	return
}
