// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"

	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

// stream walks the sample table of one trak in decode order, tracking the
// chunk, stts, ctts and stss cursors of the current sample.
type stream struct {
	idx    int
	sample *mp4io.SampleTable

	sampleIndex         int
	sampleOffsetInChunk int64
	syncSampleIndex     int

	dts                    uint64
	sttsEntryIndex         int
	sampleIndexInSttsEntry int

	cttsEntryIndex         int
	sampleIndexInCttsEntry int

	chunkGroupIndex    int
	chunkIndex         int
	sampleIndexInChunk int
}

func newStream(idx int, sample *mp4io.SampleTable) (s *stream, err error) {
	switch {
	case sample.TimeToSample == nil:
		err = fmt.Errorf("mp4: track[%d]: stts not found", idx)
	case sample.SampleToChunk == nil:
		err = fmt.Errorf("mp4: track[%d]: stsc not found", idx)
	case sample.SampleSize == nil:
		err = fmt.Errorf("mp4: track[%d]: stsz not found", idx)
	case sample.ChunkOffset == nil && sample.ChunkOffset64 == nil:
		err = fmt.Errorf("mp4: track[%d]: stco not found", idx)
	}
	if err != nil {
		return
	}
	s = &stream{idx: idx, sample: sample}
	return
}

func (s *stream) chunkCount() int {
	if s.sample.ChunkOffset64 != nil {
		return len(s.sample.ChunkOffset64.Entries)
	}
	return len(s.sample.ChunkOffset.Entries)
}

func (s *stream) chunkOffset(i int) int64 {
	if s.sample.ChunkOffset64 != nil {
		return int64(s.sample.ChunkOffset64.Entries[i])
	}
	return int64(s.sample.ChunkOffset.Entries[i])
}

func (s *stream) hasCompositionOffsets() bool {
	return s.sample.CompositionOffset != nil && len(s.sample.CompositionOffset.Entries) > 0
}

// sampleCount checks that stsc, stts and ctts cover every sample listed in
// stsz and returns that count.
func (s *stream) sampleCount() (count int, err error) {
	count = s.sample.SampleSize.Count()

	chunked := 0
	chunkGroupIndex := 0
	entries := s.sample.SampleToChunk.Entries
	if len(entries) > 0 {
		for chunkIndex := 0; chunkIndex < s.chunkCount(); chunkIndex++ {
			if chunkGroupIndex+1 < len(entries) && uint32(chunkIndex+1) == entries[chunkGroupIndex+1].FirstChunk {
				chunkGroupIndex++
			}
			chunked += int(entries[chunkGroupIndex].SamplesPerChunk)
		}
	}
	if chunked < count {
		err = fmt.Errorf("mp4: track[%d]: chunks hold %d of %d samples", s.idx, chunked, count)
		return
	}

	timed := 0
	for _, entry := range s.sample.TimeToSample.Entries {
		timed += int(entry.Count)
	}
	if timed < count {
		err = fmt.Errorf("mp4: track[%d]: stts times %d of %d samples", s.idx, timed, count)
		return
	}

	if s.hasCompositionOffsets() {
		offset := 0
		for _, entry := range s.sample.CompositionOffset.Entries {
			offset += int(entry.Count)
		}
		if offset < count {
			err = fmt.Errorf("mp4: track[%d]: ctts covers %d of %d samples", s.idx, offset, count)
			return
		}
	}
	return
}

func (s *stream) sampleSize() uint32 {
	return s.sample.SampleSize.Size(s.sampleIndex)
}

// current returns the sample under the cursor. sampleCount must have
// validated the table.
func (s *stream) current() (sample Sample, err error) {
	s.skipEmptyEntries()
	if s.chunkIndex >= s.chunkCount() {
		err = fmt.Errorf("mp4: track[%d]: sample %d has no chunk", s.idx, s.sampleIndex)
		return
	}
	entry := s.sample.SampleToChunk.Entries[s.chunkGroupIndex]
	if entry.SampleDescId == 0 {
		err = fmt.Errorf("mp4: track[%d]: chunk %d has no sample description", s.idx, s.chunkIndex+1)
		return
	}

	sample.Offset = s.chunkOffset(s.chunkIndex) + s.sampleOffsetInChunk
	sample.Size = s.sampleSize()
	sample.Duration = s.sample.TimeToSample.Entries[s.sttsEntryIndex].Duration
	sample.DTS = s.dts
	sample.DescriptionIndex = int(entry.SampleDescId) - 1

	if s.hasCompositionOffsets() {
		sample.CtsDelta = s.sample.CompositionOffset.Entries[s.cttsEntryIndex].Offset
	}

	if s.sample.SyncSample == nil {
		sample.Sync = true
	} else {
		entries := s.sample.SyncSample.Entries
		for s.syncSampleIndex < len(entries) && entries[s.syncSampleIndex]-1 < uint32(s.sampleIndex) {
			s.syncSampleIndex++
		}
		sample.Sync = s.syncSampleIndex < len(entries) && entries[s.syncSampleIndex]-1 == uint32(s.sampleIndex)
	}
	return
}

// skipEmptyEntries moves the cursors past chunks and table runs that hold
// no samples.
func (s *stream) skipEmptyEntries() {
	chunks := s.sample.SampleToChunk.Entries
	for s.chunkIndex < s.chunkCount() && s.sampleIndexInChunk == 0 && chunks[s.chunkGroupIndex].SamplesPerChunk == 0 {
		s.chunkIndex++
		if s.chunkGroupIndex+1 < len(chunks) && uint32(s.chunkIndex+1) == chunks[s.chunkGroupIndex+1].FirstChunk {
			s.chunkGroupIndex++
		}
	}
	stts := s.sample.TimeToSample.Entries
	for s.sttsEntryIndex+1 < len(stts) && stts[s.sttsEntryIndex].Count == 0 {
		s.sttsEntryIndex++
	}
	if s.hasCompositionOffsets() {
		ctts := s.sample.CompositionOffset.Entries
		for s.cttsEntryIndex+1 < len(ctts) && ctts[s.cttsEntryIndex].Count == 0 {
			s.cttsEntryIndex++
		}
	}
}

func (s *stream) incSampleIndex() {
	s.sampleIndexInChunk++
	if uint32(s.sampleIndexInChunk) >= s.sample.SampleToChunk.Entries[s.chunkGroupIndex].SamplesPerChunk {
		s.chunkIndex++
		s.sampleIndexInChunk = 0
		s.sampleOffsetInChunk = 0
	} else {
		s.sampleOffsetInChunk += int64(s.sampleSize())
	}

	if s.chunkGroupIndex+1 < len(s.sample.SampleToChunk.Entries) &&
		uint32(s.chunkIndex+1) == s.sample.SampleToChunk.Entries[s.chunkGroupIndex+1].FirstChunk {
		s.chunkGroupIndex++
	}

	sttsEntry := s.sample.TimeToSample.Entries[s.sttsEntryIndex]
	s.dts += uint64(sttsEntry.Duration)
	s.sampleIndexInSttsEntry++
	if uint32(s.sampleIndexInSttsEntry) >= sttsEntry.Count {
		s.sampleIndexInSttsEntry = 0
		s.sttsEntryIndex++
	}

	if s.hasCompositionOffsets() {
		s.sampleIndexInCttsEntry++
		if uint32(s.sampleIndexInCttsEntry) >= s.sample.CompositionOffset.Entries[s.cttsEntryIndex].Count {
			s.sampleIndexInCttsEntry = 0
			s.cttsEntryIndex++
		}
	}

	s.sampleIndex++
}
