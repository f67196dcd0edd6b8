// Package clip
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package clip

import (
	"fmt"

	"github.com/teocci/go-mp4clip/format/mp4"
)

// TrimTrack returns a track holding samples first to last of src, both
// inclusive, rebased to start at time zero. Payloads are not copied: the
// new samples read from the sources of src, which must stay open until the
// trimmed track has been written.
func TrimTrack(src *mp4.Track, first, last int) (track *mp4.Track, err error) {
	if last < first {
		err = fmt.Errorf("clip: track %d: last sample %d before first %d", src.ID, last, first)
		return
	}

	var head, tail mp4.Sample
	if head, err = src.Sample(first); err != nil {
		return
	}
	if tail, err = src.Sample(last); err != nil {
		return
	}
	dtsOffset := head.DTS
	mediaDuration := tail.DTS + uint64(tail.Duration) - dtsOffset

	table := &mp4.SampleTable{Samples: make([]mp4.Sample, 0, last-first+1)}
	for i := 0; ; i++ {
		d := src.SampleDescription(i)
		if d == nil {
			break
		}
		table.AddSampleDescription(d.Clone())
	}

	for i := first; i <= last; i++ {
		var s mp4.Sample
		if s, err = src.Sample(i); err != nil {
			return
		}
		s.DTS -= dtsOffset
		if err = table.AppendSample(s); err != nil {
			err = fmt.Errorf("clip: track %d: sample %d: %w", src.ID, i, err)
			return
		}
	}

	track = &mp4.Track{
		Type:           src.Type,
		ID:             src.ID,
		MovieTimeScale: src.MovieTimeScale,
		MovieDuration:  mp4.ConvertTime(mediaDuration, src.MediaTimeScale, src.MovieTimeScale),
		MediaTimeScale: src.MediaTimeScale,
		MediaDuration:  mediaDuration,
		Language:       src.Language,
		Width:          src.Width,
		Height:         src.Height,
		Table:          table,
	}
	return
}
