// Package clip
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package clip

import (
	"errors"
	"fmt"

	"github.com/teocci/go-mp4clip/format/mp4"
)

// TrackRange is the inclusive sample range resolved for one track.
type TrackRange struct {
	TrackID uint32
	First   int
	Last    int
}

// Range is the extraction window actually achievable on sync boundaries.
// Start and End are expressed in TimeScale.
type Range struct {
	Start     uint64
	End       uint64
	TimeScale uint32
	Tracks    []TrackRange
}

// Duration is End - Start, or zero for a degenerate window.
func (r Range) Duration() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// SelectExtractionRange adjusts [start, end) given in timescale units to the
// samples of every track of movie, in track order. The start snaps back to
// the previous sync sample; when that moves it, the window switches to the
// media timescale of that track. Each track works from the window left by
// the previous one, so the returned window is the one of the last track.
// end < start selects a single sample. An end beyond a track clamps to its
// last sample. A track whose samples all end before the start stops the
// walk and the window of the previous tracks is kept.
func SelectExtractionRange(movie *mp4.Movie, start, end uint64, timescale uint32) (r Range, err error) {
	r = Range{Start: start, End: end, TimeScale: timescale}
	for _, track := range movie.Tracks {
		mts := track.MediaTimeScale
		tr := TrackRange{TrackID: track.ID}

		if tr.First, err = track.SampleIndexForTimeStamp(r.Start, r.TimeScale); err != nil {
			if len(r.Tracks) > 0 && errors.Is(err, mp4.ErrTimestampOutOfRange) {
				err = nil
				break
			}
			err = fmt.Errorf("clip: track %d: start: %w", track.ID, err)
			return
		}
		if sync := track.NearestSyncSampleIndex(tr.First, true); sync != tr.First {
			tr.First = sync
			r.Start = track.Table.Samples[sync].DTS
			if r.TimeScale != mts {
				r.End = mp4.ConvertTime(r.End, r.TimeScale, mts)
				r.TimeScale = mts
			}
		}

		if r.End < r.Start {
			tr.Last = tr.First
			if r.TimeScale != mts {
				r.Start = mp4.ConvertTime(r.Start, r.TimeScale, mts)
				r.TimeScale = mts
			}
			r.End = r.Start
		} else {
			if tr.Last, err = track.SampleIndexForTimeStamp(r.End, r.TimeScale); err != nil {
				if !errors.Is(err, mp4.ErrTimestampOutOfRange) {
					err = fmt.Errorf("clip: track %d: end: %w", track.ID, err)
					return
				}
				err = nil
				tr.Last = track.SampleCount() - 1
			}
			r.End = track.Table.Samples[tr.Last].DTS
			if r.TimeScale != mts {
				r.Start = mp4.ConvertTime(r.Start, r.TimeScale, mts)
				r.TimeScale = mts
			}
		}

		r.Tracks = append(r.Tracks, tr)
	}
	return
}
