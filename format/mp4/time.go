// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"math"
	"math/bits"
	"time"
)

// ConvertTime rescales v from one timescale to another, truncating. The
// product is kept in 128 bits; results beyond 64 bits saturate.
func ConvertTime(v uint64, from, to uint32) uint64 {
	if from == to {
		return v
	}
	if from == 0 {
		return 0
	}
	hi, lo := bits.Mul64(v, uint64(to))
	if hi >= uint64(from) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(from))
	return q
}

func tsToTime(ts uint64, timeScale uint32) time.Duration {
	if timeScale == 0 {
		return 0
	}
	return time.Duration(ConvertTime(ts, timeScale, uint32(time.Second/time.Millisecond))) * time.Millisecond
}
