// Package av
// Defines the codec vocabulary shared by the container readers and writers.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package av

import (
	"fmt"
)

// ChannelLayout is a bit set of speaker positions.
type ChannelLayout uint16

func (cl ChannelLayout) String() string {
	return fmt.Sprintf("%dch", cl.Count())
}

const (
	CH_FRONT_CENTER = ChannelLayout(1 << iota)
	CH_FRONT_LEFT
	CH_FRONT_RIGHT
	CH_BACK_CENTER
	CH_BACK_LEFT
	CH_BACK_RIGHT
	CH_SIDE_LEFT
	CH_SIDE_RIGHT
	CH_LOW_FREQ

	CH_MONO     = CH_FRONT_CENTER
	CH_STEREO   = CH_FRONT_LEFT | CH_FRONT_RIGHT
	CH_SURROUND = CH_STEREO | CH_FRONT_CENTER
	CH_4_0      = CH_SURROUND | CH_BACK_CENTER
	CH_5_0      = CH_SURROUND | CH_BACK_LEFT | CH_BACK_RIGHT
	CH_5_1      = CH_5_0 | CH_LOW_FREQ
	CH_7_1      = CH_5_1 | CH_SIDE_LEFT | CH_SIDE_RIGHT
)

func (cl ChannelLayout) Count() (n int) {
	for cl != 0 {
		n++
		cl = (cl - 1) & cl
	}
	return
}

// ChannelLayoutFromConfig maps an MPEG-4 audio channel configuration
// (ISO 14496-3 table 1.19) to a layout. Unknown values map to zero.
func ChannelLayoutFromConfig(config int) ChannelLayout {
	switch config {
	case 1:
		return CH_MONO
	case 2:
		return CH_STEREO
	case 3:
		return CH_SURROUND
	case 4:
		return CH_4_0
	case 5:
		return CH_5_0
	case 6:
		return CH_5_1
	case 7:
		return CH_7_1
	}
	return 0
}

// Config is the MPEG-4 audio channel configuration of cl, or zero when
// no configuration matches.
func (cl ChannelLayout) Config() int {
	for config := 1; config <= 7; config++ {
		if ChannelLayoutFromConfig(config) == cl {
			return config
		}
	}
	return 0
}

// CodecType identifies a codec; the low bit marks audio codecs.
type CodecType uint32

const codecTypeAudioBit = 0x1

var (
	H264 = CodecType(1 << 1)
	H265 = CodecType(2 << 1)
	AAC  = CodecType(1<<1 | codecTypeAudioBit)
)

func (ct CodecType) String() string {
	switch ct {
	case H264:
		return "H264"
	case H265:
		return "H265"
	case AAC:
		return "AAC"
	}
	return ""
}

func (ct CodecType) IsAudio() bool {
	return ct&codecTypeAudioBit != 0
}

// CodecData describes the decoder configuration carried by a sample
// description or a frame header.
type CodecData interface {
	Type() CodecType
}

type AudioCodecData interface {
	CodecData
	SampleRate() int
	ChannelLayout() ChannelLayout
}
