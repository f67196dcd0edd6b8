// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"
	"math"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
)

// SampleDescription is the codec configuration shared by a run of samples.
// Descriptions are immutable; Clone returns an independent copy.
type SampleDescription interface {
	Format() mp4io.Tag
	Clone() SampleDescription
	Atom() mp4io.Atom
}

// MPEGAudioSampleDescription describes an mp4a entry with an MPEG-4 audio
// elementary stream descriptor.
type MPEGAudioSampleDescription struct {
	ObjectType   uint8
	SampleRate   uint32
	SampleSize   uint16
	ChannelCount uint16
	DecoderInfo  []byte
	BufferSize   uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

// NewAACSampleDescription returns the description of an AAC-LC stream.
func NewAACSampleDescription(samplingFrequencyIndex, channelConfiguration int) *MPEGAudioSampleDescription {
	rate := 0
	if samplingFrequencyIndex >= 0 && samplingFrequencyIndex < len(aac.SamplingFrequencies) {
		rate = aac.SamplingFrequencies[samplingFrequencyIndex]
	}
	return &MPEGAudioSampleDescription{
		ObjectType:   mp4io.ObjectTypeMPEG4Audio,
		SampleRate:   uint32(rate),
		SampleSize:   16,
		ChannelCount: uint16(channelConfiguration),
		DecoderInfo:  aac.MakeDecoderSpecificInfo(samplingFrequencyIndex, channelConfiguration),
		BufferSize:   6144,
		MaxBitrate:   128000,
		AvgBitrate:   128000,
	}
}

// NewAudioSampleDescription returns the description of the stream cd
// describes. Only AAC is supported.
func NewAudioSampleDescription(cd av.AudioCodecData) (d *MPEGAudioSampleDescription, err error) {
	if cd.Type() != av.AAC {
		err = fmt.Errorf("mp4: unsupported audio codec %v", cd.Type())
		return
	}
	idx := aac.SamplingFrequencyIndex(cd.SampleRate())
	if idx < 0 {
		err = fmt.Errorf("mp4: unsupported AAC sample rate %d", cd.SampleRate())
		return
	}
	d = NewAACSampleDescription(idx, cd.ChannelLayout().Config())
	return
}

func (d *MPEGAudioSampleDescription) Format() mp4io.Tag {
	return mp4io.MP4A
}

func (d *MPEGAudioSampleDescription) Clone() SampleDescription {
	c := *d
	c.DecoderInfo = append([]byte(nil), d.DecoderInfo...)
	return &c
}

func (d *MPEGAudioSampleDescription) Atom() mp4io.Atom {
	desc := &mp4io.MP4ADesc{
		DataRefIdx:       1,
		NumberOfChannels: int16(d.ChannelCount),
		SampleSize:       int16(d.SampleSize),
		Conf: &mp4io.ElemStreamDesc{
			ObjectType: d.ObjectType,
			StreamType: mp4io.StreamTypeAudio,
			BufferSize: d.BufferSize,
			MaxBitrate: d.MaxBitrate,
			AvgBitrate: d.AvgBitrate,
			DecConfig:  append([]byte(nil), d.DecoderInfo...),
		},
	}
	// the 16.16 field cannot carry 88.2 and 96 kHz; readers take the
	// rate from the decoder config then
	if d.SampleRate <= math.MaxUint16 {
		desc.SampleRate = float64(d.SampleRate)
	}
	return desc
}

func (d *MPEGAudioSampleDescription) Type() av.CodecType {
	return av.AAC
}

func (d *MPEGAudioSampleDescription) ChannelLayout() av.ChannelLayout {
	return av.ChannelLayoutFromConfig(int(d.ChannelCount))
}

var _ av.CodecData = (*MPEGAudioSampleDescription)(nil)

// RawSampleDescription keeps a sample entry as opaque bytes.
type RawSampleDescription struct {
	atom *mp4io.Dummy
}

// NewRawSampleDescription snapshots entry into a detached copy.
func NewRawSampleDescription(entry mp4io.Atom) *RawSampleDescription {
	b := make([]byte, entry.Len())
	entry.Marshal(b)
	return &RawSampleDescription{atom: &mp4io.Dummy{Tag_: entry.Tag(), Data: b}}
}

func (d *RawSampleDescription) Format() mp4io.Tag {
	return d.atom.Tag_
}

func (d *RawSampleDescription) Clone() SampleDescription {
	return &RawSampleDescription{atom: &mp4io.Dummy{Tag_: d.atom.Tag_, Data: append([]byte(nil), d.atom.Data...)}}
}

func (d *RawSampleDescription) Atom() mp4io.Atom {
	return d.atom
}

// Bytes is the encoded entry, header included.
func (d *RawSampleDescription) Bytes() []byte {
	return d.atom.Data
}

// sampleDescriptionOf maps a decoded stsd entry onto the model. mp4a entries
// carrying MPEG-4 audio become MPEGAudioSampleDescription, anything else is
// kept raw.
func sampleDescriptionOf(entry mp4io.Atom) SampleDescription {
	ad, ok := entry.(*mp4io.MP4ADesc)
	if !ok || ad.Conf == nil || ad.Conf.ObjectType != mp4io.ObjectTypeMPEG4Audio || len(ad.Unknowns) > 0 || len(ad.Extension) > 0 {
		return NewRawSampleDescription(entry)
	}
	d := &MPEGAudioSampleDescription{
		ObjectType:   ad.Conf.ObjectType,
		SampleRate:   uint32(ad.SampleRate),
		SampleSize:   uint16(ad.SampleSize),
		ChannelCount: uint16(ad.NumberOfChannels),
		DecoderInfo:  append([]byte(nil), ad.Conf.DecConfig...),
		BufferSize:   ad.Conf.BufferSize,
		MaxBitrate:   ad.Conf.MaxBitrate,
		AvgBitrate:   ad.Conf.AvgBitrate,
	}
	if _, idx, _, err := aac.ParseDecoderSpecificInfo(d.DecoderInfo); err == nil && idx < len(aac.SamplingFrequencies) {
		d.SampleRate = uint32(aac.SamplingFrequencies[idx])
	}
	return d
}
