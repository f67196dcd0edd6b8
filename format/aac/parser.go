// Package aac
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package aac

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/utils/bits"
)

const (
	BufferSize       = 8192
	ADTSHeaderLength = 7
	ADTSCRCLength    = 2
	SamplesPerFrame  = 1024
)

var (
	ErrNeedMoreData = errors.New("aac: need more data")
	ErrInvalidFrame = errors.New("aac: invalid frame")
)

// SamplingFrequencies is indexed by the 4-bit sampling_frequency_index.
var SamplingFrequencies = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// SamplingFrequencyIndex returns the index of rate in SamplingFrequencies,
// or -1.
func SamplingFrequencyIndex(rate int) int {
	for i, f := range SamplingFrequencies {
		if f == rate {
			return i
		}
	}
	return -1
}

// FrameInfo is the decoded ADTS header of one frame.
type FrameInfo struct {
	Profile                int // ADTS profile, object type minus one
	SamplingFrequencyIndex int
	SamplingFrequency      int
	ChannelConfiguration   int
	FrameLength            int // raw payload length, header excluded
	HeaderLength           int
}

func (fi FrameInfo) ObjectType() int {
	return fi.Profile + 1
}

func (fi FrameInfo) Type() av.CodecType {
	return av.AAC
}

func (fi FrameInfo) SampleRate() int {
	return fi.SamplingFrequency
}

func (fi FrameInfo) ChannelLayout() av.ChannelLayout {
	return av.ChannelLayoutFromConfig(fi.ChannelConfiguration)
}

var _ av.AudioCodecData = FrameInfo{}

// Frame is one ADTS frame with its header stripped.
type Frame struct {
	Info FrameInfo
	Data []byte
}

// ParseADTSHeader decodes the fixed and variable ADTS header found at b[0:].
// b must hold at least ADTSHeaderLength bytes.
func ParseADTSHeader(b []byte) (info FrameInfo, err error) {
	if len(b) < ADTSHeaderLength {
		err = ErrNeedMoreData
		return
	}

	br := &bits.Reader{R: bytes.NewReader(b[:ADTSHeaderLength])}
	var syncWord, layer, protectionAbsent uint
	var frameLength uint
	if syncWord, err = br.ReadBits(12); err != nil {
		return
	}
	if syncWord != 0xfff {
		err = fmt.Errorf("%w: bad sync word %03x", ErrInvalidFrame, syncWord)
		return
	}
	if _, err = br.ReadBits(1); err != nil { // id
		return
	}
	if layer, err = br.ReadBits(2); err != nil {
		return
	}
	if layer != 0 {
		err = fmt.Errorf("%w: layer %d", ErrInvalidFrame, layer)
		return
	}
	if protectionAbsent, err = br.ReadBits(1); err != nil {
		return
	}

	var v uint
	if v, err = br.ReadBits(2); err != nil {
		return
	}
	info.Profile = int(v)
	if v, err = br.ReadBits(4); err != nil {
		return
	}
	if int(v) >= len(SamplingFrequencies) {
		err = fmt.Errorf("%w: sampling frequency index %d", ErrInvalidFrame, v)
		return
	}
	info.SamplingFrequencyIndex = int(v)
	info.SamplingFrequency = SamplingFrequencies[v]
	if _, err = br.ReadBits(1); err != nil { // private bit
		return
	}
	if v, err = br.ReadBits(3); err != nil {
		return
	}
	info.ChannelConfiguration = int(v)
	if _, err = br.ReadBits(4); err != nil { // original/copy, home, copyright bits
		return
	}
	if frameLength, err = br.ReadBits(13); err != nil {
		return
	}

	info.HeaderLength = ADTSHeaderLength
	if protectionAbsent == 0 {
		info.HeaderLength += ADTSCRCLength
	}
	if int(frameLength) < info.HeaderLength {
		err = fmt.Errorf("%w: frame length %d", ErrInvalidFrame, frameLength)
		return
	}
	info.FrameLength = int(frameLength) - info.HeaderLength
	return
}

// Parser scans a byte stream for ADTS frames. Data is pushed with Feed and
// complete frames are pulled with FindFrame.
type Parser struct {
	buf   []byte
	start int
	end   int
}

func NewParser() *Parser {
	return &Parser{buf: make([]byte, BufferSize)}
}

// BytesFree is the number of bytes Feed currently accepts.
func (p *Parser) BytesFree() int {
	return len(p.buf) - (p.end - p.start)
}

// Feed appends b to the scan buffer.
func (p *Parser) Feed(b []byte) (n int, err error) {
	if len(b) > p.BytesFree() {
		err = fmt.Errorf("%w: buffer overflow, %d bytes fed with %d free", ErrInvalidFrame, len(b), p.BytesFree())
		return
	}
	if p.start > 0 {
		copy(p.buf, p.buf[p.start:p.end])
		p.end -= p.start
		p.start = 0
	}
	n = copy(p.buf[p.end:], b)
	p.end += n
	return
}

// FindFrame returns the next complete frame, skipping bytes that do not
// start a valid header. ErrNeedMoreData means no complete frame is buffered.
func (p *Parser) FindFrame() (frame Frame, err error) {
	for {
		avail := p.buf[p.start:p.end]
		if len(avail) < ADTSHeaderLength {
			err = ErrNeedMoreData
			return
		}
		if avail[0] != 0xff || avail[1]&0xf0 != 0xf0 {
			p.start++
			continue
		}

		var info FrameInfo
		if info, err = ParseADTSHeader(avail); err != nil {
			p.start++
			continue
		}

		total := info.HeaderLength + info.FrameLength
		if len(avail) < total {
			err = ErrNeedMoreData
			return
		}

		frame.Info = info
		frame.Data = make([]byte, info.FrameLength)
		copy(frame.Data, avail[info.HeaderLength:total])
		p.start += total
		return
	}
}
