// Package aac
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package aac

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/teocci/go-mp4clip/utils/bits"
)

const ObjectTypeAACLC = 2

// MakeDecoderSpecificInfo builds the two-byte AudioSpecificConfig of an
// AAC-LC stream.
func MakeDecoderSpecificInfo(samplingFrequencyIndex, channelConfiguration int) []byte {
	var b bytes.Buffer
	bw := &bits.Writer{W: &b}
	_ = bw.WriteBits(ObjectTypeAACLC, 5)
	_ = bw.WriteBits(uint(samplingFrequencyIndex), 4)
	_ = bw.WriteBits(uint(channelConfiguration), 4)
	_ = bw.WriteBits(0, 3) // frame length flag, depends on core coder, extension flag
	_ = bw.FlushBits()
	return b.Bytes()
}

// ParseDecoderSpecificInfo reads the object type, sampling frequency index
// and channel configuration of an AudioSpecificConfig.
func ParseDecoderSpecificInfo(b []byte) (objectType, samplingFrequencyIndex, channelConfiguration int, err error) {
	br := &bits.Reader{R: bytes.NewReader(b)}
	var u uint
	if u, err = br.ReadBits(5); err != nil {
		err = fmt.Errorf("aac: decoder specific info: %w", err)
		return
	}
	objectType = int(u)
	if objectType == 31 {
		if u, err = br.ReadBits(6); err != nil {
			err = fmt.Errorf("aac: decoder specific info: %w", err)
			return
		}
		objectType = 32 + int(u)
	}
	if u, err = br.ReadBits(4); err != nil {
		err = fmt.Errorf("aac: decoder specific info: %w", err)
		return
	}
	samplingFrequencyIndex = int(u)
	if samplingFrequencyIndex == 0xf {
		if _, err = br.ReadBits(24); err != nil {
			err = fmt.Errorf("aac: decoder specific info: %w", err)
			return
		}
	}
	if u, err = br.ReadBits(4); err != nil {
		err = fmt.Errorf("aac: decoder specific info: %w", err)
		return
	}
	channelConfiguration = int(u)
	return
}

// FillADTSHeader writes the header of a frame carrying payloadLength bytes.
func FillADTSHeader(header []byte, info FrameInfo, payloadLength int) {
	frameLength := ADTSHeaderLength + payloadLength

	header[0] = 0xff
	header[1] = 0xf1
	header[2] = byte(info.Profile&0x3)<<6 | byte(info.SamplingFrequencyIndex&0xf)<<2 | byte(info.ChannelConfiguration>>2)&0x1
	header[3] = byte(info.ChannelConfiguration&0x3)<<6 | byte(frameLength>>11)&0x3
	header[4] = byte(frameLength >> 3)
	header[5] = byte(frameLength&0x7)<<5 | 0x1f
	header[6] = 0xfc
}

// Muxer writes raw AAC payloads as an ADTS stream.
type Muxer struct {
	w       io.Writer
	info    FrameInfo
	adtshdr []byte
}

func NewMuxer(w io.Writer, info FrameInfo) *Muxer {
	return &Muxer{
		adtshdr: make([]byte, ADTSHeaderLength),
		info:    info,
		w:       w,
	}
}

func (m *Muxer) WriteFrame(payload []byte) (err error) {
	if ADTSHeaderLength+len(payload) > 0x1fff {
		err = fmt.Errorf("aac: payload of %d bytes does not fit an ADTS frame", len(payload))
		return
	}
	FillADTSHeader(m.adtshdr, m.info, len(payload))
	if _, err = m.w.Write(m.adtshdr); err != nil {
		return
	}
	if _, err = m.w.Write(payload); err != nil {
		return
	}
	return
}

// Demuxer pulls frames from an ADTS stream through a Parser.
type Demuxer struct {
	r      io.Reader
	parser *Parser
	buf    []byte
	eos    bool
	ts     time.Duration
}

func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{
		r:      r,
		parser: NewParser(),
		buf:    make([]byte, 4096),
	}
}

// ReadFrame returns io.EOF once the stream holds no further complete frame.
func (d *Demuxer) ReadFrame() (frame Frame, err error) {
	for {
		if frame, err = d.parser.FindFrame(); err == nil {
			d.ts += time.Duration(SamplesPerFrame) * time.Second / time.Duration(frame.Info.SamplingFrequency)
			return
		}
		if !errors.Is(err, ErrNeedMoreData) {
			return
		}
		if d.eos {
			err = io.EOF
			return
		}

		toRead := d.parser.BytesFree()
		if toRead > len(d.buf) {
			toRead = len(d.buf)
		}
		var n int
		n, err = d.r.Read(d.buf[:toRead])
		if n > 0 {
			if _, ferr := d.parser.Feed(d.buf[:n]); ferr != nil {
				err = ferr
				return
			}
		}
		if err == io.EOF {
			d.eos = true
		} else if err != nil {
			return
		}
	}
}

// Time is the presentation time of the next frame.
func (d *Demuxer) Time() time.Duration {
	return d.ts
}
