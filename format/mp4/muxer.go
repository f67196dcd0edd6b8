// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/teocci/go-mp4clip/av"
	"github.com/teocci/go-mp4clip/format/aac"
	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

// FrameSentinel is the marker written after every muxed AAC frame payload
// when sentinels are enabled.
const FrameSentinel uint64 = 0xDEADBEEF

type MuxResult struct {
	Frames        int
	SampleRate    int
	Channels      int
	ChannelLayout av.ChannelLayout
	// MdatSize is the declared size of the mdat atom, header included.
	MdatSize  uint64
	LargeMdat bool
}

// Muxer streams AAC frames into an mdat and writes the moov once the input
// is exhausted. The mdat size is patched in place at the end.
type Muxer struct {
	w      io.WriteSeeker
	bufw   *bufio.Writer
	wpos   int64
	opts   options
	parser *aac.Parser

	widePos int64
	mdatPos int64

	info  aac.FrameInfo
	desc  *MPEGAudioSampleDescription
	table *SampleTable
}

func NewMuxer(w io.WriteSeeker, opts ...Option) *Muxer {
	return &Muxer{
		w:      w,
		bufw:   bufio.NewWriterSize(w, pio.RecommendBufioSize),
		opts:   newOptions(opts),
		parser: aac.NewParser(),
		table:  &SampleTable{},
	}
}

// MuxAAC reads an ADTS stream from in and writes it to out as an M4A file.
func MuxAAC(ctx context.Context, in io.Reader, out io.WriteSeeker, opts ...Option) (*MuxResult, error) {
	m := NewMuxer(out, opts...)
	if err := m.WriteHeader(); err != nil {
		return nil, err
	}
	if err := m.ReadFrom(ctx, in); err != nil {
		return nil, err
	}
	return m.WriteTrailer()
}

func (m *Muxer) write(b []byte) (err error) {
	if _, err = m.bufw.Write(b); err != nil {
		return
	}
	m.wpos += int64(len(b))
	return
}

// WriteHeader writes ftyp, a wide placeholder and an open mdat header.
func (m *Muxer) WriteHeader() (err error) {
	ftyp := mp4io.NewFileType(mp4io.BrandM4A, 0, mp4io.BrandISOM, mp4io.BrandMP42)
	b := make([]byte, ftyp.Len())
	ftyp.Marshal(b)
	if err = m.write(b); err != nil {
		return
	}

	taghdr := make([]byte, 8)
	pio.PutU32BE(taghdr[0:], 8)
	pio.PutU32BE(taghdr[4:], uint32(mp4io.WIDE))
	m.widePos = m.wpos
	if err = m.write(taghdr); err != nil {
		return
	}

	taghdr = make([]byte, 8)
	pio.PutU32BE(taghdr[4:], uint32(mp4io.MDAT))
	m.mdatPos = m.wpos
	if err = m.write(taghdr); err != nil {
		return
	}
	return
}

// ReadFrom feeds in to the frame scanner and writes every frame found until
// in is exhausted and no buffered frame remains.
func (m *Muxer) ReadFrom(ctx context.Context, in io.Reader) (err error) {
	buf := make([]byte, m.opts.readBuffer)
	eos := false
	for {
		if err = ctx.Err(); err != nil {
			return
		}

		var frame aac.Frame
		if frame, err = m.parser.FindFrame(); err == nil {
			if err = m.WriteFrame(frame); err != nil {
				return
			}
			continue
		}
		if !errors.Is(err, aac.ErrNeedMoreData) {
			return
		}
		err = nil
		if eos {
			return
		}

		toRead := m.parser.BytesFree()
		if toRead > len(buf) {
			toRead = len(buf)
		}
		if toRead == 0 {
			err = fmt.Errorf("%w: scan buffer full without a frame", aac.ErrInvalidFrame)
			return
		}
		n, rerr := in.Read(buf[:toRead])
		if n > 0 {
			if _, err = m.parser.Feed(buf[:n]); err != nil {
				err = fmt.Errorf("mp4: feed frame scanner: %w", err)
				return
			}
		}
		if rerr == io.EOF {
			eos = true
		} else if rerr != nil {
			err = fmt.Errorf("mp4: read input: %w", rerr)
			return
		}
	}
}

// WriteFrame appends one frame payload to the mdat. The first frame sets
// the sample description of the track.
func (m *Muxer) WriteFrame(frame aac.Frame) (err error) {
	if m.desc == nil {
		if m.desc, err = NewAudioSampleDescription(frame.Info); err != nil {
			return
		}
		m.info = frame.Info
		m.table.AddSampleDescription(m.desc)
	}

	offset := m.wpos
	if err = m.write(frame.Data); err != nil {
		return
	}
	if m.opts.sentinel {
		marker := make([]byte, 8)
		pio.PutU64BE(marker, FrameSentinel)
		if err = m.write(marker); err != nil {
			return
		}
	}

	if err = m.table.AddSample(Sample{
		Offset:   offset,
		Size:     uint32(len(frame.Data)),
		Duration: aac.SamplesPerFrame,
		Sync:     true,
	}); err != nil {
		return
	}

	m.opts.logger.Debug("AAC frame",
		zap.Int("frame", len(m.table.Samples)-1),
		zap.Int("size", frame.Info.HeaderLength+frame.Info.FrameLength),
		zap.Int("khz", frame.Info.SamplingFrequency/1000),
		zap.Int("channels", frame.Info.ChannelConfiguration),
	)
	return
}

// WriteTrailer patches the mdat size and writes the moov.
func (m *Muxer) WriteTrailer() (res *MuxResult, err error) {
	if err = m.bufw.Flush(); err != nil {
		return
	}

	res = &MuxResult{Frames: len(m.table.Samples)}
	if res.Frames > 0 {
		res.SampleRate = m.info.SamplingFrequency
		res.Channels = m.info.ChannelConfiguration
		res.ChannelLayout = m.desc.ChannelLayout()
	}

	mdatsize := m.wpos - m.mdatPos
	if mdatsize <= math.MaxUint32 {
		if _, err = m.w.Seek(m.mdatPos, io.SeekStart); err != nil {
			return
		}
		taghdr := make([]byte, 4)
		pio.PutU32BE(taghdr, uint32(mdatsize))
		if _, err = m.w.Write(taghdr); err != nil {
			return
		}
		res.MdatSize = uint64(mdatsize)
	} else {
		// the wide atom and the mdat header become one extended-size header
		if _, err = m.w.Seek(m.widePos, io.SeekStart); err != nil {
			return
		}
		taghdr := make([]byte, 16)
		pio.PutU32BE(taghdr[0:], 1)
		pio.PutU32BE(taghdr[4:], uint32(mp4io.MDAT))
		pio.PutU64BE(taghdr[8:], uint64(m.wpos-m.widePos))
		if _, err = m.w.Write(taghdr); err != nil {
			return
		}
		res.MdatSize = uint64(m.wpos - m.widePos)
		res.LargeMdat = true
	}
	if _, err = m.w.Seek(m.wpos, io.SeekStart); err != nil {
		return
	}

	movie := NewMovie(uint32(res.SampleRate))
	layout := make(map[*Track][]*chunk)
	if res.Frames > 0 {
		track := NewTrack(TrackTypeAudio, m.table, uint32(res.SampleRate))
		track.Language = "eng"
		movie.AddTrack(track)
		layout[track] = m.chunks(track)
	}

	var moov *mp4io.Movie
	if moov, err = newMovieAtom(movie, layout); err != nil {
		return
	}
	b := make([]byte, moov.Len())
	moov.Marshal(b)
	if err = m.write(b); err != nil {
		return
	}
	if err = m.bufw.Flush(); err != nil {
		return
	}

	m.opts.logger.Info("aac muxed",
		zap.Int("frames", res.Frames),
		zap.Int("sample_rate", res.SampleRate),
		zap.Int("channels", res.Channels),
		zap.Stringer("layout", res.ChannelLayout),
		zap.Uint64("mdat_size", res.MdatSize),
		zap.Bool("large_mdat", res.LargeMdat),
		zap.Duration("duration", tsToTime(movie.Duration(), movie.TimeScale)),
	)
	return
}

// chunks lays out the muxed samples. Sentinels split the payloads, so each
// sample is its own chunk then; otherwise the planned chunks are contiguous.
func (m *Muxer) chunks(t *Track) []*chunk {
	if m.opts.sentinel {
		return sampleChunks(t)
	}
	chunks := planChunks(t)
	for _, c := range chunks {
		c.offset = t.Table.Samples[c.first].Offset
	}
	return chunks
}
