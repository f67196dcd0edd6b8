// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/teocci/go-mp4clip/format/mp4/mp4io"
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

type options struct {
	logger     *zap.Logger
	sentinel   bool
	readBuffer int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSentinel toggles the 8-byte marker the AAC muxer writes after each
// frame payload.
func WithSentinel(on bool) Option {
	return func(o *options) {
		o.sentinel = on
	}
}

// WithReadBuffer bounds the size of each input read of the AAC muxer.
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:     zap.NewNop(),
		sentinel:   true,
		readBuffer: 4096,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Writer serializes a File as ftyp, extra atoms, moov and mdat, copying the
// sample payloads from their sources.
type Writer struct {
	w    io.Writer
	bufw *bufio.Writer
	wpos int64
	opts options
}

func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		w:    w,
		bufw: bufio.NewWriterSize(w, pio.RecommendBufioSize),
		opts: newOptions(opts),
	}
}

func (w *Writer) writeAtom(atom mp4io.Atom) (err error) {
	b := make([]byte, atom.Len())
	atom.Marshal(b)
	if _, err = w.bufw.Write(b); err != nil {
		return
	}
	w.wpos += int64(len(b))
	return
}

// mdatHeader returns the header of an mdat holding payload bytes, using the
// extended size form when the total does not fit 32 bits.
func mdatHeader(payload int64) []byte {
	if payload+8 <= math.MaxUint32 {
		b := make([]byte, 8)
		pio.PutU32BE(b[0:], uint32(payload+8))
		pio.PutU32BE(b[4:], uint32(mp4io.MDAT))
		return b
	}
	b := make([]byte, 16)
	pio.PutU32BE(b[0:], 1)
	pio.PutU32BE(b[4:], uint32(mp4io.MDAT))
	pio.PutU64BE(b[8:], uint64(payload+16))
	return b
}

func (w *Writer) Write(ctx context.Context, f *File) (err error) {
	if f.Movie == nil {
		err = ErrNoMovie
		return
	}
	movie := f.Movie

	layout := make(map[*Track][]*chunk)
	var chunks []*chunk
	for _, t := range movie.Tracks {
		for _, s := range t.Table.Samples {
			if s.Source == nil {
				err = fmt.Errorf("mp4: track %d: sample at %d has no data source", t.ID, s.Offset)
				return
			}
		}
		layout[t] = planChunks(t)
		chunks = append(chunks, layout[t]...)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].startTime() < chunks[j].startTime()
	})

	var payload int64
	for _, c := range chunks {
		payload += c.size
	}
	mdathdr := mdatHeader(payload)

	var head int64
	if f.FileType != nil {
		head += int64(f.FileType.Len())
	}
	for _, atom := range f.Extra {
		head += int64(atom.Len())
	}

	// chunk offsets depend on the moov size, which grows when a table
	// switches to co64
	var moov *mp4io.Movie
	moovLen := -1
	for {
		if moov, err = newMovieAtom(movie, layout); err != nil {
			return
		}
		if moov.Len() == moovLen {
			break
		}
		moovLen = moov.Len()
		pos := head + int64(moovLen) + int64(len(mdathdr))
		for _, c := range chunks {
			c.offset = pos
			pos += c.size
		}
	}

	if f.FileType != nil {
		if err = w.writeAtom(f.FileType); err != nil {
			return
		}
	}
	for _, atom := range f.Extra {
		if err = w.writeAtom(atom); err != nil {
			return
		}
	}
	if err = w.writeAtom(moov); err != nil {
		return
	}
	if _, err = w.bufw.Write(mdathdr); err != nil {
		return
	}
	w.wpos += int64(len(mdathdr))

	for _, c := range chunks {
		if err = ctx.Err(); err != nil {
			return
		}
		if c.offset != w.wpos {
			err = fmt.Errorf("mp4: chunk of track %d at %d, cursor at %d", c.track.ID, c.offset, w.wpos)
			return
		}
		if err = w.writeChunk(c); err != nil {
			return
		}
	}

	if err = w.bufw.Flush(); err != nil {
		return
	}
	for _, t := range movie.Tracks {
		w.opts.logger.Debug("mp4 track written",
			zap.Uint32("id", t.ID),
			zap.Stringer("type", t.Type),
			zap.Stringer("codec", t.Codec()),
			zap.Int("samples", t.SampleCount()),
		)
	}
	w.opts.logger.Debug("mp4 file written",
		zap.Int("tracks", len(movie.Tracks)),
		zap.Int("chunks", len(chunks)),
		zap.Int64("mdat_payload", payload),
		zap.Int64("size", w.wpos),
	)
	return
}

func (w *Writer) writeChunk(c *chunk) (err error) {
	for _, s := range c.track.Table.Samples[c.first : c.first+c.count] {
		var n int64
		n, err = io.Copy(w.bufw, io.NewSectionReader(s.Source, s.Offset, int64(s.Size)))
		w.wpos += n
		if err != nil {
			err = fmt.Errorf("mp4: track %d: copy sample at %d: %w", c.track.ID, s.Offset, err)
			return
		}
		if n != int64(s.Size) {
			err = fmt.Errorf("mp4: track %d: sample at %d: %w", c.track.ID, s.Offset, io.ErrUnexpectedEOF)
			return
		}
	}
	return
}
