// Package bits
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package bits

import (
	"io"
)

// Reader reads MSB-first bit fields from R.
type Reader struct {
	R    io.Reader
	n    int
	bits uint64
}

func (r *Reader) ReadBits64(n int) (bits uint64, err error) {
	if r.n < n {
		var b [8]byte
		var got int
		want := (n - r.n + 7) / 8
		if got, err = r.R.Read(b[:want]); err != nil {
			return
		}
		if got < want {
			err = io.EOF
			return
		}
		for i := 0; i < got; i++ {
			r.bits <<= 8
			r.bits |= uint64(b[i])
		}
		r.n += 8 * got
	}
	bits = r.bits >> uint(r.n-n)
	r.bits ^= bits << uint(r.n-n)
	r.n -= n
	return
}

func (r *Reader) ReadBits(n int) (bits uint, err error) {
	var bits64 uint64
	if bits64, err = r.ReadBits64(n); err != nil {
		return
	}
	bits = uint(bits64)
	return
}

// Read reads whole bytes starting at the current bit position.
func (r *Reader) Read(p []byte) (n int, err error) {
	for n < len(p) {
		var b uint64
		if b, err = r.ReadBits64(8); err != nil {
			return
		}
		p[n] = byte(b)
		n++
	}
	return
}

// Writer writes MSB-first bit fields to W.
type Writer struct {
	W    io.Writer
	n    int
	bits uint64
}

func (w *Writer) WriteBits64(bits uint64, n int) (err error) {
	for n > 0 {
		take := n
		if free := 64 - w.n; take > free {
			take = free
		}
		chunk := bits >> uint(n-take)
		if take < 64 {
			chunk &= 1<<uint(take) - 1
		}
		w.bits = w.bits<<uint(take) | chunk
		w.n += take
		n -= take
		if w.n == 64 {
			if err = w.FlushBits(); err != nil {
				return
			}
		}
	}
	return
}

func (w *Writer) WriteBits(bits uint, n int) (err error) {
	return w.WriteBits64(uint64(bits), n)
}

func (w *Writer) Write(p []byte) (n int, err error) {
	for n < len(p) {
		if err = w.WriteBits64(uint64(p[n]), 8); err != nil {
			return
		}
		n++
	}
	return
}

// FlushBits writes out complete bytes and pads the last partial byte with zeros.
func (w *Writer) FlushBits() (err error) {
	if w.n > 0 {
		var b [8]byte
		bits := w.bits
		if w.n%8 != 0 {
			bits <<= uint(8 - (w.n % 8))
		}
		want := (w.n + 7) / 8
		for i := 0; i < want; i++ {
			b[i] = byte(bits >> uint((want-i-1)*8))
		}
		if _, err = w.W.Write(b[:want]); err != nil {
			return
		}
		w.n = 0
		w.bits = 0
	}
	return
}
