// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

func (st SampleTable) Tag() Tag {
	return STBL
}

type SampleTable struct {
	SampleDesc        *SampleDesc
	TimeToSample      *TimeToSample
	CompositionOffset *CompositionOffset
	SyncSample        *SyncSample
	SampleToChunk     *SampleToChunk
	SampleSize        *SampleSize
	ChunkOffset       *ChunkOffset
	ChunkOffset64     *ChunkOffset64
	Unknowns          []Atom
	AtomPos
}

func (st SampleTable) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STBL))
	n += st.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (st SampleTable) marshal(b []byte) (n int) {
	for _, atom := range st.Children() {
		n += atom.Marshal(b[n:])
	}
	return
}

func (st SampleTable) Len() (n int) {
	n += 8
	for _, atom := range st.Children() {
		n += atom.Len()
	}
	return
}

func (st *SampleTable) Unmarshal(b []byte, offset int) (n int, err error) {
	(&st.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case STSD:
			atom := &SampleDesc{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stsd", n+offset, err)
				return
			}
			st.SampleDesc = atom
		case STTS:
			atom := &TimeToSample{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stts", n+offset, err)
				return
			}
			st.TimeToSample = atom
		case CTTS:
			atom := &CompositionOffset{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("ctts", n+offset, err)
				return
			}
			st.CompositionOffset = atom
		case STSS:
			atom := &SyncSample{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stss", n+offset, err)
				return
			}
			st.SyncSample = atom
		case STSC:
			atom := &SampleToChunk{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stsc", n+offset, err)
				return
			}
			st.SampleToChunk = atom
		case STSZ:
			atom := &SampleSize{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stsz", n+offset, err)
				return
			}
			st.SampleSize = atom
		case STCO:
			atom := &ChunkOffset{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stco", n+offset, err)
				return
			}
			st.ChunkOffset = atom
		case CO64:
			atom := &ChunkOffset64{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("co64", n+offset, err)
				return
			}
			st.ChunkOffset64 = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			st.Unknowns = append(st.Unknowns, atom)
		}
		n += size
	}
	return
}

func (st SampleTable) Children() (r []Atom) {
	if st.SampleDesc != nil {
		r = append(r, st.SampleDesc)
	}
	if st.TimeToSample != nil {
		r = append(r, st.TimeToSample)
	}
	if st.CompositionOffset != nil {
		r = append(r, st.CompositionOffset)
	}
	if st.SyncSample != nil {
		r = append(r, st.SyncSample)
	}
	if st.SampleToChunk != nil {
		r = append(r, st.SampleToChunk)
	}
	if st.SampleSize != nil {
		r = append(r, st.SampleSize)
	}
	if st.ChunkOffset != nil {
		r = append(r, st.ChunkOffset)
	}
	if st.ChunkOffset64 != nil {
		r = append(r, st.ChunkOffset64)
	}
	r = append(r, st.Unknowns...)
	return
}

func (ts TimeToSample) Tag() Tag {
	return STTS
}

type TimeToSample struct {
	Version uint8
	Flags   uint32
	Entries []TimeToSampleEntry
	AtomPos
}

func (ts TimeToSample) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STTS))
	n += ts.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (ts TimeToSample) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], ts.Version)
	n += 1
	pio.PutU24BE(b[n:], ts.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(ts.Entries)))
	n += 4
	for _, entry := range ts.Entries {
		PutTimeToSampleEntry(b[n:], entry)
		n += LenTimeToSampleEntry
	}
	return
}

func (ts TimeToSample) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += LenTimeToSampleEntry * len(ts.Entries)
	return
}

func (ts *TimeToSample) Unmarshal(b []byte, offset int) (n int, err error) {
	(&ts.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if ts.Version, ts.Flags, count, n, err = readTableHeader(b, n, offset, LenTimeToSampleEntry); err != nil {
		return
	}
	ts.Entries = make([]TimeToSampleEntry, count)
	for i := range ts.Entries {
		ts.Entries[i] = GetTimeToSampleEntry(b[n:])
		n += LenTimeToSampleEntry
	}
	return
}

func (ts TimeToSample) Children() (r []Atom) {
	return
}

type TimeToSampleEntry struct {
	Count    uint32
	Duration uint32
}

func GetTimeToSampleEntry(b []byte) (e TimeToSampleEntry) {
	e.Count = pio.U32BE(b[0:])
	e.Duration = pio.U32BE(b[4:])
	return
}

func PutTimeToSampleEntry(b []byte, e TimeToSampleEntry) {
	pio.PutU32BE(b[0:], e.Count)
	pio.PutU32BE(b[4:], e.Duration)
}

const LenTimeToSampleEntry = 8

func (co CompositionOffset) Tag() Tag {
	return CTTS
}

// CompositionOffset stores signed offsets. Version 0 files carry unsigned
// values, which read back unchanged for offsets below 2^31.
type CompositionOffset struct {
	Version uint8
	Flags   uint32
	Entries []CompositionOffsetEntry
	AtomPos
}

func (co CompositionOffset) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(CTTS))
	n += co.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (co CompositionOffset) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], co.Version)
	n += 1
	pio.PutU24BE(b[n:], co.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(co.Entries)))
	n += 4
	for _, entry := range co.Entries {
		PutCompositionOffsetEntry(b[n:], entry)
		n += LenCompositionOffsetEntry
	}
	return
}

func (co CompositionOffset) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += LenCompositionOffsetEntry * len(co.Entries)
	return
}

func (co *CompositionOffset) Unmarshal(b []byte, offset int) (n int, err error) {
	(&co.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if co.Version, co.Flags, count, n, err = readTableHeader(b, n, offset, LenCompositionOffsetEntry); err != nil {
		return
	}
	co.Entries = make([]CompositionOffsetEntry, count)
	for i := range co.Entries {
		co.Entries[i] = GetCompositionOffsetEntry(b[n:])
		n += LenCompositionOffsetEntry
	}
	return
}

func (co CompositionOffset) Children() (r []Atom) {
	return
}

type CompositionOffsetEntry struct {
	Count  uint32
	Offset int32
}

func GetCompositionOffsetEntry(b []byte) (e CompositionOffsetEntry) {
	e.Count = pio.U32BE(b[0:])
	e.Offset = pio.I32BE(b[4:])
	return
}

func PutCompositionOffsetEntry(b []byte, e CompositionOffsetEntry) {
	pio.PutU32BE(b[0:], e.Count)
	pio.PutI32BE(b[4:], e.Offset)
}

const LenCompositionOffsetEntry = 8

func (ss SyncSample) Tag() Tag {
	return STSS
}

// SyncSample lists 1-based sample numbers.
type SyncSample struct {
	Version uint8
	Flags   uint32
	Entries []uint32
	AtomPos
}

func (ss SyncSample) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STSS))
	n += ss.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (ss SyncSample) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], ss.Version)
	n += 1
	pio.PutU24BE(b[n:], ss.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(ss.Entries)))
	n += 4
	for _, entry := range ss.Entries {
		pio.PutU32BE(b[n:], entry)
		n += 4
	}
	return
}

func (ss SyncSample) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += 4 * len(ss.Entries)
	return
}

func (ss *SyncSample) Unmarshal(b []byte, offset int) (n int, err error) {
	(&ss.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if ss.Version, ss.Flags, count, n, err = readTableHeader(b, n, offset, 4); err != nil {
		return
	}
	ss.Entries = make([]uint32, count)
	for i := range ss.Entries {
		ss.Entries[i] = pio.U32BE(b[n:])
		n += 4
	}
	return
}

func (ss SyncSample) Children() (r []Atom) {
	return
}

func (sc SampleToChunk) Tag() Tag {
	return STSC
}

type SampleToChunk struct {
	Version uint8
	Flags   uint32
	Entries []SampleToChunkEntry
	AtomPos
}

func (sc SampleToChunk) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STSC))
	n += sc.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (sc SampleToChunk) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], sc.Version)
	n += 1
	pio.PutU24BE(b[n:], sc.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(sc.Entries)))
	n += 4
	for _, entry := range sc.Entries {
		PutSampleToChunkEntry(b[n:], entry)
		n += LenSampleToChunkEntry
	}
	return
}

func (sc SampleToChunk) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += LenSampleToChunkEntry * len(sc.Entries)
	return
}

func (sc *SampleToChunk) Unmarshal(b []byte, offset int) (n int, err error) {
	(&sc.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if sc.Version, sc.Flags, count, n, err = readTableHeader(b, n, offset, LenSampleToChunkEntry); err != nil {
		return
	}
	sc.Entries = make([]SampleToChunkEntry, count)
	for i := range sc.Entries {
		sc.Entries[i] = GetSampleToChunkEntry(b[n:])
		n += LenSampleToChunkEntry
	}
	return
}

func (sc SampleToChunk) Children() (r []Atom) {
	return
}

// SampleToChunkEntry uses 1-based chunk and description numbers.
type SampleToChunkEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescId    uint32
}

func GetSampleToChunkEntry(b []byte) (e SampleToChunkEntry) {
	e.FirstChunk = pio.U32BE(b[0:])
	e.SamplesPerChunk = pio.U32BE(b[4:])
	e.SampleDescId = pio.U32BE(b[8:])
	return
}

func PutSampleToChunkEntry(b []byte, e SampleToChunkEntry) {
	pio.PutU32BE(b[0:], e.FirstChunk)
	pio.PutU32BE(b[4:], e.SamplesPerChunk)
	pio.PutU32BE(b[8:], e.SampleDescId)
}

const LenSampleToChunkEntry = 12

func (s SampleSize) Tag() Tag {
	return STSZ
}

// SampleSize holds either one constant size for SampleCount samples or one
// entry per sample when SampleSize is zero.
type SampleSize struct {
	Version     uint8
	Flags       uint32
	SampleSize  uint32
	SampleCount uint32
	Entries     []uint32
	AtomPos
}

func (s SampleSize) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STSZ))
	n += s.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (s SampleSize) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], s.Version)
	n += 1
	pio.PutU24BE(b[n:], s.Flags)
	n += 3
	pio.PutU32BE(b[n:], s.SampleSize)
	n += 4
	if s.SampleSize != 0 {
		pio.PutU32BE(b[n:], s.SampleCount)
		n += 4
		return
	}
	pio.PutU32BE(b[n:], uint32(len(s.Entries)))
	n += 4
	for _, entry := range s.Entries {
		pio.PutU32BE(b[n:], entry)
		n += 4
	}
	return
}

func (s SampleSize) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += 4
	if s.SampleSize != 0 {
		return
	}
	n += 4 * len(s.Entries)
	return
}

func (s *SampleSize) Unmarshal(b []byte, offset int) (n int, err error) {
	(&s.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+12 {
		err = parseErr("SampleSize", n+offset, err)
		return
	}
	s.Version = pio.U8(b[n:])
	n += 1
	s.Flags = pio.U24BE(b[n:])
	n += 3
	s.SampleSize = pio.U32BE(b[n:])
	n += 4
	s.SampleCount = pio.U32BE(b[n:])
	n += 4
	if s.SampleSize != 0 {
		return
	}
	if uint64(len(b)-n) < 4*uint64(s.SampleCount) {
		err = parseErr("Entries", n+offset, err)
		return
	}
	s.Entries = make([]uint32, s.SampleCount)
	for i := range s.Entries {
		s.Entries[i] = pio.U32BE(b[n:])
		n += 4
	}
	return
}

func (s SampleSize) Children() (r []Atom) {
	return
}

// Count is the number of samples described by the box.
func (s SampleSize) Count() int {
	if s.SampleSize != 0 {
		return int(s.SampleCount)
	}
	return len(s.Entries)
}

// Size returns the size of the i-th (0-based) sample.
func (s SampleSize) Size(i int) uint32 {
	if s.SampleSize != 0 {
		return s.SampleSize
	}
	return s.Entries[i]
}

func (co ChunkOffset) Tag() Tag {
	return STCO
}

type ChunkOffset struct {
	Version uint8
	Flags   uint32
	Entries []uint32
	AtomPos
}

func (co ChunkOffset) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STCO))
	n += co.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (co ChunkOffset) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], co.Version)
	n += 1
	pio.PutU24BE(b[n:], co.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(co.Entries)))
	n += 4
	for _, entry := range co.Entries {
		pio.PutU32BE(b[n:], entry)
		n += 4
	}
	return
}

func (co ChunkOffset) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += 4 * len(co.Entries)
	return
}

func (co *ChunkOffset) Unmarshal(b []byte, offset int) (n int, err error) {
	(&co.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if co.Version, co.Flags, count, n, err = readTableHeader(b, n, offset, 4); err != nil {
		return
	}
	co.Entries = make([]uint32, count)
	for i := range co.Entries {
		co.Entries[i] = pio.U32BE(b[n:])
		n += 4
	}
	return
}

func (co ChunkOffset) Children() (r []Atom) {
	return
}

func (co ChunkOffset64) Tag() Tag {
	return CO64
}

type ChunkOffset64 struct {
	Version uint8
	Flags   uint32
	Entries []uint64
	AtomPos
}

func (co ChunkOffset64) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(CO64))
	n += co.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (co ChunkOffset64) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], co.Version)
	n += 1
	pio.PutU24BE(b[n:], co.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(co.Entries)))
	n += 4
	for _, entry := range co.Entries {
		pio.PutU64BE(b[n:], entry)
		n += 8
	}
	return
}

func (co ChunkOffset64) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += 8 * len(co.Entries)
	return
}

func (co *ChunkOffset64) Unmarshal(b []byte, offset int) (n int, err error) {
	(&co.AtomPos).setPos(offset, len(b))
	n += 8
	var count int
	if co.Version, co.Flags, count, n, err = readTableHeader(b, n, offset, 8); err != nil {
		return
	}
	co.Entries = make([]uint64, count)
	for i := range co.Entries {
		co.Entries[i] = pio.U64BE(b[n:])
		n += 8
	}
	return
}

func (co ChunkOffset64) Children() (r []Atom) {
	return
}

// readTableHeader reads version, flags and entry count, and checks that
// count entries of entrySize bytes follow.
func readTableHeader(b []byte, n, offset, entrySize int) (version uint8, flags uint32, count int, next int, err error) {
	if len(b) < n+8 {
		err = parseErr("Version", n+offset, err)
		return
	}
	version = pio.U8(b[n:])
	n += 1
	flags = pio.U24BE(b[n:])
	n += 3
	entries := pio.U32BE(b[n:])
	n += 4
	if uint64(len(b)-n) < uint64(entries)*uint64(entrySize) {
		err = parseErr("Entries", n+offset, err)
		return
	}
	count = int(entries)
	next = n
	return
}
