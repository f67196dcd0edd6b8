// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"math"
	"time"

	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

const (
	FTYP = Tag(0x66747970)
	MOOV = Tag(0x6d6f6f76)
	MVHD = Tag(0x6d766864)
	TRAK = Tag(0x7472616b)
	TKHD = Tag(0x746b6864)
	MDIA = Tag(0x6d646961)
	MDHD = Tag(0x6d646864)
	HDLR = Tag(0x68646c72)
	MINF = Tag(0x6d696e66)
	SMHD = Tag(0x736d6864)
	VMHD = Tag(0x766d6864)
	DINF = Tag(0x64696e66)
	DREF = Tag(0x64726566)
	URL  = Tag(0x75726c20)
	STBL = Tag(0x7374626c)
	STSD = Tag(0x73747364)
	MP4A = Tag(0x6d703461)
	ESDS = Tag(0x65736473)
	STTS = Tag(0x73747473)
	CTTS = Tag(0x63747473)
	STSC = Tag(0x73747363)
	STSS = Tag(0x73747373)
	STSZ = Tag(0x7374737a)
	STCO = Tag(0x7374636f)
	CO64 = Tag(0x636f3634)
	UUID = Tag(0x75756964)
	MDAT = Tag(0x6d646174)
	WIDE = Tag(0x77696465)
	FREE = Tag(0x66726565)
	UDTA = Tag(0x75647461)
	META = Tag(0x6d657461)
	MVEX = Tag(0x6d766578)
	MOOF = Tag(0x6d6f6f66)
)

// Handler types.
var (
	SOUN = StringToTag("soun")
	VIDE = StringToTag("vide")
	HINT = StringToTag("hint")
	TEXT = StringToTag("text")
)

// Track header flags.
const (
	TKHD_ENABLED    = 0x01
	TKHD_IN_MOVIE   = 0x02
	TKHD_IN_PREVIEW = 0x04
)

// IdentityMatrix is the unity transform of movie and track headers.
var IdentityMatrix = [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}

func (m Movie) Tag() Tag {
	return MOOV
}

type Movie struct {
	Header   *MovieHeader
	Tracks   []*Track
	Unknowns []Atom
	AtomPos
}

func (m Movie) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MOOV))
	n += m.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (m Movie) marshal(b []byte) (n int) {
	if m.Header != nil {
		n += m.Header.Marshal(b[n:])
	}
	for _, atom := range m.Tracks {
		n += atom.Marshal(b[n:])
	}
	for _, atom := range m.Unknowns {
		n += atom.Marshal(b[n:])
	}
	return
}

func (m Movie) Len() (n int) {
	n += 8
	if m.Header != nil {
		n += m.Header.Len()
	}
	for _, atom := range m.Tracks {
		n += atom.Len()
	}
	for _, atom := range m.Unknowns {
		n += atom.Len()
	}
	return
}

func (m *Movie) Unmarshal(b []byte, offset int) (n int, err error) {
	(&m.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case MVHD:
			atom := &MovieHeader{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("mvhd", n+offset, err)
				return
			}
			m.Header = atom
		case TRAK:
			atom := &Track{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("trak", n+offset, err)
				return
			}
			m.Tracks = append(m.Tracks, atom)
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			m.Unknowns = append(m.Unknowns, atom)
		}
		n += size
	}
	return
}

func (m Movie) Children() (r []Atom) {
	if m.Header != nil {
		r = append(r, m.Header)
	}
	for _, atom := range m.Tracks {
		r = append(r, atom)
	}
	r = append(r, m.Unknowns...)
	return
}

// IsFragmented reports whether the movie declares movie fragments.
func (m Movie) IsFragmented() bool {
	for _, atom := range m.Unknowns {
		if atom.Tag() == MVEX {
			return true
		}
	}
	return false
}

func (mh MovieHeader) Tag() Tag {
	return MVHD
}

type MovieHeader struct {
	Version         uint8
	Flags           uint32
	CreateTime      time.Time
	ModifyTime      time.Time
	TimeScale       uint32
	Duration        uint64
	PreferredRate   float64
	PreferredVolume float64
	Matrix          [9]int32
	NextTrackId     uint32
	AtomPos
}

// NewMovieHeader returns a header with unit rate, full volume and the
// identity matrix.
func NewMovieHeader(timeScale uint32, duration uint64, nextTrackId uint32) *MovieHeader {
	return &MovieHeader{
		TimeScale:       timeScale,
		Duration:        duration,
		PreferredRate:   1,
		PreferredVolume: 1,
		Matrix:          IdentityMatrix,
		NextTrackId:     nextTrackId,
	}
}

func (mh MovieHeader) version() uint8 {
	if mh.Version == 1 || mh.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (mh MovieHeader) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MVHD))
	n += mh.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (mh MovieHeader) marshal(b []byte) (n int) {
	version := mh.version()
	pio.PutU8(b[n:], version)
	n += 1
	pio.PutU24BE(b[n:], mh.Flags)
	n += 3
	if version == 1 {
		PutTime64(b[n:], mh.CreateTime)
		n += 8
		PutTime64(b[n:], mh.ModifyTime)
		n += 8
		pio.PutU32BE(b[n:], mh.TimeScale)
		n += 4
		pio.PutU64BE(b[n:], mh.Duration)
		n += 8
	} else {
		PutTime32(b[n:], mh.CreateTime)
		n += 4
		PutTime32(b[n:], mh.ModifyTime)
		n += 4
		pio.PutU32BE(b[n:], mh.TimeScale)
		n += 4
		pio.PutU32BE(b[n:], uint32(mh.Duration))
		n += 4
	}
	PutFixed32(b[n:], mh.PreferredRate)
	n += 4
	PutFixed16(b[n:], mh.PreferredVolume)
	n += 2
	n += 10
	for _, entry := range mh.Matrix {
		pio.PutI32BE(b[n:], entry)
		n += 4
	}
	n += 24
	pio.PutU32BE(b[n:], mh.NextTrackId)
	n += 4
	return
}

func (mh MovieHeader) Len() (n int) {
	n += 8
	n += 4
	if mh.version() == 1 {
		n += 28
	} else {
		n += 16
	}
	n += 4
	n += 2
	n += 10
	n += 4 * len(mh.Matrix[:])
	n += 24
	n += 4
	return
}

func (mh *MovieHeader) Unmarshal(b []byte, offset int) (n int, err error) {
	(&mh.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+4 {
		err = parseErr("Version", n+offset, err)
		return
	}
	mh.Version = pio.U8(b[n:])
	n += 1
	mh.Flags = pio.U24BE(b[n:])
	n += 3
	if mh.Version == 1 {
		if len(b) < n+28 {
			err = parseErr("Times", n+offset, err)
			return
		}
		mh.CreateTime = GetTime64(b[n:])
		n += 8
		mh.ModifyTime = GetTime64(b[n:])
		n += 8
		mh.TimeScale = pio.U32BE(b[n:])
		n += 4
		mh.Duration = pio.U64BE(b[n:])
		n += 8
	} else {
		if len(b) < n+16 {
			err = parseErr("Times", n+offset, err)
			return
		}
		mh.CreateTime = GetTime32(b[n:])
		n += 4
		mh.ModifyTime = GetTime32(b[n:])
		n += 4
		mh.TimeScale = pio.U32BE(b[n:])
		n += 4
		mh.Duration = uint64(pio.U32BE(b[n:]))
		n += 4
	}
	if len(b) < n+4+2+10+4*len(mh.Matrix)+24+4 {
		err = parseErr("PreferredRate", n+offset, err)
		return
	}
	mh.PreferredRate = GetFixed32(b[n:])
	n += 4
	mh.PreferredVolume = GetFixed16(b[n:])
	n += 2
	n += 10
	for i := range mh.Matrix {
		mh.Matrix[i] = pio.I32BE(b[n:])
		n += 4
	}
	n += 24
	mh.NextTrackId = pio.U32BE(b[n:])
	n += 4
	return
}

func (mh MovieHeader) Children() (r []Atom) {
	return
}

func (t Track) Tag() Tag {
	return TRAK
}

type Track struct {
	Header   *TrackHeader
	Media    *Media
	Unknowns []Atom
	AtomPos
}

func (t Track) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TRAK))
	n += t.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (t Track) marshal(b []byte) (n int) {
	if t.Header != nil {
		n += t.Header.Marshal(b[n:])
	}
	if t.Media != nil {
		n += t.Media.Marshal(b[n:])
	}
	for _, atom := range t.Unknowns {
		n += atom.Marshal(b[n:])
	}
	return
}

func (t Track) Len() (n int) {
	n += 8
	if t.Header != nil {
		n += t.Header.Len()
	}
	if t.Media != nil {
		n += t.Media.Len()
	}
	for _, atom := range t.Unknowns {
		n += atom.Len()
	}
	return
}

func (t *Track) Unmarshal(b []byte, offset int) (n int, err error) {
	(&t.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case TKHD:
			atom := &TrackHeader{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("tkhd", n+offset, err)
				return
			}
			t.Header = atom
		case MDIA:
			atom := &Media{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("mdia", n+offset, err)
				return
			}
			t.Media = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			t.Unknowns = append(t.Unknowns, atom)
		}
		n += size
	}
	return
}

func (t Track) Children() (r []Atom) {
	if t.Header != nil {
		r = append(r, t.Header)
	}
	if t.Media != nil {
		r = append(r, t.Media)
	}
	r = append(r, t.Unknowns...)
	return
}

func (th TrackHeader) Tag() Tag {
	return TKHD
}

type TrackHeader struct {
	Version        uint8
	Flags          uint32
	CreateTime     time.Time
	ModifyTime     time.Time
	TrackId        uint32
	Duration       uint64
	Layer          int16
	AlternateGroup int16
	Volume         float64
	Matrix         [9]int32
	TrackWidth     float64
	TrackHeight    float64
	AtomPos
}

func (th TrackHeader) version() uint8 {
	if th.Version == 1 || th.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (th TrackHeader) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TKHD))
	n += th.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (th TrackHeader) marshal(b []byte) (n int) {
	version := th.version()
	pio.PutU8(b[n:], version)
	n += 1
	pio.PutU24BE(b[n:], th.Flags)
	n += 3
	if version == 1 {
		PutTime64(b[n:], th.CreateTime)
		n += 8
		PutTime64(b[n:], th.ModifyTime)
		n += 8
		pio.PutU32BE(b[n:], th.TrackId)
		n += 4
		n += 4
		pio.PutU64BE(b[n:], th.Duration)
		n += 8
	} else {
		PutTime32(b[n:], th.CreateTime)
		n += 4
		PutTime32(b[n:], th.ModifyTime)
		n += 4
		pio.PutU32BE(b[n:], th.TrackId)
		n += 4
		n += 4
		pio.PutU32BE(b[n:], uint32(th.Duration))
		n += 4
	}
	n += 8
	pio.PutI16BE(b[n:], th.Layer)
	n += 2
	pio.PutI16BE(b[n:], th.AlternateGroup)
	n += 2
	PutFixed16(b[n:], th.Volume)
	n += 2
	n += 2
	for _, entry := range th.Matrix {
		pio.PutI32BE(b[n:], entry)
		n += 4
	}
	PutFixed32(b[n:], th.TrackWidth)
	n += 4
	PutFixed32(b[n:], th.TrackHeight)
	n += 4
	return
}

func (th TrackHeader) Len() (n int) {
	n += 8
	n += 4
	if th.version() == 1 {
		n += 32
	} else {
		n += 20
	}
	n += 8
	n += 2
	n += 2
	n += 2
	n += 2
	n += 4 * len(th.Matrix[:])
	n += 4
	n += 4
	return
}

func (th *TrackHeader) Unmarshal(b []byte, offset int) (n int, err error) {
	(&th.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+4 {
		err = parseErr("Version", n+offset, err)
		return
	}
	th.Version = pio.U8(b[n:])
	n += 1
	th.Flags = pio.U24BE(b[n:])
	n += 3
	if th.Version == 1 {
		if len(b) < n+32 {
			err = parseErr("Times", n+offset, err)
			return
		}
		th.CreateTime = GetTime64(b[n:])
		n += 8
		th.ModifyTime = GetTime64(b[n:])
		n += 8
		th.TrackId = pio.U32BE(b[n:])
		n += 4
		n += 4
		th.Duration = pio.U64BE(b[n:])
		n += 8
	} else {
		if len(b) < n+20 {
			err = parseErr("Times", n+offset, err)
			return
		}
		th.CreateTime = GetTime32(b[n:])
		n += 4
		th.ModifyTime = GetTime32(b[n:])
		n += 4
		th.TrackId = pio.U32BE(b[n:])
		n += 4
		n += 4
		th.Duration = uint64(pio.U32BE(b[n:]))
		n += 4
	}
	if len(b) < n+8+8+4*len(th.Matrix)+8 {
		err = parseErr("Layer", n+offset, err)
		return
	}
	n += 8
	th.Layer = pio.I16BE(b[n:])
	n += 2
	th.AlternateGroup = pio.I16BE(b[n:])
	n += 2
	th.Volume = GetFixed16(b[n:])
	n += 2
	n += 2
	for i := range th.Matrix {
		th.Matrix[i] = pio.I32BE(b[n:])
		n += 4
	}
	th.TrackWidth = GetFixed32(b[n:])
	n += 4
	th.TrackHeight = GetFixed32(b[n:])
	n += 4
	return
}

func (th TrackHeader) Children() (r []Atom) {
	return
}

func (m Media) Tag() Tag {
	return MDIA
}

type Media struct {
	Header   *MediaHeader
	Handler  *HandlerRefer
	Info     *MediaInfo
	Unknowns []Atom
	AtomPos
}

func (m Media) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MDIA))
	n += m.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (m Media) marshal(b []byte) (n int) {
	if m.Header != nil {
		n += m.Header.Marshal(b[n:])
	}
	if m.Handler != nil {
		n += m.Handler.Marshal(b[n:])
	}
	if m.Info != nil {
		n += m.Info.Marshal(b[n:])
	}
	for _, atom := range m.Unknowns {
		n += atom.Marshal(b[n:])
	}
	return
}

func (m Media) Len() (n int) {
	n += 8
	if m.Header != nil {
		n += m.Header.Len()
	}
	if m.Handler != nil {
		n += m.Handler.Len()
	}
	if m.Info != nil {
		n += m.Info.Len()
	}
	for _, atom := range m.Unknowns {
		n += atom.Len()
	}
	return
}

func (m *Media) Unmarshal(b []byte, offset int) (n int, err error) {
	(&m.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case MDHD:
			atom := &MediaHeader{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("mdhd", n+offset, err)
				return
			}
			m.Header = atom
		case HDLR:
			atom := &HandlerRefer{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("hdlr", n+offset, err)
				return
			}
			m.Handler = atom
		case MINF:
			atom := &MediaInfo{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("minf", n+offset, err)
				return
			}
			m.Info = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			m.Unknowns = append(m.Unknowns, atom)
		}
		n += size
	}
	return
}

func (m Media) Children() (r []Atom) {
	if m.Header != nil {
		r = append(r, m.Header)
	}
	if m.Handler != nil {
		r = append(r, m.Handler)
	}
	if m.Info != nil {
		r = append(r, m.Info)
	}
	r = append(r, m.Unknowns...)
	return
}

func (mh MediaHeader) Tag() Tag {
	return MDHD
}

type MediaHeader struct {
	Version    uint8
	Flags      uint32
	CreateTime time.Time
	ModifyTime time.Time
	TimeScale  uint32
	Duration   uint64
	Language   uint16
	Quality    int16
	AtomPos
}

func (mh MediaHeader) version() uint8 {
	if mh.Version == 1 || mh.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (mh MediaHeader) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MDHD))
	n += mh.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (mh MediaHeader) marshal(b []byte) (n int) {
	version := mh.version()
	pio.PutU8(b[n:], version)
	n += 1
	pio.PutU24BE(b[n:], mh.Flags)
	n += 3
	if version == 1 {
		PutTime64(b[n:], mh.CreateTime)
		n += 8
		PutTime64(b[n:], mh.ModifyTime)
		n += 8
		pio.PutU32BE(b[n:], mh.TimeScale)
		n += 4
		pio.PutU64BE(b[n:], mh.Duration)
		n += 8
	} else {
		PutTime32(b[n:], mh.CreateTime)
		n += 4
		PutTime32(b[n:], mh.ModifyTime)
		n += 4
		pio.PutU32BE(b[n:], mh.TimeScale)
		n += 4
		pio.PutU32BE(b[n:], uint32(mh.Duration))
		n += 4
	}
	pio.PutU16BE(b[n:], mh.Language)
	n += 2
	pio.PutI16BE(b[n:], mh.Quality)
	n += 2
	return
}

func (mh MediaHeader) Len() (n int) {
	n += 8
	n += 4
	if mh.version() == 1 {
		n += 28
	} else {
		n += 16
	}
	n += 2
	n += 2
	return
}

func (mh *MediaHeader) Unmarshal(b []byte, offset int) (n int, err error) {
	(&mh.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+4 {
		err = parseErr("Version", n+offset, err)
		return
	}
	mh.Version = pio.U8(b[n:])
	n += 1
	mh.Flags = pio.U24BE(b[n:])
	n += 3
	if mh.Version == 1 {
		if len(b) < n+28 {
			err = parseErr("Times", n+offset, err)
			return
		}
		mh.CreateTime = GetTime64(b[n:])
		n += 8
		mh.ModifyTime = GetTime64(b[n:])
		n += 8
		mh.TimeScale = pio.U32BE(b[n:])
		n += 4
		mh.Duration = pio.U64BE(b[n:])
		n += 8
	} else {
		if len(b) < n+16 {
			err = parseErr("Times", n+offset, err)
			return
		}
		mh.CreateTime = GetTime32(b[n:])
		n += 4
		mh.ModifyTime = GetTime32(b[n:])
		n += 4
		mh.TimeScale = pio.U32BE(b[n:])
		n += 4
		mh.Duration = uint64(pio.U32BE(b[n:]))
		n += 4
	}
	if len(b) < n+4 {
		err = parseErr("Language", n+offset, err)
		return
	}
	mh.Language = pio.U16BE(b[n:])
	n += 2
	mh.Quality = pio.I16BE(b[n:])
	n += 2
	return
}

func (mh MediaHeader) Children() (r []Atom) {
	return
}

func (hr HandlerRefer) Tag() Tag {
	return HDLR
}

type HandlerRefer struct {
	Version     uint8
	Flags       uint32
	PreDefined  uint32
	HandlerType Tag
	Name        string
	AtomPos
}

func (hr HandlerRefer) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(HDLR))
	n += hr.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (hr HandlerRefer) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], hr.Version)
	n += 1
	pio.PutU24BE(b[n:], hr.Flags)
	n += 3
	pio.PutU32BE(b[n:], hr.PreDefined)
	n += 4
	pio.PutU32BE(b[n:], uint32(hr.HandlerType))
	n += 4
	n += 12
	copy(b[n:], hr.Name)
	n += len(hr.Name)
	b[n] = 0
	n++
	return
}

func (hr HandlerRefer) Len() (n int) {
	n += 8
	n += 4
	n += 4
	n += 4
	n += 12
	n += len(hr.Name) + 1
	return
}

func (hr *HandlerRefer) Unmarshal(b []byte, offset int) (n int, err error) {
	(&hr.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+12 {
		err = parseErr("HandlerType", n+offset, err)
		return
	}
	hr.Version = pio.U8(b[n:])
	n += 1
	hr.Flags = pio.U24BE(b[n:])
	n += 3
	hr.PreDefined = pio.U32BE(b[n:])
	n += 4
	hr.HandlerType = Tag(pio.U32BE(b[n:]))
	n += 4
	if len(b) < n+12 {
		n = len(b)
		return
	}
	n += 12
	name := b[n:]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	hr.Name = string(name)
	n = len(b)
	return
}

func (hr HandlerRefer) Children() (r []Atom) {
	return
}

func (mi MediaInfo) Tag() Tag {
	return MINF
}

type MediaInfo struct {
	Sound    *SoundMediaInfo
	Video    *VideoMediaInfo
	Data     *DataInfo
	Sample   *SampleTable
	Unknowns []Atom
	AtomPos
}

func (mi MediaInfo) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MINF))
	n += mi.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (mi MediaInfo) marshal(b []byte) (n int) {
	if mi.Sound != nil {
		n += mi.Sound.Marshal(b[n:])
	}
	if mi.Video != nil {
		n += mi.Video.Marshal(b[n:])
	}
	for _, atom := range mi.Unknowns {
		n += atom.Marshal(b[n:])
	}
	if mi.Data != nil {
		n += mi.Data.Marshal(b[n:])
	}
	if mi.Sample != nil {
		n += mi.Sample.Marshal(b[n:])
	}
	return
}

func (mi MediaInfo) Len() (n int) {
	n += 8
	if mi.Sound != nil {
		n += mi.Sound.Len()
	}
	if mi.Video != nil {
		n += mi.Video.Len()
	}
	for _, atom := range mi.Unknowns {
		n += atom.Len()
	}
	if mi.Data != nil {
		n += mi.Data.Len()
	}
	if mi.Sample != nil {
		n += mi.Sample.Len()
	}
	return
}

func (mi *MediaInfo) Unmarshal(b []byte, offset int) (n int, err error) {
	(&mi.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case SMHD:
			atom := &SoundMediaInfo{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("smhd", n+offset, err)
				return
			}
			mi.Sound = atom
		case VMHD:
			atom := &VideoMediaInfo{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("vmhd", n+offset, err)
				return
			}
			mi.Video = atom
		case DINF:
			atom := &DataInfo{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("dinf", n+offset, err)
				return
			}
			mi.Data = atom
		case STBL:
			atom := &SampleTable{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("stbl", n+offset, err)
				return
			}
			mi.Sample = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			mi.Unknowns = append(mi.Unknowns, atom)
		}
		n += size
	}
	return
}

func (mi MediaInfo) Children() (r []Atom) {
	if mi.Sound != nil {
		r = append(r, mi.Sound)
	}
	if mi.Video != nil {
		r = append(r, mi.Video)
	}
	r = append(r, mi.Unknowns...)
	if mi.Data != nil {
		r = append(r, mi.Data)
	}
	if mi.Sample != nil {
		r = append(r, mi.Sample)
	}
	return
}

func (di DataInfo) Tag() Tag {
	return DINF
}

type DataInfo struct {
	Refer    *DataRefer
	Unknowns []Atom
	AtomPos
}

// NewSelfContainedDataInfo returns a dinf whose single url entry points at
// the file itself.
func NewSelfContainedDataInfo() *DataInfo {
	return &DataInfo{
		Refer: &DataRefer{
			Url: &DataReferUrl{Flags: 0x000001},
		},
	}
}

func (di DataInfo) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(DINF))
	n += di.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (di DataInfo) marshal(b []byte) (n int) {
	if di.Refer != nil {
		n += di.Refer.Marshal(b[n:])
	}
	for _, atom := range di.Unknowns {
		n += atom.Marshal(b[n:])
	}
	return
}

func (di DataInfo) Len() (n int) {
	n += 8
	if di.Refer != nil {
		n += di.Refer.Len()
	}
	for _, atom := range di.Unknowns {
		n += atom.Len()
	}
	return
}

func (di *DataInfo) Unmarshal(b []byte, offset int) (n int, err error) {
	(&di.AtomPos).setPos(offset, len(b))
	n += 8
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case DREF:
			atom := &DataRefer{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("dref", n+offset, err)
				return
			}
			di.Refer = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			di.Unknowns = append(di.Unknowns, atom)
		}
		n += size
	}
	return
}

func (di DataInfo) Children() (r []Atom) {
	if di.Refer != nil {
		r = append(r, di.Refer)
	}
	r = append(r, di.Unknowns...)
	return
}

func (dr DataRefer) Tag() Tag {
	return DREF
}

type DataRefer struct {
	Version uint8
	Flags   uint32
	Url     *DataReferUrl
	AtomPos
}

func (dr DataRefer) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(DREF))
	n += dr.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (dr DataRefer) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], dr.Version)
	n += 1
	pio.PutU24BE(b[n:], dr.Flags)
	n += 3
	childrenNR := 0
	if dr.Url != nil {
		childrenNR++
	}
	pio.PutU32BE(b[n:], uint32(childrenNR))
	n += 4
	if dr.Url != nil {
		n += dr.Url.Marshal(b[n:])
	}
	return
}

func (dr DataRefer) Len() (n int) {
	n += 8
	n += 4
	n += 4
	if dr.Url != nil {
		n += dr.Url.Len()
	}
	return
}

func (dr *DataRefer) Unmarshal(b []byte, offset int) (n int, err error) {
	(&dr.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+8 {
		err = parseErr("Version", n+offset, err)
		return
	}
	dr.Version = pio.U8(b[n:])
	n += 1
	dr.Flags = pio.U24BE(b[n:])
	n += 3
	n += 4
	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		if tag == URL && dr.Url == nil {
			atom := &DataReferUrl{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("url ", n+offset, err)
				return
			}
			dr.Url = atom
		}
		n += size
	}
	return
}

func (dr DataRefer) Children() (r []Atom) {
	if dr.Url != nil {
		r = append(r, dr.Url)
	}
	return
}

func (dru DataReferUrl) Tag() Tag {
	return URL
}

type DataReferUrl struct {
	Version uint8
	Flags   uint32
	AtomPos
}

func (dru DataReferUrl) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(URL))
	n += dru.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (dru DataReferUrl) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], dru.Version)
	n += 1
	pio.PutU24BE(b[n:], dru.Flags)
	n += 3
	return
}

func (dru DataReferUrl) Len() (n int) {
	n += 8
	n += 4
	return
}

func (dru *DataReferUrl) Unmarshal(b []byte, offset int) (n int, err error) {
	(&dru.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+4 {
		err = parseErr("Version", n+offset, err)
		return
	}
	dru.Version = pio.U8(b[n:])
	n += 1
	dru.Flags = pio.U24BE(b[n:])
	n += 3
	return
}

func (dru DataReferUrl) Children() (r []Atom) {
	return
}

func (smi SoundMediaInfo) Tag() Tag {
	return SMHD
}

type SoundMediaInfo struct {
	Version uint8
	Flags   uint32
	Balance int16
	AtomPos
}

func (smi SoundMediaInfo) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(SMHD))
	n += smi.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (smi SoundMediaInfo) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], smi.Version)
	n += 1
	pio.PutU24BE(b[n:], smi.Flags)
	n += 3
	pio.PutI16BE(b[n:], smi.Balance)
	n += 2
	n += 2
	return
}

func (smi SoundMediaInfo) Len() (n int) {
	n += 8
	n += 4
	n += 2
	n += 2
	return
}

func (smi *SoundMediaInfo) Unmarshal(b []byte, offset int) (n int, err error) {
	(&smi.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+6 {
		err = parseErr("Balance", n+offset, err)
		return
	}
	smi.Version = pio.U8(b[n:])
	n += 1
	smi.Flags = pio.U24BE(b[n:])
	n += 3
	smi.Balance = pio.I16BE(b[n:])
	n += 2
	n += 2
	return
}

func (smi SoundMediaInfo) Children() (r []Atom) {
	return
}

func (vmi VideoMediaInfo) Tag() Tag {
	return VMHD
}

type VideoMediaInfo struct {
	Version      uint8
	Flags        uint32
	GraphicsMode int16
	Opcolor      [3]int16
	AtomPos
}

func (vmi VideoMediaInfo) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(VMHD))
	n += vmi.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (vmi VideoMediaInfo) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], vmi.Version)
	n += 1
	pio.PutU24BE(b[n:], vmi.Flags)
	n += 3
	pio.PutI16BE(b[n:], vmi.GraphicsMode)
	n += 2
	for _, entry := range vmi.Opcolor {
		pio.PutI16BE(b[n:], entry)
		n += 2
	}
	return
}

func (vmi VideoMediaInfo) Len() (n int) {
	n += 8
	n += 4
	n += 2
	n += 2 * len(vmi.Opcolor[:])
	return
}

func (vmi *VideoMediaInfo) Unmarshal(b []byte, offset int) (n int, err error) {
	(&vmi.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+6+2*len(vmi.Opcolor) {
		err = parseErr("GraphicsMode", n+offset, err)
		return
	}
	vmi.Version = pio.U8(b[n:])
	n += 1
	vmi.Flags = pio.U24BE(b[n:])
	n += 3
	vmi.GraphicsMode = pio.I16BE(b[n:])
	n += 2
	for i := range vmi.Opcolor {
		vmi.Opcolor[i] = pio.I16BE(b[n:])
		n += 2
	}
	return
}

func (vmi VideoMediaInfo) Children() (r []Atom) {
	return
}
