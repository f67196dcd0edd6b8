// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

func (sd SampleDesc) Tag() Tag {
	return STSD
}

// SampleDesc holds the stsd entries in file order. MPEG-4 audio entries
// decode to *MP4ADesc, everything else is kept as *Dummy.
type SampleDesc struct {
	Version uint8
	Flags   uint32
	Entries []Atom
	AtomPos
}

func (sd SampleDesc) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(STSD))
	n += sd.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (sd SampleDesc) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], sd.Version)
	n += 1
	pio.PutU24BE(b[n:], sd.Flags)
	n += 3
	pio.PutU32BE(b[n:], uint32(len(sd.Entries)))
	n += 4
	for _, atom := range sd.Entries {
		n += atom.Marshal(b[n:])
	}
	return
}

func (sd SampleDesc) Len() (n int) {
	n += 8
	n += 4
	n += 4
	for _, atom := range sd.Entries {
		n += atom.Len()
	}
	return
}

func (sd *SampleDesc) Unmarshal(b []byte, offset int) (n int, err error) {
	(&sd.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+8 {
		err = parseErr("Version", n+offset, err)
		return
	}
	sd.Version = pio.U8(b[n:])
	n += 1
	sd.Flags = pio.U24BE(b[n:])
	n += 3
	count := int(pio.U32BE(b[n:]))
	n += 4
	for i := 0; i < count && n+8 <= len(b); i++ {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case MP4A:
			atom := &MP4ADesc{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("mp4a", n+offset, err)
				return
			}
			sd.Entries = append(sd.Entries, atom)
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			sd.Entries = append(sd.Entries, atom)
		}
		n += size
	}
	return
}

func (sd SampleDesc) Children() (r []Atom) {
	return sd.Entries
}

func (ad MP4ADesc) Tag() Tag {
	return MP4A
}

// MP4ADesc is an MPEG-4 audio sample entry. QuickTime sound description
// versions 1 and 2 keep their extra fields in Extension.
type MP4ADesc struct {
	DataRefIdx       int16
	Version          int16
	RevisionLevel    int16
	Vendor           int32
	NumberOfChannels int16
	SampleSize       int16
	CompressionId    int16
	SampleRate       float64
	Extension        []byte
	Conf             *ElemStreamDesc
	Unknowns         []Atom
	AtomPos
}

func (ad MP4ADesc) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MP4A))
	n += ad.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (ad MP4ADesc) marshal(b []byte) (n int) {
	n += 6
	pio.PutI16BE(b[n:], ad.DataRefIdx)
	n += 2
	pio.PutI16BE(b[n:], ad.Version)
	n += 2
	pio.PutI16BE(b[n:], ad.RevisionLevel)
	n += 2
	pio.PutI32BE(b[n:], ad.Vendor)
	n += 4
	pio.PutI16BE(b[n:], ad.NumberOfChannels)
	n += 2
	pio.PutI16BE(b[n:], ad.SampleSize)
	n += 2
	pio.PutI16BE(b[n:], ad.CompressionId)
	n += 2
	n += 2
	PutFixed32(b[n:], ad.SampleRate)
	n += 4
	copy(b[n:], ad.Extension)
	n += len(ad.Extension)
	if ad.Conf != nil {
		n += ad.Conf.Marshal(b[n:])
	}
	for _, atom := range ad.Unknowns {
		n += atom.Marshal(b[n:])
	}
	return
}

func (ad MP4ADesc) Len() (n int) {
	n += 8
	n += 6
	n += 2
	n += 2
	n += 2
	n += 4
	n += 2
	n += 2
	n += 2
	n += 2
	n += 4
	n += len(ad.Extension)
	if ad.Conf != nil {
		n += ad.Conf.Len()
	}
	for _, atom := range ad.Unknowns {
		n += atom.Len()
	}
	return
}

func (ad *MP4ADesc) Unmarshal(b []byte, offset int) (n int, err error) {
	(&ad.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+28 {
		err = parseErr("SampleEntry", n+offset, err)
		return
	}
	n += 6
	ad.DataRefIdx = pio.I16BE(b[n:])
	n += 2
	ad.Version = pio.I16BE(b[n:])
	n += 2
	ad.RevisionLevel = pio.I16BE(b[n:])
	n += 2
	ad.Vendor = pio.I32BE(b[n:])
	n += 4
	ad.NumberOfChannels = pio.I16BE(b[n:])
	n += 2
	ad.SampleSize = pio.I16BE(b[n:])
	n += 2
	ad.CompressionId = pio.I16BE(b[n:])
	n += 2
	n += 2
	ad.SampleRate = GetFixed32(b[n:])
	n += 4

	var extLen int
	switch ad.Version {
	case 1:
		extLen = 16
	case 2:
		extLen = 36
	}
	if extLen > 0 {
		if len(b) < n+extLen {
			err = parseErr("Extension", n+offset, err)
			return
		}
		ad.Extension = b[n : n+extLen]
		n += extLen
	}

	for n+8 <= len(b) {
		var tag Tag
		var size int
		if tag, size, err = nextChild(b, n, offset); err != nil {
			return
		}
		switch tag {
		case ESDS:
			atom := &ElemStreamDesc{}
			if _, err = atom.Unmarshal(b[n:n+size], offset+n); err != nil {
				err = parseErr("esds", n+offset, err)
				return
			}
			ad.Conf = atom
		default:
			var atom *Dummy
			if atom, err = unmarshalDummy(b[n:n+size], offset+n, tag); err != nil {
				return
			}
			ad.Unknowns = append(ad.Unknowns, atom)
		}
		n += size
	}
	return
}

func (ad MP4ADesc) Children() (r []Atom) {
	if ad.Conf != nil {
		r = append(r, ad.Conf)
	}
	r = append(r, ad.Unknowns...)
	return
}

const (
	MP4ESDescrTag          = 3
	MP4DecConfigDescrTag   = 4
	MP4DecSpecificDescrTag = 5
	MP4SLConfigDescrTag    = 6
)

// Object type indications and stream types of the decoder config descriptor.
const (
	ObjectTypeMPEG4Audio = 0x40
	StreamTypeAudio      = 0x05
)

func (esd ElemStreamDesc) Tag() Tag {
	return ESDS
}

type ElemStreamDesc struct {
	ESID       uint16
	ObjectType uint8
	StreamType uint8
	BufferSize uint32
	MaxBitrate uint32
	AvgBitrate uint32
	DecConfig  []byte
	AtomPos
}

func (esd ElemStreamDesc) Children() []Atom {
	return nil
}

func (esd ElemStreamDesc) fillLength(b []byte, length int) (n int) {
	for i := 3; i > 0; i-- {
		b[n] = uint8(length>>uint(7*i))&0x7f | 0x80
		n++
	}
	b[n] = uint8(length & 0x7f)
	n++
	return
}

func (esd ElemStreamDesc) lenDescHdr() (n int) {
	return 5
}

func (esd ElemStreamDesc) fillDescHdr(b []byte, tag uint8, datalen int) (n int) {
	b[n] = tag
	n++
	n += esd.fillLength(b[n:], datalen)
	return
}

// Version(4)
// ESDesc(
//   MP4ESDescrTag
//   ESID(2)
//   ESFlags(1)
//   DecConfigDesc(
//     MP4DecConfigDescrTag
//     objectId streamType bufSize maxBitrate avgBitrate
//     DecSpecificDesc(
//       MP4DecSpecificDescrTag
//       decConfig
//     )
//   )
//   SLConfigDesc(predefined 2)
// )

func (esd ElemStreamDesc) lenDecSpecific() int {
	return esd.lenDescHdr() + len(esd.DecConfig)
}

func (esd ElemStreamDesc) lenDecConfig() int {
	return esd.lenDescHdr() + 13 + esd.lenDecSpecific()
}

func (esd ElemStreamDesc) lenSLConfig() int {
	return esd.lenDescHdr() + 1
}

func (esd ElemStreamDesc) lenES() int {
	return esd.lenDescHdr() + 3 + esd.lenDecConfig() + esd.lenSLConfig()
}

func (esd ElemStreamDesc) Len() (n int) {
	return 8 + 4 + esd.lenES()
}

func (esd ElemStreamDesc) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(ESDS))
	n += 8
	pio.PutU32BE(b[n:], 0) // Version
	n += 4

	n += esd.fillDescHdr(b[n:], MP4ESDescrTag, esd.lenES()-esd.lenDescHdr())
	pio.PutU16BE(b[n:], esd.ESID)
	n += 2
	b[n] = 0 // flags
	n++

	n += esd.fillDescHdr(b[n:], MP4DecConfigDescrTag, esd.lenDecConfig()-esd.lenDescHdr())
	b[n] = esd.ObjectType
	n++
	b[n] = esd.StreamType<<2 | 0x01
	n++
	pio.PutU24BE(b[n:], esd.BufferSize)
	n += 3
	pio.PutU32BE(b[n:], esd.MaxBitrate)
	n += 4
	pio.PutU32BE(b[n:], esd.AvgBitrate)
	n += 4

	n += esd.fillDescHdr(b[n:], MP4DecSpecificDescrTag, len(esd.DecConfig))
	copy(b[n:], esd.DecConfig)
	n += len(esd.DecConfig)

	n += esd.fillDescHdr(b[n:], MP4SLConfigDescrTag, 1)
	b[n] = 0x02
	n++

	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (esd *ElemStreamDesc) Unmarshal(b []byte, offset int) (n int, err error) {
	if len(b) < n+12 {
		err = parseErr("hdr", offset+n, err)
		return
	}
	(&esd.AtomPos).setPos(offset, len(b))
	n += 8
	n += 4
	if _, err = esd.parseDesc(b[n:], offset+n); err != nil {
		return
	}
	n = len(b)
	return
}

func (esd *ElemStreamDesc) parseDesc(b []byte, offset int) (n int, err error) {
	var hdrlen int
	var datalen int
	var tag uint8
	if hdrlen, tag, datalen, err = esd.parseDescHdr(b, offset); err != nil {
		return
	}
	n += hdrlen

	if len(b) < n+datalen {
		err = parseErr("datalen", offset+n, err)
		return
	}
	data := b[n : n+datalen]

	switch tag {
	case MP4ESDescrTag:
		if len(data) < 3 {
			err = parseErr("MP4ESDescrTag", offset+n, err)
			return
		}
		esd.ESID = pio.U16BE(data)
		flags := data[2]
		skip := 3
		if flags&0x80 != 0 { // stream dependence
			skip += 2
		}
		if flags&0x40 != 0 && len(data) > skip { // URL
			skip += 1 + int(data[skip])
		}
		if flags&0x20 != 0 { // OCR stream
			skip += 2
		}
		if err = esd.parseDescs(data, skip, offset+n); err != nil {
			return
		}

	case MP4DecConfigDescrTag:
		const size = 1 + 1 + 3 + 4 + 4
		if len(data) < size {
			err = parseErr("MP4DecConfigDescrTag", offset+n, err)
			return
		}
		esd.ObjectType = data[0]
		esd.StreamType = data[1] >> 2
		esd.BufferSize = pio.U24BE(data[2:])
		esd.MaxBitrate = pio.U32BE(data[5:])
		esd.AvgBitrate = pio.U32BE(data[9:])
		if err = esd.parseDescs(data, size, offset+n); err != nil {
			return
		}

	case MP4DecSpecificDescrTag:
		esd.DecConfig = data
	}

	n += datalen
	return
}

func (esd *ElemStreamDesc) parseDescs(b []byte, n int, offset int) (err error) {
	for n < len(b) {
		var m int
		if m, err = esd.parseDesc(b[n:], offset+n); err != nil {
			return
		}
		n += m
	}
	return
}

func (esd *ElemStreamDesc) parseLength(b []byte, offset int) (n int, length int, err error) {
	for n < 4 {
		if len(b) < n+1 {
			err = parseErr("len", offset+n, err)
			return
		}
		c := b[n]
		n++
		length = (length << 7) | (int(c) & 0x7f)
		if c&0x80 == 0 {
			break
		}
	}
	return
}

func (esd *ElemStreamDesc) parseDescHdr(b []byte, offset int) (n int, tag uint8, datalen int, err error) {
	if len(b) < n+1 {
		err = parseErr("tag", offset+n, err)
		return
	}
	tag = b[n]
	n++
	var lenlen int
	if lenlen, datalen, err = esd.parseLength(b[n:], offset+n); err != nil {
		return
	}
	n += lenlen
	return
}
