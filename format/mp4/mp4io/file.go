// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

// Brands.
var (
	BrandM4A  = StringToTag("M4A ")
	BrandISOM = StringToTag("isom")
	BrandMP42 = StringToTag("mp42")
)

// XMPUserType is the uuid user type of Adobe XMP packets.
var XMPUserType = uuid.MustParse("be7acfcb-97a9-42e8-9c71-999491e3afac")

func (f FileType) Tag() Tag {
	return FTYP
}

type FileType struct {
	MajorBrand       uint32
	MinorVersion     uint32
	CompatibleBrands []uint32
	AtomPos
}

func NewFileType(major Tag, minor uint32, compatible ...Tag) *FileType {
	f := &FileType{MajorBrand: uint32(major), MinorVersion: minor}
	for _, brand := range compatible {
		f.CompatibleBrands = append(f.CompatibleBrands, uint32(brand))
	}
	return f
}

func (f FileType) Marshal(b []byte) (n int) {
	l := 16 + 4*len(f.CompatibleBrands)
	pio.PutU32BE(b, uint32(l))
	pio.PutU32BE(b[4:], uint32(FTYP))
	pio.PutU32BE(b[8:], f.MajorBrand)
	pio.PutU32BE(b[12:], f.MinorVersion)
	for i, v := range f.CompatibleBrands {
		pio.PutU32BE(b[16+4*i:], v)
	}
	return l
}

func (f FileType) Len() int {
	return 16 + 4*len(f.CompatibleBrands)
}

func (f *FileType) Unmarshal(b []byte, offset int) (n int, err error) {
	f.AtomPos.setPos(offset, len(b))
	n = 8
	if len(b) < n+8 {
		return 0, parseErr("MajorBrand", offset+n, nil)
	}
	f.MajorBrand = pio.U32BE(b[n:])
	n += 4
	f.MinorVersion = pio.U32BE(b[n:])
	n += 4
	for n < len(b)-3 {
		f.CompatibleBrands = append(f.CompatibleBrands, pio.U32BE(b[n:]))
		n += 4
	}
	return
}

func (f FileType) Children() []Atom {
	return nil
}

func (f FileType) Clone() Atom {
	c := f
	c.CompatibleBrands = append([]uint32(nil), f.CompatibleBrands...)
	return &c
}

func (u UUIDAtom) Tag() Tag {
	return UUID
}

// UUIDAtom is a user extension atom: a 16-byte user type followed by
// opaque data.
type UUIDAtom struct {
	UserType uuid.UUID
	Data     []byte
	AtomPos
}

func (u UUIDAtom) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(UUID))
	n += 8
	copy(b[n:], u.UserType[:])
	n += len(u.UserType)
	copy(b[n:], u.Data)
	n += len(u.Data)
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (u UUIDAtom) Len() int {
	return 8 + len(u.UserType) + len(u.Data)
}

func (u *UUIDAtom) Unmarshal(b []byte, offset int) (n int, err error) {
	(&u.AtomPos).setPos(offset, len(b))
	n += 8
	if len(b) < n+len(u.UserType) {
		err = parseErr("UserType", n+offset, err)
		return
	}
	copy(u.UserType[:], b[n:])
	n += len(u.UserType)
	u.Data = b[n:]
	n = len(b)
	return
}

func (u UUIDAtom) Children() []Atom {
	return nil
}

func (u UUIDAtom) Clone() Atom {
	c := u
	c.Data = append([]byte(nil), u.Data...)
	return &c
}

// Registry maps top-level atom tags to the types ReadFileAtoms decodes.
// Unregistered atoms are skipped and kept as position-only Dummy atoms.
type Registry struct {
	factories map[Tag]func() Atom
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Tag]func() Atom)}
}

// DefaultRegistry decodes moov, ftyp and uuid.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MOOV, func() Atom { return &Movie{} })
	r.Register(FTYP, func() Atom { return &FileType{} })
	r.Register(UUID, func() Atom { return &UUIDAtom{} })
	return r
}

func (r *Registry) Register(tag Tag, factory func() Atom) {
	r.factories[tag] = factory
}

// New returns a fresh atom for tag, or nil when tag is not registered.
func (r *Registry) New(tag Tag) Atom {
	if factory, ok := r.factories[tag]; ok {
		return factory()
	}
	return nil
}

// maxAtomLoad bounds the size of a registered atom read into memory.
const maxAtomLoad = 1 << 30

// ReadFileAtoms scans the top level of r. Registered atoms are read and
// decoded; all others are seeked over. A nil registry means DefaultRegistry.
func ReadFileAtoms(r io.ReadSeeker, reg *Registry) (atoms []Atom, err error) {
	if reg == nil {
		reg = DefaultRegistry()
	}

	var end int64 = -1
	for {
		var offset int64
		if offset, err = r.Seek(0, io.SeekCurrent); err != nil {
			return
		}
		taghdr := make([]byte, 8)
		if _, err = io.ReadFull(r, taghdr); err != nil {
			if err == io.EOF {
				err = nil
			} else {
				err = fmt.Errorf("mp4io: atom header at %d: %w", offset, err)
			}
			return
		}
		size := int64(pio.U32BE(taghdr[0:]))
		tag := Tag(pio.U32BE(taghdr[4:]))
		hdrlen := int64(8)

		switch size {
		case 1:
			ext := make([]byte, 8)
			if _, err = io.ReadFull(r, ext); err != nil {
				err = fmt.Errorf("mp4io: %s at %d: largesize: %w", tag, offset, err)
				return
			}
			large := pio.U64BE(ext)
			if large > math.MaxInt64 {
				err = parseErr("LargeSize", int(offset), nil)
				return
			}
			size = int64(large)
			hdrlen = 16
		case 0:
			if end < 0 {
				if end, err = r.Seek(0, io.SeekEnd); err != nil {
					return
				}
				if _, err = r.Seek(offset+hdrlen, io.SeekStart); err != nil {
					return
				}
			}
			size = end - offset
		}
		if size < hdrlen {
			err = parseErr(tag.String(), int(offset), nil)
			return
		}

		atom := reg.New(tag)
		if atom != nil {
			if size-hdrlen > maxAtomLoad {
				err = fmt.Errorf("mp4io: %s atom of %d bytes is too large to load", tag, size)
				return
			}
			// decoders expect a compact 8-byte header
			b := make([]byte, 8+size-hdrlen)
			if _, err = io.ReadFull(r, b[8:]); err != nil {
				err = fmt.Errorf("mp4io: %s at %d: %w", tag, offset, err)
				return
			}
			pio.PutU32BE(b[0:], uint32(len(b)))
			pio.PutU32BE(b[4:], uint32(tag))
			if _, err = atom.Unmarshal(b, int(offset+hdrlen-8)); err != nil {
				return
			}
			atoms = append(atoms, atom)
		} else {
			dummy := &Dummy{Tag_: tag}
			dummy.setPos(int(offset), int(size))
			if _, err = r.Seek(offset+size, io.SeekStart); err != nil {
				return
			}
			atoms = append(atoms, dummy)
		}
	}
}
