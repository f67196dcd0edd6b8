// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/teocci/go-mp4clip/utils/bits/pio"
)

type ParseError struct {
	Debug  string
	Offset int
	prev   *ParseError
}

func (pe *ParseError) Error() string {
	var s []string
	for p := pe; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s:%d", p.Debug, p.Offset))
	}
	return "mp4io: parse error: " + strings.Join(s, ",")
}

func parseErr(debug string, offset int, prev error) (err error) {
	_prev, _ := prev.(*ParseError)
	return &ParseError{Debug: debug, Offset: offset, prev: _prev}
}

var epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

func GetTime32(b []byte) (t time.Time) {
	sec := pio.U32BE(b)
	t = epoch.Add(time.Second * time.Duration(sec))
	return
}

func PutTime32(b []byte, t time.Time) {
	var sec uint32
	if t.After(epoch) {
		sec = uint32(t.Sub(epoch) / time.Second)
	}
	pio.PutU32BE(b, sec)
}

func GetTime64(b []byte) (t time.Time) {
	sec := pio.U64BE(b)
	t = epoch.Add(time.Second * time.Duration(sec))
	return
}

func PutTime64(b []byte, t time.Time) {
	var sec uint64
	if t.After(epoch) {
		sec = uint64(t.Sub(epoch) / time.Second)
	}
	pio.PutU64BE(b, sec)
}

func PutFixed16(b []byte, f float64) {
	intpart, fracpart := math.Modf(f)
	b[0] = uint8(intpart)
	b[1] = uint8(fracpart * 256.0)
}

func GetFixed16(b []byte) float64 {
	return float64(b[0]) + float64(b[1])/256.0
}

func PutFixed32(b []byte, f float64) {
	intpart, fracpart := math.Modf(f)
	pio.PutU16BE(b[0:2], uint16(intpart))
	pio.PutU16BE(b[2:4], uint16(fracpart*65536.0))
}

func GetFixed32(b []byte) float64 {
	return float64(pio.U16BE(b[0:2])) + float64(pio.U16BE(b[2:4]))/65536.0
}

// PackLanguage packs an ISO-639-2/T code into the 15-bit mdhd form.
// Anything that is not three lowercase letters packs as "und".
func PackLanguage(lang string) uint16 {
	if len(lang) != 3 {
		lang = "und"
	}
	var v uint16
	for i := 0; i < 3; i++ {
		c := lang[i]
		if c < 'a' || c > 'z' {
			return PackLanguage("und")
		}
		v = v<<5 | uint16(c-0x60)
	}
	return v
}

func UnpackLanguage(v uint16) string {
	var b [3]byte
	for i := 2; i >= 0; i-- {
		b[i] = byte(v&0x1f) + 0x60
		v >>= 5
	}
	return string(b[:])
}

type Tag uint32

func (t Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(t))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

type Atom interface {
	Pos() (int, int)
	Tag() Tag
	Marshal([]byte) int
	Unmarshal([]byte, int) (int, error)
	Len() int
	Children() []Atom
}

type AtomPos struct {
	Offset int
	Size   int
}

func (ap AtomPos) Pos() (int, int) {
	return ap.Offset, ap.Size
}

func (ap *AtomPos) setPos(offset int, size int) {
	ap.Offset, ap.Size = offset, size
}

// Dummy keeps an atom as raw bytes, header included. Atoms found by the
// top-level scan that are not decoded carry only their position.
type Dummy struct {
	Data []byte
	Tag_ Tag
	AtomPos
}

func (d Dummy) Children() []Atom {
	return nil
}

func (d Dummy) Tag() Tag {
	return d.Tag_
}

func (d Dummy) Len() int {
	return len(d.Data)
}

func (d Dummy) Marshal(b []byte) int {
	copy(b, d.Data)
	return len(d.Data)
}

func (d *Dummy) Unmarshal(b []byte, offset int) (n int, err error) {
	(&d.AtomPos).setPos(offset, len(b))
	d.Data = b
	n = len(b)
	return
}

func StringToTag(tag string) Tag {
	var b [4]byte
	copy(b[:], []byte(tag))
	return Tag(pio.U32BE(b[:]))
}

func FindChildrenByName(root Atom, tag string) Atom {
	return FindChildren(root, StringToTag(tag))
}

func FindChildren(root Atom, tag Tag) Atom {
	if root.Tag() == tag {
		return root
	}
	for _, child := range root.Children() {
		if r := FindChildren(child, tag); r != nil {
			return r
		}
	}
	return nil
}

// nextChild reads the header of the child atom starting at b[n:].
func nextChild(b []byte, n int, offset int) (tag Tag, size int, err error) {
	size = int(pio.U32BE(b[n:]))
	tag = Tag(pio.U32BE(b[n+4:]))
	if size < 8 || len(b) < n+size {
		err = parseErr("TagSizeInvalid", n+offset, err)
	}
	return
}

func unmarshalDummy(b []byte, offset int, tag Tag) (atom *Dummy, err error) {
	atom = &Dummy{Tag_: tag}
	if _, err = atom.Unmarshal(b, offset); err != nil {
		err = parseErr(tag.String(), offset, err)
	}
	return
}

type cloner interface {
	Clone() Atom
}

// CloneAtom returns a deep copy of a. Atoms without a Clone method are
// serialized into a detached Dummy.
func CloneAtom(a Atom) Atom {
	if c, ok := a.(cloner); ok {
		return c.Clone()
	}
	b := make([]byte, a.Len())
	a.Marshal(b)
	offset, _ := a.Pos()
	return &Dummy{Tag_: a.Tag(), Data: b, AtomPos: AtomPos{Offset: offset, Size: len(b)}}
}

func printatom(out io.Writer, root Atom, depth int) {
	offset, size := root.Pos()

	type stringintf interface {
		String() string
	}

	fmt.Fprintf(out,
		"%s%s offset=%d size=%d",
		strings.Repeat(" ", depth*2), root.Tag(), offset, size,
	)
	if str, ok := root.(stringintf); ok {
		fmt.Fprint(out, " ", str.String())
	}
	fmt.Fprintln(out)

	children := root.Children()
	for _, child := range children {
		printatom(out, child, depth+1)
	}
}

func FprintAtom(out io.Writer, root Atom) {
	printatom(out, root, 0)
}

func PrintAtom(root Atom) {
	FprintAtom(os.Stdout, root)
}

func (mh MovieHeader) String() string {
	return fmt.Sprintf("timescale=%d dur=%d", mh.TimeScale, mh.Duration)
}

func (th TrackHeader) String() string {
	return fmt.Sprintf("id=%d dur=%d", th.TrackId, th.Duration)
}

func (mh MediaHeader) String() string {
	return fmt.Sprintf("timescale=%d dur=%d lang=%s", mh.TimeScale, mh.Duration, UnpackLanguage(mh.Language))
}

func (hr HandlerRefer) String() string {
	return fmt.Sprintf("type=%s", hr.HandlerType)
}

func (ts TimeToSample) String() string {
	return fmt.Sprintf("entries=%d", len(ts.Entries))
}

func (sc SampleToChunk) String() string {
	return fmt.Sprintf("entries=%d", len(sc.Entries))
}

func (s SampleSize) String() string {
	if s.SampleSize != 0 {
		return fmt.Sprintf("size=%d count=%d", s.SampleSize, s.SampleCount)
	}
	return fmt.Sprintf("entries=%d", len(s.Entries))
}

func (ss SyncSample) String() string {
	return fmt.Sprintf("entries=%d", len(ss.Entries))
}

func (co CompositionOffset) String() string {
	return fmt.Sprintf("entries=%d", len(co.Entries))
}

func (co ChunkOffset) String() string {
	return fmt.Sprintf("entries=%d", len(co.Entries))
}

func (co ChunkOffset64) String() string {
	return fmt.Sprintf("entries=%d", len(co.Entries))
}

func (esd ElemStreamDesc) String() string {
	return fmt.Sprintf("oti=0x%02x configlen=%d", esd.ObjectType, len(esd.DecConfig))
}

func (u UUIDAtom) String() string {
	return fmt.Sprintf("usertype=%s datalen=%d", u.UserType, len(u.Data))
}

func (f FileType) String() string {
	return fmt.Sprintf("major=%s minor=%d", Tag(f.MajorBrand), f.MinorVersion)
}

func (t *Track) GetElemStreamDesc() (esds *ElemStreamDesc) {
	atom := FindChildren(t, ESDS)
	esds, _ = atom.(*ElemStreamDesc)
	return
}
