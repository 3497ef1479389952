package id3

import (
	"encoding/binary"
	"unicode/utf16"
)

// Frame identifiers written by BuildTag.
const (
	FrameTitle   = "TIT2"
	FrameArtist  = "TPE1"
	FrameAlbum   = "TALB"
	FrameTrack   = "TRCK"
	FramePicture = "APIC"
)

// FrameHeaderSize is the size of an ID3v2.3 frame header.
const FrameHeaderSize = 10

// Text encoding bytes.
const (
	encodingLatin1 byte = 0
	encodingUTF16  byte = 1
)

const (
	pictureMIMEType            = "image/jpeg"
	pictureTypeFrontCover byte = 3
)

var utf16LEBOM = []byte{0xFF, 0xFE}

// Frame is a single ID3v2.3 frame: a four character identifier and its payload.
// Flags are always zero.
type Frame struct {
	ID      string
	Payload []byte
}

// Size returns the declared payload size, excluding the frame header.
func (f Frame) Size() uint32 {
	return uint32(len(f.Payload))
}

// Len returns the serialized length of the frame including its header.
func (f Frame) Len() int {
	return FrameHeaderSize + len(f.Payload)
}

// Bytes serializes the frame.
func (f Frame) Bytes() []byte {
	return f.appendTo(make([]byte, 0, f.Len()))
}

// appendTo writes the 10-byte header (id, big-endian size, zero flags)
// followed by the payload. Frame sizes are plain integers in v2.3, not syncsafe.
func (f Frame) appendTo(dst []byte) []byte {
	var id [4]byte
	copy(id[:], f.ID)
	dst = append(dst, id[:]...)
	dst = binary.BigEndian.AppendUint32(dst, f.Size())
	dst = append(dst, 0, 0)
	return append(dst, f.Payload...)
}

// Latin1TextFrame builds a text frame with encoding byte 0. Each code point is
// truncated to its low 8 bits; text outside Latin-1 is not representable and
// is not rejected.
func Latin1TextFrame(id, text string) Frame {
	payload := make([]byte, 0, 1+len(text))
	payload = append(payload, encodingLatin1)
	for _, r := range text {
		payload = append(payload, uint8(r))
	}
	return Frame{ID: id, Payload: payload}
}

// UTF16TextFrame builds a text frame with encoding byte 1: a little-endian BOM
// followed by one little-endian 16-bit value per UTF-16 code unit.
func UTF16TextFrame(id, text string) Frame {
	units := utf16.Encode([]rune(text))
	payload := make([]byte, 0, 1+len(utf16LEBOM)+2*len(units))
	payload = append(payload, encodingUTF16)
	payload = append(payload, utf16LEBOM...)
	for _, u := range units {
		payload = binary.LittleEndian.AppendUint16(payload, u)
	}
	return Frame{ID: id, Payload: payload}
}

// PictureFrame builds an APIC frame holding art as the front cover. The MIME
// type is always declared as image/jpeg and the description is empty.
func PictureFrame(art []byte) Frame {
	payload := make([]byte, 0, 1+len(pictureMIMEType)+3+len(art))
	payload = append(payload, encodingLatin1)
	payload = append(payload, pictureMIMEType...)
	payload = append(payload, 0)
	payload = append(payload, pictureTypeFrontCover)
	payload = append(payload, 0)
	payload = append(payload, art...)
	return Frame{ID: FramePicture, Payload: payload}
}
