// Package id3 writes a fixed-layout ID3v2.3 tag and splices it in front of an
// MP3 payload, replacing any ID3v2 tag the payload already starts with.
//
// Everything here works on in-memory buffers and never fails: the caller owns
// fetching, validation and the HTTP response.
package id3

import "strconv"

// HeaderSize is the size of the ID3v2 tag header.
const HeaderSize = 10

const (
	identifier   = "ID3"
	majorVersion = 3
	revision     = 0
)

// TagFields are the values written into a new tag.
type TagFields struct {
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	TotalTracks int
	AlbumArt    []byte
}

// trackText formats the TRCK value as "n/total". Non-positive values fall
// back to 1.
func (f TagFields) trackText() string {
	track, total := f.TrackNumber, f.TotalTracks
	if track < 1 {
		track = 1
	}
	if total < 1 {
		total = 1
	}
	return strconv.Itoa(track) + "/" + strconv.Itoa(total)
}

// Frames returns the frames of a tag for fields in write order: TIT2, TPE1,
// TALB, TRCK and, when album art is present, APIC.
func Frames(fields TagFields) []Frame {
	frames := []Frame{
		UTF16TextFrame(FrameTitle, fields.Title),
		UTF16TextFrame(FrameArtist, fields.Artist),
		UTF16TextFrame(FrameAlbum, fields.Album),
		Latin1TextFrame(FrameTrack, fields.trackText()),
	}
	if len(fields.AlbumArt) > 0 {
		frames = append(frames, PictureFrame(fields.AlbumArt))
	}
	return frames
}

// BuildTag serializes a complete tag: header followed by Frames(fields).
func BuildTag(fields TagFields) []byte {
	frames := Frames(fields)

	var frameBytes int
	for _, f := range frames {
		frameBytes += f.Len()
	}

	buf := make([]byte, 0, HeaderSize+frameBytes)
	buf = append(buf, identifier...)
	buf = append(buf, majorVersion, revision, 0)
	size := EncodeSyncsafe(uint32(frameBytes))
	buf = append(buf, size[:]...)
	for _, f := range frames {
		buf = f.appendTo(buf)
	}
	return buf
}

// ExistingTagSize returns how many leading bytes of audio belong to an ID3v2
// tag, or 0 if audio does not start with "ID3". Only the identifier is
// checked; version and flag bytes are not. The result never exceeds len(audio).
func ExistingTagSize(audio []byte) int {
	if len(audio) < len(identifier) || string(audio[:len(identifier)]) != identifier {
		return 0
	}
	if len(audio) < HeaderSize {
		return len(audio)
	}

	size := HeaderSize + int(DecodeSyncsafe([4]byte(audio[6:10])))
	if size > len(audio) {
		return len(audio)
	}
	return size
}

// StripTag returns the part of audio that follows any leading ID3v2 tag.
// The returned slice shares audio's backing array.
func StripTag(audio []byte) []byte {
	return audio[ExistingTagSize(audio):]
}

// Inject returns a new buffer holding a freshly built tag for fields followed
// by audio with its existing tag removed. Neither input is modified.
func Inject(audio []byte, fields TagFields) []byte {
	tag := BuildTag(fields)
	payload := StripTag(audio)

	out := make([]byte, 0, len(tag)+len(payload))
	out = append(out, tag...)
	return append(out, payload...)
}
