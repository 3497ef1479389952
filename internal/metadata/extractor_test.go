package metadata

import (
	"encoding/binary"
	"io"
	"testing"

	"trackdrop/internal/id3"

	"github.com/sirupsen/logrus"
)

func newTestExtractor() *Extractor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewExtractor([]string{".mp3", ".flac", ".wav", ".m4a"}, logger)
}

func TestIsAudioFile(t *testing.T) {
	extractor := newTestExtractor()

	testCases := []struct {
		filename string
		expected bool
	}{
		{"song.mp3", true},
		{"song.MP3", true},
		{"song.flac", true},
		{"song.wav", true},
		{"song.m4a", true},
		{"cover.jpg", false},
		{"song", false},
		{"", false},
	}

	for _, tc := range testCases {
		if got := extractor.IsAudioFile(tc.filename); got != tc.expected {
			t.Errorf("IsAudioFile(%s): expected %v, got %v", tc.filename, tc.expected, got)
		}
	}
}

func TestGetContentType(t *testing.T) {
	testCases := []struct {
		filename string
		expected string
	}{
		{"song.mp3", "audio/mpeg"},
		{"song.FLAC", "audio/flac"},
		{"song.wav", "audio/wav"},
		{"song.M4A", "audio/mp4"},
		{"song.txt", "application/octet-stream"},
	}

	for _, tc := range testCases {
		if got := GetContentType(tc.filename); got != tc.expected {
			t.Errorf("GetContentType(%s): expected %s, got %s", tc.filename, tc.expected, got)
		}
	}
}

func TestGetAlbumArtMimeType(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"PNG", []byte{0x89, 0x50, 0x4E, 0x47}, "image/png"},
		{"GIF", []byte{0x47, 0x49, 0x46, 0x38}, "image/gif"},
		{"WEBP", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"Unknown", []byte{0x00, 0x00, 0x00, 0x00}, "application/octet-stream"},
		{"Too short", []byte{0xFF}, "application/octet-stream"},
		{"Empty", []byte{}, "application/octet-stream"},
	}

	for _, tc := range testCases {
		if got := GetAlbumArtMimeType(tc.data); got != tc.expected {
			t.Errorf("GetAlbumArtMimeType(%s): expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestInspectTaggedMP3(t *testing.T) {
	extractor := newTestExtractor()

	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	audio := id3.Inject(append(frame, frame...), id3.TagFields{
		Title:       "Harbour Lights",
		Artist:      "Gyros15 Musics",
		Album:       "Coastline",
		TrackNumber: 4,
		TotalTracks: 9,
		AlbumArt:    []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2},
	})

	info := extractor.Inspect("upload.mp3", audio)

	if info.Title != "Harbour Lights" {
		t.Errorf("expected title Harbour Lights, got %q", info.Title)
	}
	if info.Album != "Coastline" {
		t.Errorf("expected album Coastline, got %q", info.Album)
	}
	if info.TrackNumber != 4 {
		t.Errorf("expected track number 4, got %d", info.TrackNumber)
	}
	if !info.HasPicture {
		t.Error("expected embedded picture to be detected")
	}
}

func TestInspectUntaggedFile(t *testing.T) {
	extractor := newTestExtractor()

	info := extractor.Inspect("invalid.mp3", []byte("this is not an audio file"))
	if info.Title != "" || info.HasPicture {
		t.Errorf("expected empty info, got %+v", info)
	}
}

func TestTitleFor(t *testing.T) {
	testCases := []struct {
		explicit string
		tagTitle string
		filename string
		expected string
	}{
		{"Given", "Tagged", "file.mp3", "Given"},
		{"  ", "Tagged", "file.mp3", "Tagged"},
		{"", "", "03 - Night Drive.mp3", "03 - Night Drive"},
		{"", "", "dir/track.flac", "track"},
	}

	for _, tc := range testCases {
		got := TitleFor(tc.explicit, Info{Title: tc.tagTitle}, tc.filename)
		if got != tc.expected {
			t.Errorf("TitleFor(%q, %q, %q): expected %q, got %q", tc.explicit, tc.tagTitle, tc.filename, tc.expected, got)
		}
	}
}

// wavFile builds a canonical 44-byte header followed by pcmBytes of silence.
func wavFile(sampleRate uint32, channels, bitDepth uint16, pcmBytes int) []byte {
	le := binary.LittleEndian
	blockAlign := channels * bitDepth / 8

	b := []byte("RIFF")
	b = le.AppendUint32(b, uint32(36+pcmBytes))
	b = append(b, "WAVEfmt "...)
	b = le.AppendUint32(b, 16)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, channels)
	b = le.AppendUint32(b, sampleRate)
	b = le.AppendUint32(b, sampleRate*uint32(blockAlign))
	b = le.AppendUint16(b, blockAlign)
	b = le.AppendUint16(b, bitDepth)
	b = append(b, "data"...)
	b = le.AppendUint32(b, uint32(pcmBytes))
	return append(b, make([]byte, pcmBytes)...)
}

func TestDurationWAV(t *testing.T) {
	data := wavFile(8000, 1, 16, 8000*2*3)

	secs, err := durationWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secs != 3 {
		t.Errorf("expected 3 seconds, got %d", secs)
	}

	if _, err := durationWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for invalid wav")
	}
}

// m4aFile builds ftyp + moov{mvhd} with the given timescale and duration.
func m4aFile(timescale, units uint32) []byte {
	be := binary.BigEndian

	mvhd := be.AppendUint32(nil, 8+1+3+4+4+4+4)
	mvhd = append(mvhd, "mvhd"...)
	mvhd = append(mvhd, 0, 0, 0, 0)
	mvhd = be.AppendUint32(mvhd, 0)
	mvhd = be.AppendUint32(mvhd, 0)
	mvhd = be.AppendUint32(mvhd, timescale)
	mvhd = be.AppendUint32(mvhd, units)

	moov := be.AppendUint32(nil, uint32(8+len(mvhd)))
	moov = append(moov, "moov"...)
	moov = append(moov, mvhd...)

	ftyp := be.AppendUint32(nil, 16)
	ftyp = append(ftyp, "ftypM4A "...)
	ftyp = be.AppendUint32(ftyp, 0)

	return append(ftyp, moov...)
}

func TestInspectM4ADuration(t *testing.T) {
	extractor := newTestExtractor()

	info := extractor.Inspect("song.m4a", m4aFile(1000, 185500))
	if info.Duration != 186 {
		t.Errorf("expected 186 seconds, got %d", info.Duration)
	}
}

func TestEstimateFromSize(t *testing.T) {
	secs, err := estimateFromSize(192000/8*10, 192000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secs != 10 {
		t.Errorf("expected 10 seconds, got %d", secs)
	}

	if _, err := estimateFromSize(100, 0); err == nil {
		t.Error("expected error for zero bitrate")
	}
}
