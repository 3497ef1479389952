package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Info is what an uploaded audio file tells us about itself
type Info struct {
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	Duration    int // in seconds
	HasPicture  bool
}

// Extractor inspects uploaded audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// Inspect reads tags and duration from an in-memory audio file. Missing or
// unreadable tags are not an error; the returned Info is simply sparse.
func (e *Extractor) Inspect(name string, data []byte) Info {
	startTime := time.Now()
	var info Info

	duration, err := e.calculateDuration(name, data)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file":  name,
			"error": err.Error(),
		}).Debug("Failed to calculate duration, setting to 0")
	}
	info.Duration = duration

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file":  name,
			"error": err.Error(),
		}).Debug("No readable tags")
		return info
	}

	info.Title = strings.TrimSpace(m.Title())
	info.Artist = strings.TrimSpace(m.Artist())
	info.Album = strings.TrimSpace(m.Album())
	info.TrackNumber, _ = m.Track()
	info.HasPicture = m.Picture() != nil

	e.logger.WithFields(logrus.Fields{
		"file":           name,
		"title":          info.Title,
		"duration":       info.Duration,
		"hasPicture":     info.HasPicture,
		"processingTime": time.Since(startTime),
	}).Debug("Inspected audio file")

	return info
}

// TitleFor picks a display title: explicit, then tag, then file name.
func TitleFor(explicit string, info Info, filename string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if info.Title != "" {
		return info.Title
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(name string, data []byte) (int, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return durationMP3(data)
	case ".flac":
		return durationFLAC(data)
	case ".wav":
		return durationWAV(data)
	case ".m4a":
		return durationM4A(bytes.NewReader(data))
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// durationMP3 sums decoded frame durations, falling back to a bitrate
// estimate when no frame decodes.
func durationMP3(data []byte) (int, error) {
	dec := mp3.NewDecoder(bytes.NewReader(data))
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return estimateFromSize(int64(len(data)), 192000)
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds()), nil
}

// durationFLAC reads the STREAMINFO metadata block
func durationFLAC(data []byte) (int, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// durationWAV derives the duration from the header and the PCM byte count
func durationWAV(data []byte) (int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	const headerSize = 44
	pcmBytes := int64(len(data)) - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	secs := float64(sampleFrames) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

// durationM4A reads timescale and duration from the moov/mvhd atom.
func durationM4A(r io.ReadSeeker) (int, error) {
	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := r.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			if _, err := io.ReadFull(r, head); err != nil {
				return 0, err
			}
			subSize := binary.BigEndian.Uint32(head[0:4])
			if string(head[4:8]) == "mvhd" {
				return readMVHD(r)
			}
			if subSize < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if _, err := r.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(subSize)
		}
		return 0, fmt.Errorf("mvhd atom not found")
	}
}

func readMVHD(r io.ReadSeeker) (int, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return 0, err
	}

	// flags, creation and modification times
	skip := int64(3 + 4 + 4)
	if version[0] == 1 {
		skip = 3 + 8 + 8
	}
	if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
		return 0, err
	}

	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf[0:4])
	units := binary.BigEndian.Uint32(buf[4:8])
	if timescale == 0 {
		return 0, fmt.Errorf("invalid timescale")
	}
	return int(float64(units)/float64(timescale) + 0.5), nil
}

// estimateFromSize is the last-resort duration estimate at a fixed bitrate
func estimateFromSize(size int64, bitrate int) (int, error) {
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int((size * 8) / int64(bitrate)), nil
}

// GetAlbumArtMimeType guesses the MIME type of image data from its magic bytes
func GetAlbumArtMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	return "application/octet-stream"
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// GetContentType returns the MIME type for an audio file
func GetContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
