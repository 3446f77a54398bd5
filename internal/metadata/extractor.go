package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cadenza/internal/cache"
	"cadenza/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// folderArtworkNames are checked, in order, when a file carries no embedded
// picture.
var folderArtworkNames = []string{
	"cover.jpg", "cover.jpeg", "cover.png",
	"folder.jpg", "folder.jpeg", "folder.png",
	"front.jpg", "front.png", "album.jpg",
}

// audioProperties holds the format-level facts read from the audio stream
// itself rather than from tags.
type audioProperties struct {
	Duration   float64
	Bitrate    int
	SampleRate int
	BitDepth   int
	Channels   int
	Lossless   bool
}

// Extractor reads tags and audio properties from files on disk. It never
// touches the database; the ingestion pipeline owns persistence.
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
	artwork          *cache.ArtworkCache
}

// NewExtractor creates an extractor for the given file extensions.
func NewExtractor(supportedFormats []string, logger *logrus.Logger, artwork *cache.ArtworkCache) *Extractor {
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
		artwork:          artwork,
	}
}

// IsAudioFile checks whether a path has a supported audio extension.
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// Extract reads one audio file and returns its fixed-shape metadata record.
// Tag failures degrade to a filename-derived title; only an unreadable file
// is an error.
func (e *Extractor) Extract(filePath string) (models.TrackMetadata, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return models.TrackMetadata{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	props, err := e.probeProperties(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to probe audio properties")
	}

	meta := models.TrackMetadata{
		Duration:   props.Duration,
		Bitrate:    props.Bitrate,
		SampleRate: props.SampleRate,
		BitDepth:   props.BitDepth,
		Channels:   props.Channels,
		Lossless:   props.Lossless,
	}

	tags, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to read tags, using filename")

		meta.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
		return meta, nil
	}

	meta.Title = tags.Title()
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	meta.Artist = tags.Artist()
	meta.AlbumArtist = tags.AlbumArtist()
	meta.Album = tags.Album()
	meta.Genre = tags.Genre()
	meta.Composer = tags.Composer()
	meta.TrackNumber, _ = tags.Track()
	meta.DiscNumber, _ = tags.Disc()
	if year := tags.Year(); year > 0 {
		meta.Year = fmt.Sprintf("%04d", year)
	}

	raw := tags.Raw()
	meta.ISRC = rawTagString(raw, "TSRC", "ISRC")
	meta.Label = rawTagString(raw, "TPUB", "LABEL", "ORGANIZATION", "PUBLISHER")
	meta.Conductor = rawTagString(raw, "TPE3", "CONDUCTOR")
	meta.Producer = rawTagString(raw, "PRODUCER")

	if picture := tags.Picture(); picture != nil && len(picture.Data) > 0 {
		meta.Artwork = picture.Data
	}

	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          meta.Title,
		"artist":         meta.Artist,
		"duration":       meta.Duration,
		"lossless":       meta.Lossless,
		"processingTime": time.Since(startTime),
	}).Debug("Extracted metadata")

	return meta, nil
}

// CacheArtwork stores an artwork blob and returns its content-derived id.
func (e *Extractor) CacheArtwork(data []byte) string {
	return e.artwork.Put(data)
}

// GetArtwork retrieves cached artwork by id.
func (e *Extractor) GetArtwork(id string) ([]byte, bool) {
	return e.artwork.Get(id)
}

// FindFolderArtwork looks for a conventional cover file next to the audio
// files in dir. Used as a fallback when tracks carry no embedded picture.
func (e *Extractor) FindFolderArtwork(dir string) []byte {
	for _, name := range folderArtworkNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil && len(data) > 0 {
			return data
		}
	}
	return nil
}

// ArtworkMimeType guesses the MIME type of an artwork blob from its magic
// bytes.
func ArtworkMimeType(data []byte) string {
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

	return "application/octet-stream"
}

// rawTagString looks up the first matching raw frame among the given keys,
// case-insensitively, and returns it if it holds plain text. ID3 frame ids
// and vorbis comment names differ per container, so callers pass both.
func rawTagString(raw map[string]interface{}, keys ...string) string {
	for rawKey, value := range raw {
		for _, key := range keys {
			if !strings.EqualFold(rawKey, key) {
				continue
			}
			if s, ok := value.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func (e *Extractor) probeProperties(filePath string) (audioProperties, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".flac":
		return e.probeFLAC(filePath)
	case ".mp3":
		return e.probeMP3(filePath)
	case ".wav":
		return e.probeWAV(filePath)
	case ".m4a":
		return e.probeM4A(filePath)
	default:
		return audioProperties{}, fmt.Errorf("unsupported format: %s", ext)
	}
}

// probeFLAC reads the STREAMINFO block.
func (e *Extractor) probeFLAC(path string) (audioProperties, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return audioProperties{}, fmt.Errorf("failed to parse flac stream: %w", err)
	}

	si := stream.Info
	props := audioProperties{
		SampleRate: int(si.SampleRate),
		BitDepth:   int(si.BitsPerSample),
		Channels:   int(si.NChannels),
		Lossless:   true,
	}
	if si.NSamples > 0 && si.SampleRate > 0 {
		props.Duration = float64(si.NSamples) / float64(si.SampleRate)
	}
	props.Bitrate = estimateBitrate(path, props.Duration)
	return props, nil
}

// probeMP3 walks the frame stream to get an exact duration and an average
// bitrate. VBR files make header-only estimates unreliable.
func (e *Extractor) probeMP3(path string) (audioProperties, error) {
	f, err := os.Open(path)
	if err != nil {
		return audioProperties{}, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		total      time.Duration
		bitrateSum int64
		frames     int
		skipped    int
		props      audioProperties
	)
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) || frames > 0 {
				break
			}
			return audioProperties{}, fmt.Errorf("failed to decode mp3 frames: %w", err)
		}
		header := fr.Header()
		if frames == 0 {
			props.SampleRate = int(header.SampleRate())
			if header.ChannelMode() == mp3.SingleChannel {
				props.Channels = 1
			} else {
				props.Channels = 2
			}
		}
		total += fr.Duration()
		bitrateSum += int64(header.BitRate())
		frames++
	}

	props.Duration = total.Seconds()
	if frames > 0 {
		props.Bitrate = int(bitrateSum / int64(frames) / 1000)
	}
	return props, nil
}

// probeWAV reads the header and approximates duration from the PCM payload
// size, avoiding a full decode.
func (e *Extractor) probeWAV(path string) (audioProperties, error) {
	f, err := os.Open(path)
	if err != nil {
		return audioProperties{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return audioProperties{}, fmt.Errorf("invalid wav header")
	}

	props := audioProperties{
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Channels:   int(dec.NumChans),
		Lossless:   true,
	}
	props.Bitrate = props.SampleRate * props.BitDepth * props.Channels / 1000

	st, err := f.Stat()
	if err != nil {
		return props, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerFrame > 0 {
		props.Duration = float64(pcmBytes/bytesPerFrame) / float64(dec.SampleRate)
	}
	return props, nil
}

// probeM4A scans MP4 atoms for the mvhd timescale and duration. Best-effort;
// a missing moov box yields zero duration rather than an error at the
// pipeline level.
func (e *Extractor) probeM4A(path string) (audioProperties, error) {
	f, err := os.Open(path)
	if err != nil {
		return audioProperties{}, err
	}
	defer f.Close()

	props := audioProperties{Channels: 2}
	for {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f, head); err != nil {
			return props, fmt.Errorf("mvhd atom not found: %w", err)
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return props, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return props, err
			}
			continue
		}

		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			subHead := make([]byte, 8)
			if _, err := io.ReadFull(f, subHead); err != nil {
				return props, err
			}
			subSize := binary.BigEndian.Uint32(subHead[0:4])
			if subSize < 8 {
				return props, fmt.Errorf("invalid sub-atom size")
			}
			if string(subHead[4:8]) != "mvhd" {
				if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
					return props, err
				}
				read += int64(subSize)
				continue
			}

			version := make([]byte, 1)
			if _, err := io.ReadFull(f, version); err != nil {
				return props, err
			}
			skip := int64(3 + 4 + 4) // flags + 32-bit creation/modification times
			if version[0] == 1 {
				skip = 3 + 8 + 8
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return props, err
			}
			fields := make([]byte, 8)
			if _, err := io.ReadFull(f, fields); err != nil {
				return props, err
			}
			timescale := binary.BigEndian.Uint32(fields[0:4])
			durUnits := binary.BigEndian.Uint32(fields[4:8])
			if timescale == 0 {
				return props, fmt.Errorf("invalid timescale")
			}
			props.Duration = float64(durUnits) / float64(timescale)
			props.Bitrate = estimateBitrate(path, props.Duration)
			return props, nil
		}
		return props, fmt.Errorf("mvhd atom not found")
	}
}

// estimateBitrate derives an average kbps from file size and duration when
// the container has no per-frame rate information.
func estimateBitrate(path string, duration float64) int {
	if duration <= 0 {
		return 0
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(float64(st.Size()) * 8 / duration / 1000)
}
