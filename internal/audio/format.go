// Package audio inspects uploaded session recordings before they are sent
// to the transcription boundary: container sniffing for the accepted upload
// formats and a WAV duration probe for session-length hints.
package audio

import (
	"bytes"
	"fmt"
)

// sniffLen is the number of leading bytes needed to identify a format.
const sniffLen = 12

// Format describes a recognized audio container.
type Format struct {
	Name string // short name, e.g. "wav"
	MIME string // MIME type sent to the transcription service
}

// Supported upload formats, matching what the transcription service accepts.
var (
	FormatWAV  = Format{Name: "wav", MIME: "audio/wav"}
	FormatMP3  = Format{Name: "mp3", MIME: "audio/mpeg"}
	FormatOGG  = Format{Name: "ogg", MIME: "audio/ogg"}
	FormatWebM = Format{Name: "webm", MIME: "audio/webm"}
	FormatMP4  = Format{Name: "m4a", MIME: "audio/mp4"} // m4a, mp4, and raw AAC in an MP4 container
	FormatAAC  = Format{Name: "aac", MIME: "audio/aac"}
)

// DetectFormat identifies an uploaded recording by its magic bytes.
// It returns an error for anything that is not a supported audio container.
func DetectFormat(data []byte) (Format, error) {
	if len(data) < sniffLen {
		return Format{}, fmt.Errorf("audio data too short to identify (%d bytes)", len(data))
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, nil

	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3, nil

	case data[0] == 0xFF && (data[1] == 0xFB || data[1] == 0xFA || data[1] == 0xF3 || data[1] == 0xF2):
		// MPEG audio frame sync without an ID3 tag
		return FormatMP3, nil

	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG, nil

	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML header (WebM/Matroska)
		return FormatWebM, nil

	case bytes.Equal(data[4:8], []byte("ftyp")):
		// ISO base media container (m4a/mp4/aac)
		return FormatMP4, nil

	case data[0] == 0xFF && (data[1] == 0xF1 || data[1] == 0xF9):
		// ADTS AAC frame sync
		return FormatAAC, nil
	}

	return Format{}, fmt.Errorf("unsupported audio format")
}
