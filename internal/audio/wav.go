package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// WAVDuration reads the fmt and data chunks of a RIFF/WAVE file and returns
// the recording duration. Only PCM byte-rate math is needed; compressed WAV
// variants that omit a usable byte rate return an error.
func WAVDuration(data []byte) (time.Duration, error) {
	if format, err := DetectFormat(data); err != nil || format != FormatWAV {
		return 0, fmt.Errorf("not a WAV file")
	}

	var byteRate uint32
	var dataLen uint32

	// Walk the RIFF chunks after the 12-byte header.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			dataLen = chunkSize
		}

		// Chunks are word-aligned.
		offset = body + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if byteRate == 0 {
		return 0, fmt.Errorf("missing or zero byte rate in fmt chunk")
	}
	if dataLen == 0 {
		return 0, fmt.Errorf("missing data chunk")
	}

	seconds := float64(dataLen) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}
