package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrArtifactMissing = errors.New("recording file not found")
	ErrArtifactCorrupt = errors.New("recording file is corrupted")
)

// ValidateArtifact checks that path holds a finalized MP4/M4A container: an ftyp
// box first and a moov box somewhere among the top-level boxes. A capture killed
// before finalizing has no moov box.
func ValidateArtifact(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: file is empty", ErrArtifactCorrupt)
	}

	boxes, err := topLevelBoxes(f, info.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	if len(boxes) == 0 || boxes[0] != "ftyp" {
		return fmt.Errorf("%w: missing ftyp header", ErrArtifactCorrupt)
	}
	for _, b := range boxes {
		if b == "moov" {
			return nil
		}
	}
	return fmt.Errorf("%w: missing moov box, capture was not finalized", ErrArtifactCorrupt)
}

// topLevelBoxes walks the box headers of an ISO base media file without reading payloads
func topLevelBoxes(r io.ReadSeeker, size int64) ([]string, error) {
	var boxes []string
	var offset int64
	header := make([]byte, 8)

	for offset < size {
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, fmt.Errorf("truncated box header at offset %d", offset)
		}

		boxSize := int64(binary.BigEndian.Uint32(header[:4]))
		boxType := string(header[4:8])
		headerLen := int64(8)

		switch boxSize {
		case 0:
			// Box extends to end of file
			boxSize = size - offset
		case 1:
			large := make([]byte, 8)
			if _, err := io.ReadFull(r, large); err != nil {
				return nil, fmt.Errorf("truncated large box header at offset %d", offset)
			}
			boxSize = int64(binary.BigEndian.Uint64(large))
			headerLen = 16
		}

		if boxSize < headerLen || offset+boxSize > size {
			return nil, fmt.Errorf("box %q at offset %d has invalid size %d", boxType, offset, boxSize)
		}

		boxes = append(boxes, boxType)
		offset += boxSize
	}

	return boxes, nil
}
