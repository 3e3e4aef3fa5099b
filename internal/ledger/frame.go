// Package ledger implements the crash-safe append-only signal ledger:
// framed WAL segments partitioned by UTC date, with seal, rollover,
// manifest, and lifecycle management.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame layout: [u32 big-endian payload length][u32 big-endian crc32][payload]
const frameHeaderSize = 8

// maxFramePayload rejects absurd lengths that indicate a corrupt header
const maxFramePayload = 64 << 20

// ErrTruncatedFrame marks a clean truncation at the tail of a segment:
// the bytes after the last complete frame are a partial write from a crash.
var ErrTruncatedFrame = errors.New("truncated frame at segment tail")

// ErrChecksumMismatch marks a frame whose payload fails CRC validation
var ErrChecksumMismatch = errors.New("frame checksum mismatch")

// EncodeFrame renders a payload as a framed record
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(payload))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

// ReadFrame reads one frame from r. io.EOF means a clean end;
// ErrTruncatedFrame means a partial tail. When validate is set, a CRC
// mismatch returns ErrChecksumMismatch along with the payload length
// consumed, so callers can skip the record and continue.
func ReadFrame(r io.Reader, validate bool) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	n, err := io.ReadFull(r, header)
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, ErrTruncatedFrame
	}

	length := binary.BigEndian.Uint32(header[0:4])
	expectedCRC := binary.BigEndian.Uint32(header[4:8])

	if length > maxFramePayload {
		return nil, fmt.Errorf("%w: implausible payload length %d", ErrTruncatedFrame, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTruncatedFrame
	}

	if validate && crc32.ChecksumIEEE(payload) != expectedCRC {
		return payload, ErrChecksumMismatch
	}

	return payload, nil
}

// SegmentChecksum formats a crc32 checksum for the manifest
func SegmentChecksum(sum uint32) string {
	return fmt.Sprintf("crc32:%08x", sum)
}
