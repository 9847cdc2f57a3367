// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm applied to one frame. Tags
// are written on the wire: changing these values breaks compatibility
// with running peers.
type Tag uint8

const (
	// None indicates an uncompressed frame.
	None Tag = 0

	// LZ4 indicates LZ4 block compression. Cheap enough to leave on
	// for every connection.
	LZ4 Tag = 1

	// Zstd indicates zstd at the default level. Better ratios for
	// large text-like payloads (file listings, command output).
	Zstd Tag = 2
)

// MinimumSize is the smallest frame Auto will try to compress.
const MinimumSize = 1024

// String returns the configuration name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// Parse parses a tag from its configuration name. The empty string is
// accepted as "none".
func Parse(name string) (Tag, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// ErrIncompressible is returned by Compress when the compressed output
// would not be smaller than the input. The caller should send the
// frame uncompressed.
var ErrIncompressible = errors.New("data is incompressible")

// Compress compresses data with the given algorithm. For None the input
// is returned unchanged (no copy).
func Compress(data []byte, tag Tag) ([]byte, error) {
	switch tag {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Decompress reverses Compress. uncompressedSize must match the
// original length exactly; a mismatch is an error, as is a size above
// limit.
func Decompress(compressed []byte, tag Tag, uncompressedSize, limit int) ([]byte, error) {
	if uncompressedSize < 0 || (limit > 0 && uncompressedSize > limit) {
		return nil, fmt.Errorf("uncompressed size %d exceeds limit %d", uncompressedSize, limit)
	}
	switch tag {
	case None:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed frame: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case LZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case Zstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Auto compresses data with preferred when the frame is large enough
// and compression actually helps. It returns the bytes to send and the
// tag that describes them.
func Auto(data []byte, preferred Tag) ([]byte, Tag, error) {
	if preferred == None || len(data) < MinimumSize {
		return data, None, nil
	}
	compressed, err := Compress(data, preferred)
	if err != nil {
		if errors.Is(err, ErrIncompressible) {
			return data, None, nil
		}
		return nil, 0, err
	}
	return compressed, preferred, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll/DecodeAll, so one of each serves every connection.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, ErrIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
