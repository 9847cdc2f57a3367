// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func compressibleData() []byte {
	return []byte(strings.Repeat("drwxr-xr-x  2 agent agent 4096 workspace/src/main.go\n", 200))
}

func TestRoundtrip(t *testing.T) {
	data := compressibleData()
	for _, tag := range []Tag{LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := Compress(data, tag)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Fatalf("compressed size %d not smaller than %d", len(compressed), len(data))
			}
			restored, err := Decompress(compressed, tag, len(data), 0)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Fatal("roundtrip mismatch")
			}
		})
	}
}

func TestIncompressible(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	for _, tag := range []Tag{LZ4, Zstd} {
		if _, err := Compress(random, tag); !errors.Is(err, ErrIncompressible) {
			t.Errorf("%s: Compress(random) error = %v, want ErrIncompressible", tag, err)
		}
	}

	body, used, err := Auto(random, Zstd)
	if err != nil {
		t.Fatalf("Auto: %v", err)
	}
	if used != None || !bytes.Equal(body, random) {
		t.Errorf("Auto on random data should fall back to None, got %s", used)
	}
}

func TestAutoSkipsSmallFrames(t *testing.T) {
	small := bytes.Repeat([]byte("a"), MinimumSize-1)
	body, used, err := Auto(small, LZ4)
	if err != nil {
		t.Fatalf("Auto: %v", err)
	}
	if used != None || len(body) != len(small) {
		t.Errorf("small frame compressed with %s", used)
	}

	body, used, err = Auto(compressibleData(), LZ4)
	if err != nil {
		t.Fatalf("Auto: %v", err)
	}
	if used != LZ4 {
		t.Errorf("large compressible frame used %s, want lz4", used)
	}
	if len(body) >= len(compressibleData()) {
		t.Error("Auto did not shrink compressible frame")
	}
}

func TestDecompressSizeChecks(t *testing.T) {
	data := compressibleData()
	compressed, err := Compress(data, Zstd)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := Decompress(compressed, Zstd, len(data)-1, 0); err == nil {
		t.Error("expected size mismatch error")
	}
	if _, err := Decompress(compressed, Zstd, len(data), len(data)-1); err == nil {
		t.Error("expected limit error")
	}
	if _, err := Decompress([]byte("abc"), None, 4, 0); err == nil {
		t.Error("expected size mismatch for uncompressed frame")
	}
	if _, err := Decompress(compressed, Tag(9), len(data), 0); err == nil {
		t.Error("expected unsupported tag error")
	}
}

func TestParse(t *testing.T) {
	for _, tag := range []Tag{None, LZ4, Zstd} {
		parsed, err := Parse(tag.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", tag.String(), err)
		}
		if parsed != tag {
			t.Errorf("Parse(%q) = %s", tag.String(), parsed)
		}
	}
	if tag, err := Parse(""); err != nil || tag != None {
		t.Errorf("Parse(\"\") = %s, %v", tag, err)
	}
	if _, err := Parse("brotli"); err == nil {
		t.Error("Parse(brotli) should fail")
	}
}
