package impex

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how a fixture stream is compressed
type Compression string

const (
	// CompressionNone is plain JSON
	CompressionNone Compression = ""
	// CompressionZstd is balanced compression with good speed and ratio
	CompressionZstd Compression = "zstd"
	// CompressionSnappy is the framed snappy stream format
	CompressionSnappy Compression = "snappy"
	// CompressionGzip is standard gzip
	CompressionGzip Compression = "gzip"
)

// String returns the name of the compression
func (c Compression) String() string {
	if c == CompressionNone {
		return "none"
	}
	return string(c)
}

// CompressionFromPath picks the compression matching a file extension
func CompressionFromPath(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		return CompressionZstd
	case strings.HasSuffix(path, ".sz"), strings.HasSuffix(path, ".snappy"):
		return CompressionSnappy
	case strings.HasSuffix(path, ".gz"):
		return CompressionGzip
	}
	return CompressionNone
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w; closing the result flushes the compressed stream
// but leaves w open. level 0 picks each algorithm's default.
func compressWriter(w io.Writer, c Compression, level int) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil

	case CompressionZstd:
		// Zstd levels range from 1 (fastest) to 19 (best compression)
		if level < 1 || level > 19 {
			level = 3
		}
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc, nil

	case CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil

	case CompressionGzip:
		if level == 0 || level < gzip.HuffmanOnly || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		gz, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gz, nil
	}
	return nil, fmt.Errorf("unsupported compression: %s", c)
}

// decompressReader wraps r. The returned release function frees decoder
// resources.
func decompressReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil

	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return dec, dec.Close, nil

	case CompressionSnappy:
		return snappy.NewReader(r), func() {}, nil

	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, func() { _ = gz.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported compression: %s", c)
}
