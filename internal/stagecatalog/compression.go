// Package stagecatalog provides the concrete StageService implementations
// named by the reference stage catalogue (C4.8): compression, encryption,
// checksum, PII masking, tee, and pass-through.
//
// Compression uses klauspost/compress/zstd with a fresh encoder/decoder
// created per call, klauspost/pgzip and pierrec/lz4/v4 for
// their respective algorithms, and andybalholm/brotli for brotli.
package stagecatalog

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// CompressionStage implements the Compression entry of the stage
// catalogue. One instance handles every supported algorithm, selected per
// call by Configuration.Algorithm, since the registry already keys on
// (StageType, algorithm) and each algorithm needs no held state between
// calls beyond what a streaming compressor keeps for its own stream.
type CompressionStage struct{}

// NewCompressionStage constructs the compression stage implementation.
func NewCompressionStage() *CompressionStage { return &CompressionStage{} }

func (s *CompressionStage) Position() stage.StagePosition { return stage.PreBinary }
func (s *CompressionStage) IsReversible() bool             { return true }
func (s *CompressionStage) StageType() stage.StageType     { return stage.StageTypeCompression }

func (s *CompressionStage) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	level := parseLevel(cfg)

	if cfg.Operation == stage.Reverse {
		decompressed, err := decompress(cfg.Algorithm, chunk.Data)
		if err != nil {
			return domain.FileChunk{}, fmt.Errorf("compression: decompress (%s): %w", cfg.Algorithm, err)
		}
		return chunk.WithPayload(decompressed), nil
	}

	compressed, err := compress(cfg.Algorithm, chunk.Data, level)
	if err != nil {
		return domain.FileChunk{}, fmt.Errorf("compression: compress (%s): %w", cfg.Algorithm, err)
	}

	if ctx != nil && len(chunk.Data) > 0 {
		ratio := float64(len(compressed)) / float64(len(chunk.Data))
		ctx.SetMetadata("compression_ratio", strconv.FormatFloat(ratio, 'f', 6, 64))
	}

	return chunk.WithPayload(compressed), nil
}

func parseLevel(cfg stage.Configuration) int {
	v := cfg.ParamOrDefault("level", "3")
	level, err := strconv.Atoi(v)
	if err != nil {
		return 3
	}
	return level
}

func compress(algorithm string, data []byte, level int) ([]byte, error) {
	switch algorithm {
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data))), nil

	case "gzip":
		var buf bytes.Buffer
		w, err := pgzip.NewWriterLevel(&buf, clampGzipLevel(level))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case "lz4":
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case "brotli":
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, clampBrotliLevel(level))
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}

func decompress(algorithm string, data []byte) ([]byte, error) {
	switch algorithm {
	case "zstd":
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)

	case "gzip":
		r, err := pgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)

	case "lz4":
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	case "brotli":
		r := brotli.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}

func clampGzipLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 9 {
		return 9
	}
	return level
}

func clampBrotliLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 11 {
		return 11
	}
	return level
}
