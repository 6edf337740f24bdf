package runstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// record is the stored form of a Run. The arena is kept zstd-compressed:
// most of a grown arena is zero fill.
type record struct {
	Run       Run
	ArenaZstd []byte
}

func encodeRun(run *Run) ([]byte, error) {
	compressed, err := compressZstd(run.Arena)
	if err != nil {
		return nil, fmt.Errorf("compress arena: %w", err)
	}

	rec := record{Run: *run, ArenaZstd: compressed}
	rec.Run.Arena = nil

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRun(data []byte) (*Run, error) {
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	arena, err := decompressZstd(rec.ArenaZstd)
	if err != nil {
		return nil, fmt.Errorf("%w: arena: %v", ErrCorrupted, err)
	}
	run := rec.Run
	run.Arena = arena
	return &run, nil
}

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
