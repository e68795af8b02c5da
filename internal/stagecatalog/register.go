package stagecatalog

import "github.com/FairForge/adapipe/internal/stage"

// Register builds the standard stage registry: every algorithm variant of
// every catalogue entry, bound under (StageType, algorithm) the way
// internal/executor expects to look them up. cmd/adapipe constructs one of
// these at startup and hands it to executor.New.
func Register() *stage.Registry {
	r := stage.NewRegistry()

	compression := NewCompressionStage()
	for _, alg := range []string{"zstd", "gzip", "lz4", "brotli"} {
		r.Register(stage.StageTypeCompression, alg, compression)
	}

	encryption := NewEncryptionStage()
	for _, alg := range []string{
		"aes-256-gcm", "aes256gcm",
		"aes-192-gcm", "aes192gcm",
		"aes-128-gcm", "aes128gcm",
		"chacha20poly1305", "xchacha20poly1305",
	} {
		r.Register(stage.StageTypeEncryption, alg, encryption)
	}

	checksum := NewChecksumStage()
	for _, alg := range []string{"sha256", "blake3", "crc32"} {
		r.Register(stage.StageTypeChecksum, alg, checksum)
	}

	masking := NewPIIMaskingStage()
	r.Register(stage.StageTypeTransform, "pii_mask", masking)

	tee := NewTeeStage()
	r.Register(stage.StageTypePassThrough, "tee", tee)

	passThrough := NewPassThroughStage()
	r.Register(stage.StageTypePassThrough, "identity", passThrough)

	return r
}
