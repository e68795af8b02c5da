package stagecatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/stage"
)

func TestRegister_BindsEveryCatalogEntry(t *testing.T) {
	r := Register()

	cases := []struct {
		stageType stage.StageType
		algorithm string
	}{
		{stage.StageTypeCompression, "zstd"},
		{stage.StageTypeCompression, "gzip"},
		{stage.StageTypeCompression, "lz4"},
		{stage.StageTypeCompression, "brotli"},
		{stage.StageTypeEncryption, "aes256gcm"},
		{stage.StageTypeEncryption, "aes192gcm"},
		{stage.StageTypeEncryption, "aes128gcm"},
		{stage.StageTypeEncryption, "chacha20poly1305"},
		{stage.StageTypeChecksum, "sha256"},
		{stage.StageTypeChecksum, "blake3"},
		{stage.StageTypeChecksum, "crc32"},
		{stage.StageTypeTransform, "pii_mask"},
		{stage.StageTypePassThrough, "tee"},
		{stage.StageTypePassThrough, "identity"},
	}

	for _, c := range cases {
		svc, err := r.Lookup(c.stageType, c.algorithm)
		require.NoError(t, err, "expected %s/%s to be registered", c.stageType, c.algorithm)
		assert.NotNil(t, svc)
	}
}
