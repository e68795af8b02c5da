package stagecatalog

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

func TestEncryptionStage_RoundTrips(t *testing.T) {
	for _, tc := range []struct {
		algorithm string
		keySize   int
	}{
		{"aes256gcm", 32},
		{"aes192gcm", 24},
		{"aes128gcm", 16},
		{"chacha20poly1305", 32},
	} {
		t.Run(tc.algorithm, func(t *testing.T) {
			// Arrange
			s := NewEncryptionStage()
			key, err := GenerateRandomKey(tc.keySize)
			require.NoError(t, err)
			cfg := stage.Configuration{
				Algorithm: tc.algorithm,
				Operation: stage.Forward,
				Parameters: map[string]string{
					"key": base64.StdEncoding.EncodeToString(key),
				},
			}
			chunk := domain.NewFileChunk(3, 0, []byte("super secret payload"), false)

			// Act
			encrypted, err := s.ProcessChunk(chunk, cfg, nil)
			require.NoError(t, err)
			assert.NotEqual(t, chunk.Data, encrypted.Data)

			reverseCfg := cfg
			reverseCfg.Operation = stage.Reverse
			decrypted, err := s.ProcessChunk(encrypted, reverseCfg, nil)
			require.NoError(t, err)

			// Assert
			assert.Equal(t, chunk.Data, decrypted.Data)
		})
	}
}

func TestEncryptionStage_TamperedCiphertextFailsIntegrity(t *testing.T) {
	// Arrange
	s := NewEncryptionStage()
	key, err := GenerateRandomKey(32)
	require.NoError(t, err)
	cfg := stage.Configuration{
		Algorithm: "aes-256-gcm",
		Operation: stage.Forward,
		Parameters: map[string]string{
			"key": base64.StdEncoding.EncodeToString(key),
		},
	}
	chunk := domain.NewFileChunk(0, 0, []byte("payload"), true)

	encrypted, err := s.ProcessChunk(chunk, cfg, nil)
	require.NoError(t, err)
	tampered := append([]byte{}, encrypted.Data...)
	tampered[len(tampered)-1] ^= 0xFF
	encrypted = encrypted.WithPayload(tampered)

	// Act
	reverseCfg := cfg
	reverseCfg.Operation = stage.Reverse
	_, err = s.ProcessChunk(encrypted, reverseCfg, nil)

	// Assert
	require.Error(t, err)
	var integrityErr *IntegrityFailure
	assert.ErrorAs(t, err, &integrityErr)
}

func TestEncryptionStage_PassphraseDerivation(t *testing.T) {
	// Arrange
	s := NewEncryptionStage()
	salt, err := GenerateRandomKey(16)
	require.NoError(t, err)
	cfg := stage.Configuration{
		Algorithm: "aes-256-gcm",
		Operation: stage.Forward,
		Parameters: map[string]string{
			"passphrase": "correct horse battery staple",
			"salt":       base64.StdEncoding.EncodeToString(salt),
			"kdf":        "argon2id",
		},
	}
	chunk := domain.NewFileChunk(0, 0, []byte("payload"), true)

	// Act
	encrypted, err := s.ProcessChunk(chunk, cfg, nil)
	require.NoError(t, err)

	reverseCfg := cfg
	reverseCfg.Operation = stage.Reverse
	decrypted, err := s.ProcessChunk(encrypted, reverseCfg, nil)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, chunk.Data, decrypted.Data)
}
