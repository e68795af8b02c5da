package stagecatalog

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// EncryptionStage implements the Encryption entry of the stage catalogue.
//
// AES-GCM (stdlib crypto/aes + crypto/cipher, 16/24/32-byte keys) and
// ChaCha20-Poly1305 (golang.org/x/crypto/chacha20poly1305.NewX, 32-byte
// key / 24-byte XChaCha20 nonce) both generate a fresh per-call nonce and
// carry it as a prefix of the chunk's payload rather than as a field on
// the encryptor — the container's own 12-byte record nonce slot is
// reserved framing space (see internal/containerformat/record.go) and is
// not where a stage's AEAD nonce lives.
type EncryptionStage struct{}

// NewEncryptionStage constructs the encryption stage implementation.
func NewEncryptionStage() *EncryptionStage { return &EncryptionStage{} }

func (s *EncryptionStage) Position() stage.StagePosition { return stage.PreBinary }
func (s *EncryptionStage) IsReversible() bool             { return true }
func (s *EncryptionStage) StageType() stage.StageType     { return stage.StageTypeEncryption }

// IntegrityFailure is returned when AEAD authentication fails during
// Reverse, signalling a corrupt or tampered chunk rather than a mundane
// decode error.
type IntegrityFailure struct {
	StageName string
	Inner     error
}

func (e *IntegrityFailure) Error() string {
	return fmt.Sprintf("stage %q: integrity check failed: %v", e.StageName, e.Inner)
}

func (e *IntegrityFailure) Unwrap() error { return e.Inner }

func (s *EncryptionStage) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	aead, err := buildAEAD(cfg)
	if err != nil {
		return domain.FileChunk{}, fmt.Errorf("encryption: %w", err)
	}

	associatedData := associatedDataFor(chunk, cfg)

	if cfg.Operation == stage.Reverse {
		nonceSize := aead.NonceSize()
		if len(chunk.Data) < nonceSize {
			return domain.FileChunk{}, &IntegrityFailure{StageName: "encryption", Inner: fmt.Errorf("payload shorter than nonce")}
		}
		nonce := chunk.Data[:nonceSize]
		ciphertext := chunk.Data[nonceSize:]
		plaintext, err := aead.Open(ciphertext[:0:0], nonce, ciphertext, associatedData)
		if err != nil {
			return domain.FileChunk{}, &IntegrityFailure{StageName: "encryption", Inner: err}
		}
		return chunk.WithPayload(plaintext), nil
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return domain.FileChunk{}, fmt.Errorf("encryption: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, chunk.Data, associatedData)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)

	if ctx != nil {
		ctx.SetMetadata("encryption_overhead_bytes", strconv.Itoa(len(out)-len(chunk.Data)))
	}

	return chunk.WithPayload(out), nil
}

// associatedDataFor binds the chunk's sequence number into the AEAD tag so
// a ciphertext moved to a different sequence position fails
// authentication. Nothing identifying the run is bound.
func associatedDataFor(chunk domain.FileChunk, cfg stage.Configuration) []byte {
	if cfg.ParamOrDefault("bind_sequence", "true") != "true" {
		return nil
	}
	buf := make([]byte, 8)
	seq := uint64(chunk.SequenceNumber)
	for i := 0; i < 8; i++ {
		buf[i] = byte(seq >> (8 * i))
	}
	return buf
}

func buildAEAD(cfg stage.Configuration) (cipher.AEAD, error) {
	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case "aes-256-gcm", "aes256gcm":
		if len(key) != 32 {
			return nil, fmt.Errorf("aes256gcm requires a 32-byte key, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)

	case "aes-192-gcm", "aes192gcm":
		if len(key) != 24 {
			return nil, fmt.Errorf("aes192gcm requires a 24-byte key, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)

	case "aes-128-gcm", "aes128gcm":
		if len(key) != 16 {
			return nil, fmt.Errorf("aes128gcm requires a 16-byte key, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)

	case "chacha20poly1305", "xchacha20poly1305":
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("chacha20poly1305 requires a %d-byte key, got %d", chacha20poly1305.KeySize, len(key))
		}
		return chacha20poly1305.NewX(key)

	default:
		return nil, fmt.Errorf("unsupported encryption algorithm %q", cfg.Algorithm)
	}
}

// resolveKey recovers raw key bytes from the stage's parameter map: either
// a base64-encoded raw key, or a passphrase plus KDF parameters used to
// derive one.
func resolveKey(cfg stage.Configuration) ([]byte, error) {
	if raw, ok := cfg.Param("key"); ok {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode key parameter: %w", err)
		}
		return key, nil
	}

	passphrase, ok := cfg.Param("passphrase")
	if !ok {
		return nil, fmt.Errorf("encryption stage requires either a %q or %q parameter", "key", "passphrase")
	}

	salt, err := saltFor(cfg)
	if err != nil {
		return nil, err
	}

	keySize := paramInt(cfg, "key_size", 32)

	switch cfg.ParamOrDefault("kdf", "argon2id") {
	case "argon2id":
		time := uint32(paramInt(cfg, "iterations", 3))
		memory := uint32(paramInt(cfg, "memory_cost_kib", 64*1024))
		parallelism := uint8(paramInt(cfg, "parallel_cost", 4))
		return argon2.IDKey([]byte(passphrase), salt, time, memory, parallelism, uint32(keySize)), nil

	case "scrypt":
		n := paramInt(cfg, "scrypt_n", 1<<15)
		r := paramInt(cfg, "scrypt_r", 8)
		p := paramInt(cfg, "scrypt_p", 1)
		return scrypt.Key([]byte(passphrase), salt, n, r, p, keySize)

	case "pbkdf2":
		iterations := paramInt(cfg, "iterations", 200_000)
		return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New), nil

	default:
		return nil, fmt.Errorf("unsupported kdf %q", cfg.ParamOrDefault("kdf", ""))
	}
}

func saltFor(cfg stage.Configuration) ([]byte, error) {
	raw, ok := cfg.Param("salt")
	if !ok {
		return nil, fmt.Errorf("passphrase-based encryption requires a %q parameter", "salt")
	}
	salt, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode salt parameter: %w", err)
	}
	return salt, nil
}

func paramInt(cfg stage.Configuration, key string, def int) int {
	v, ok := cfg.Param(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GenerateRandomKey returns keySize cryptographically random bytes, for
// callers (e.g. cmd/adapipe) that need to mint a fresh base64 key
// parameter.
func GenerateRandomKey(keySize int) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate random key: %w", err)
	}
	return key, nil
}
