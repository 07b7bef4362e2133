package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"math"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Encryptor seals and opens opaque payloads.
type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// NewAESEncryptor creates an AES-GCM encryptor. The nonce is prepended to each ciphertext.
func NewAESEncryptor(key []byte) (Encryptor, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}
	return &aesEncryptor{gcm: gcm}, nil
}

// NewAESEncryptorFromHex decodes a hex key, as stored in configuration.
func NewAESEncryptorFromHex(hexKey string) (Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	return NewAESEncryptor(key)
}

type aesEncryptor struct {
	gcm cipher.AEAD
}

func (a *aesEncryptor) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrEncryption
	}
	return a.gcm.Seal(nonce, nonce, data, nil), nil
}

func (a *aesEncryptor) Decrypt(data []byte) ([]byte, error) {
	nonceSize := a.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := a.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// SealVector encodes a float vector as little-endian float64s and encrypts it.
func SealVector(enc Encryptor, vector []float64) ([]byte, error) {
	buf := make([]byte, 8*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return enc.Encrypt(buf)
}

// OpenVector reverses SealVector.
func OpenVector(enc Encryptor, sealed []byte) ([]float64, error) {
	buf, err := enc.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	if len(buf)%8 != 0 {
		return nil, ErrDecryption
	}
	vector := make([]float64, len(buf)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}
