package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	judgeerrors "judgeworker/pkg/errors"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// KeyPair is an ephemeral ECDH keypair generated fresh for every connection
// attempt; it is never persisted.
type KeyPair struct {
	private *ecdh.PrivateKey
}

// NewKeyPair generates a fresh P-256 ECDH keypair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.HandshakeFailed)
	}
	return &KeyPair{private: priv}, nil
}

// PublicBytes returns the uncompressed public key to send to the peer.
func (k *KeyPair) PublicBytes() []byte {
	return k.private.PublicKey().Bytes()
}

// SharedKey performs ECDH with the peer's public key bytes and expands the
// resulting secret into a 32-byte AES-256 key via HKDF-SHA256.
func (k *KeyPair) SharedKey(peerPublicBytes []byte) ([]byte, error) {
	peerKey, err := ecdh.P256().NewPublicKey(peerPublicBytes)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.HandshakeFailed)
	}
	secret, err := k.private.ECDH(peerKey)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.HandshakeFailed)
	}

	kdf := hkdf.New(sha256.New, secret, nil, []byte("judgeworker-session-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.HandshakeFailed)
	}
	return key, nil
}

// HashPassword returns the BLAKE3 hash of the configured master password,
// sent during Handshake instead of the plaintext.
func HashPassword(password string) []byte {
	sum := blake3.Sum256([]byte(password))
	return sum[:]
}

// Encrypt seals plaintext with AES-256-GCM under key, prefixing the random
// nonce to the ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.EncryptFailed)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.EncryptFailed)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.EncryptFailed)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.DecryptFailed)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.DecryptFailed)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, judgeerrors.New(judgeerrors.DecryptFailed).WithDetail("reason", "ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.DecryptFailed)
	}
	return plaintext, nil
}
