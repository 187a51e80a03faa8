// Package keys provides the committee signing key used to build and sign CKB
// transactions, and AES-GCM helpers for keeping that key encrypted at rest.
// The key is secp256k1 and locks cells with the default secp256k1/blake160 lock.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/hash"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/molecule"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

const signatureSize = 65

// CommitteeKey is the secp256k1 key controlling the committee lock.
type CommitteeKey struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // 33-byte compressed
}

// GenerateCommitteeKey creates a random committee key.
func GenerateCommitteeKey() (*CommitteeKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 keypair: %w", err)
	}
	return newCommitteeKey(privateKey), nil
}

// CommitteeKeyFromHex parses a 0x-prefixed or bare hex private key.
func CommitteeKeyFromHex(privateKeyHex string) (*CommitteeKey, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid committee private key: %w", err)
	}
	return newCommitteeKey(privateKey), nil
}

// CommitteeKeyFromEncrypted decrypts a key produced by EncryptPrivateKey.
func CommitteeKeyFromEncrypted(encrypted string, masterKey []byte) (*CommitteeKey, error) {
	raw, err := DecryptPrivateKey(encrypted, masterKey)
	if err != nil {
		return nil, err
	}
	privateKey, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create private key: %w", err)
	}
	return newCommitteeKey(privateKey), nil
}

func newCommitteeKey(privateKey *ecdsa.PrivateKey) *CommitteeKey {
	return &CommitteeKey{
		privateKey: privateKey,
		publicKey:  crypto.CompressPubkey(&privateKey.PublicKey),
	}
}

// PublicKey returns the compressed public key.
func (k *CommitteeKey) PublicKey() []byte {
	return k.publicKey
}

// PrivateKeyBytes returns the raw 32-byte private key.
func (k *CommitteeKey) PrivateKeyBytes() []byte {
	return crypto.FromECDSA(k.privateKey)
}

// LockArgs returns blake160(pubkey), the secp256k1/blake160 lock args.
func (k *CommitteeKey) LockArgs() []byte {
	return hash.Blake160(k.publicKey)
}

// LockScript returns the committee lock for the given secp256k1 lock code hash.
func (k *CommitteeKey) LockScript(codeHash common.Hash, hashType types.HashType) *types.Script {
	return &types.Script{CodeHash: codeHash, HashType: hashType, Args: k.LockArgs()}
}

// SignTransaction signs the inputs at group with sighash-all and writes the
// signature into the witness of the first input in the group.
func (k *CommitteeKey) SignTransaction(tx *types.Transaction, group []int) error {
	if len(group) == 0 {
		return fmt.Errorf("empty signing group")
	}
	for _, idx := range group {
		if idx < 0 || idx >= len(tx.Inputs) {
			return fmt.Errorf("signing group index %d out of range", idx)
		}
	}
	for len(tx.Witnesses) < len(tx.Inputs) {
		tx.Witnesses = append(tx.Witnesses, hexutil.Bytes{})
	}

	txHash, err := tx.ComputeHash()
	if err != nil {
		return fmt.Errorf("compute tx hash: %w", err)
	}

	placeholder := (&types.WitnessArgs{Lock: make([]byte, signatureSize)}).Serialize()
	parts := [][]byte{txHash.Bytes(), molecule.Uint64(uint64(len(placeholder))), placeholder}
	for _, idx := range group[1:] {
		w := tx.Witnesses[idx]
		parts = append(parts, molecule.Uint64(uint64(len(w))), w)
	}
	for _, w := range tx.Witnesses[len(tx.Inputs):] {
		parts = append(parts, molecule.Uint64(uint64(len(w))), w)
	}
	message := hash.Blake256(parts...)

	sig, err := crypto.Sign(message.Bytes(), k.privateKey)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	tx.Witnesses[group[0]] = (&types.WitnessArgs{Lock: sig}).Serialize()
	return nil
}

// VerifySignature checks a 65-byte recoverable signature over a 32-byte message.
func (k *CommitteeKey) VerifySignature(message, signature []byte) bool {
	if len(signature) != signatureSize {
		return false
	}
	pub, err := crypto.SigToPub(message, signature)
	if err != nil {
		return false
	}
	return string(crypto.CompressPubkey(pub)) == string(k.publicKey)
}

// EncryptPrivateKey encrypts the private key using AES-256-GCM with the provided master key.
// Returns base64(nonce || ciphertext || tag).
func EncryptPrivateKey(privateKey []byte, masterKey []byte) (string, error) {
	if len(masterKey) != 32 {
		return "", fmt.Errorf("master key must be 32 bytes (AES-256)")
	}
	if len(privateKey) != 32 {
		return "", fmt.Errorf("private key must be 32 bytes (secp256k1)")
	}

	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, privateKey, nil)), nil
}

// DecryptPrivateKey reverses EncryptPrivateKey.
func DecryptPrivateKey(encrypted string, masterKey []byte) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (AES-256)")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if len(plaintext) != 32 {
		return nil, fmt.Errorf("decrypted key has wrong size: got %d, want 32", len(plaintext))
	}
	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// DeriveMasterKey stretches an operator secret into a 32-byte AES key with HKDF-SHA256.
func DeriveMasterKey(secret []byte) ([]byte, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("master secret must be at least 16 bytes")
	}
	reader := hkdf.New(sha256.New, secret, nil, []byte("ckb-committee-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	return key, nil
}

// GenerateMasterKey generates a random 32-byte master key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}

// MasterKeyFromBase64 decodes a base64-encoded master key.
func MasterKeyFromBase64(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// MasterKeyToBase64 encodes a master key as base64 for storage.
func MasterKeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
