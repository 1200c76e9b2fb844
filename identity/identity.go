package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cometbft/cometbft/crypto/ed25519"
)

// Address is the hex-encoded 20-byte account address derived from an
// ed25519 public key. The empty string and the all-zero address are both
// treated as the zero address.
type Address string

// ZeroAddress is the null identity. Ownership can never be assigned to it.
const ZeroAddress Address = "0000000000000000000000000000000000000000"

// IsZero reports whether the address is empty or the all-zero address.
func (a Address) IsZero() bool {
	return a == "" || strings.EqualFold(string(a), string(ZeroAddress))
}

func (a Address) String() string {
	return string(a)
}

// AddressFromPubKey derives the account address from an ed25519 public key.
func AddressFromPubKey(pub ed25519.PubKey) Address {
	return Address(pub.Address().String())
}

// SignedTx is the wire envelope for every ledger transaction. The signer's
// address is always derived from the verified public key, never taken from
// the payload.
type SignedTx struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Signer    string          `json:"signer"`    // hex ed25519 public key
	Signature string          `json:"signature"` // hex signature over SignBytes
	Nonce     string          `json:"nonce"`
}

// SignBytes returns the canonical byte string covered by the signature.
func (tx *SignedTx) SignBytes() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", tx.Type, tx.Payload, tx.Nonce))
}

// Verify checks the envelope signature and returns the signer's address.
func (tx *SignedTx) Verify() (Address, error) {
	pubBytes, err := hex.DecodeString(tx.Signer)
	if err != nil {
		return "", fmt.Errorf("invalid signer key encoding: %w", err)
	}
	if len(pubBytes) != ed25519.PubKeySize {
		return "", fmt.Errorf("invalid signer key length: %d", len(pubBytes))
	}
	sig, err := hex.DecodeString(tx.Signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}

	pub := ed25519.PubKey(pubBytes)
	if !pub.VerifySignature(tx.SignBytes(), sig) {
		return "", fmt.Errorf("signature verification failed")
	}
	return AddressFromPubKey(pub), nil
}

// Wallet holds a signing identity for ledger transactions.
type Wallet struct {
	priv ed25519.PrivKey
}

// NewWallet generates a fresh ed25519 wallet.
func NewWallet() *Wallet {
	return &Wallet{priv: ed25519.GenPrivKey()}
}

// LoadWallet reads a hex-encoded private key from a file.
func LoadWallet(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading wallet key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding wallet key: %w", err)
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("invalid wallet key length: %d", len(keyBytes))
	}
	return &Wallet{priv: ed25519.PrivKey(keyBytes)}, nil
}

// Save writes the hex-encoded private key to a file readable only by the owner.
func (w *Wallet) Save(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(w.priv)), 0o600)
}

// Address returns the wallet's account address.
func (w *Wallet) Address() Address {
	return AddressFromPubKey(w.priv.PubKey().(ed25519.PubKey))
}

// SignTx builds and signs a transaction envelope for the given type and
// payload. A random nonce makes otherwise identical transactions distinct
// on the wire.
func (w *Wallet) SignTx(txType string, payload interface{}) (*SignedTx, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling tx payload: %w", err)
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating tx nonce: %w", err)
	}

	tx := &SignedTx{
		Type:    txType,
		Payload: payloadBytes,
		Signer:  hex.EncodeToString(w.priv.PubKey().Bytes()),
		Nonce:   hex.EncodeToString(nonce),
	}

	sig, err := w.priv.Sign(tx.SignBytes())
	if err != nil {
		return nil, fmt.Errorf("signing tx: %w", err)
	}
	tx.Signature = hex.EncodeToString(sig)
	return tx, nil
}
