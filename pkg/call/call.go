// Package call defines the signed envelope that carries a state-changing
// vault or token call from an account to the node.
package call

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingvault/pkg/crypto"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

// Envelope errors.
var (
	ErrMissingMethod = errors.New("call has no method")
	ErrMissingPubKey = errors.New("call missing public key")
	ErrMissingSig    = errors.New("call missing signature")
	ErrInvalidSig    = errors.New("invalid call signature")
	ErrFromMismatch  = errors.New("sender does not match public key")
	ErrZeroNonce     = errors.New("nonce must be positive")
	ErrChainMismatch = errors.New("call signed for another chain")
)

// Envelope is a signed call. Args is the JSON-encoded argument object and is
// signed byte for byte. ChainID binds the call to one deployment.
type Envelope struct {
	ChainID   string          `json:"chain_id"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args"`
	From      types.Address   `json:"from"`
	PubKey    []byte          `json:"pubkey"`
	Nonce     uint64          `json:"nonce"`
	Signature []byte          `json:"signature"`
}

type envelopeJSON struct {
	ChainID   string          `json:"chain_id"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args"`
	From      types.Address   `json:"from"`
	PubKey    string          `json:"pubkey"`
	Nonce     uint64          `json:"nonce"`
	Signature string          `json:"signature"`
}

// MarshalJSON encodes the envelope with hex pubkey and signature.
func (e Envelope) MarshalJSON() ([]byte, error) {
	args := e.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return json.Marshal(envelopeJSON{
		ChainID:   e.ChainID,
		Method:    e.Method,
		Args:      args,
		From:      e.From,
		PubKey:    hex.EncodeToString(e.PubKey),
		Nonce:     e.Nonce,
		Signature: hex.EncodeToString(e.Signature),
	})
}

// UnmarshalJSON decodes an envelope with hex pubkey and signature.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var j envelopeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	pub, err := hex.DecodeString(j.PubKey)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	*e = Envelope{
		ChainID:   j.ChainID,
		Method:    j.Method,
		Args:      j.Args,
		From:      j.From,
		PubKey:    pub,
		Nonce:     j.Nonce,
		Signature: sig,
	}
	return nil
}

// New builds an unsigned envelope for method on chainID with args encoded
// as JSON.
func New(chainID, method string, args any, nonce uint64) (*Envelope, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", method, err)
	}
	return &Envelope{ChainID: chainID, Method: method, Args: raw, Nonce: nonce}, nil
}

// SigningBytes returns
// chain_id | 0x00 | method | 0x00 | args | nonce(8, big-endian).
func (e *Envelope) SigningBytes() []byte {
	buf := make([]byte, 0, len(e.ChainID)+1+len(e.Method)+1+len(e.Args)+8)
	buf = append(buf, e.ChainID...)
	buf = append(buf, 0)
	buf = append(buf, e.Method...)
	buf = append(buf, 0)
	buf = append(buf, e.Args...)
	return binary.BigEndian.AppendUint64(buf, e.Nonce)
}

// Digest is the BLAKE3 hash that gets signed.
func (e *Envelope) Digest() types.Hash {
	return crypto.Hash(e.SigningBytes())
}

// Sign fills From, PubKey and Signature using key.
func (e *Envelope) Sign(key crypto.Signer) error {
	digest := e.Digest()
	sig, err := key.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign %s: %w", e.Method, err)
	}
	e.PubKey = key.PublicKey()
	e.From = crypto.AddressFromPubKey(e.PubKey)
	e.Signature = sig
	return nil
}

// Verify checks that the call was made for chainID, that From is derived
// from PubKey and that the signature covers the digest. It does not check
// the nonce against any account state.
func (e *Envelope) Verify(chainID string) error {
	if e.Method == "" {
		return ErrMissingMethod
	}
	if e.ChainID != chainID {
		return fmt.Errorf("%w: %q, expected %q", ErrChainMismatch, e.ChainID, chainID)
	}
	if e.Nonce == 0 {
		return ErrZeroNonce
	}
	if len(e.PubKey) == 0 {
		return ErrMissingPubKey
	}
	if len(e.Signature) == 0 {
		return ErrMissingSig
	}
	if err := crypto.ValidatePubKey(e.PubKey); err != nil {
		return err
	}
	if crypto.AddressFromPubKey(e.PubKey) != e.From {
		return fmt.Errorf("%w: from %s", ErrFromMismatch, e.From)
	}
	digest := e.Digest()
	if !crypto.VerifySignature(digest[:], e.Signature, e.PubKey) {
		return ErrInvalidSig
	}
	return nil
}

// DecodeArgs unmarshals the signed arguments into v.
func (e *Envelope) DecodeArgs(v any) error {
	if err := json.Unmarshal(e.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", e.Method, err)
	}
	return nil
}
