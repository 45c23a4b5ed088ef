package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"creditmint/pkg/domain"
)

// KeySigner signs envelopes as EIP-155 legacy transactions with a secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
	id  domain.Identity
}

// NewKeySigner parses a hex private key (with or without 0x prefix).
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("signing key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySignerFromKey(key), nil
}

// NewKeySignerFromKey wraps an existing key.
func NewKeySignerFromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key: key,
		id:  domain.IdentityFromAddress(crypto.PubkeyToAddress(key.PublicKey)),
	}
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewKeySignerFromKey(key), nil
}

// Identity returns the address derived from the key.
func (s *KeySigner) Identity() domain.Identity {
	return s.id
}

// Sign builds and signs the transaction for env. The envelope must be addressed from this
// signer and carry a network id.
func (s *KeySigner) Sign(env Envelope) (*SignedEnvelope, error) {
	if env.From != s.id {
		return nil, fmt.Errorf("envelope from %s cannot be signed by %s", env.From, s.id)
	}
	if env.NetworkID == nil || env.NetworkID.Sign() <= 0 {
		return nil, errors.New("envelope has no network id")
	}
	if env.FeeRate == nil {
		return nil, errors.New("envelope has no fee rate")
	}

	to := env.To.Address()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    env.Nonce,
		GasPrice: new(big.Int).Set(env.FeeRate),
		Gas:      env.GasCeiling,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     env.Data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(env.NetworkID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign envelope: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	// r || s || recovery id, with the EIP-155 chain offset removed from v.
	v, r, sv := signed.RawSignatureValues()
	offset := new(big.Int).Mul(env.NetworkID, big.NewInt(2))
	offset.Add(offset, big.NewInt(35))
	sig := make([]byte, 0, 65)
	sig = append(sig, common.LeftPadBytes(r.Bytes(), 32)...)
	sig = append(sig, common.LeftPadBytes(sv.Bytes(), 32)...)
	sig = append(sig, byte(new(big.Int).Sub(v, offset).Uint64()))

	return &SignedEnvelope{
		Envelope:  env,
		Hash:      signed.Hash(),
		Signature: sig,
		Raw:       raw,
	}, nil
}

// Open decodes a wire-encoded envelope and recovers its sender. It fails when the
// signature does not belong to networkID.
func Open(raw []byte, networkID *big.Int) (*SignedEnvelope, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if tx.To() == nil {
		return nil, errors.New("envelope has no recipient")
	}
	from, err := types.Sender(types.NewEIP155Signer(networkID), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	return &SignedEnvelope{
		Envelope: Envelope{
			From:       domain.IdentityFromAddress(from),
			To:         domain.IdentityFromAddress(*tx.To()),
			Nonce:      tx.Nonce(),
			FeeRate:    tx.GasPrice(),
			GasCeiling: tx.Gas(),
			NetworkID:  tx.ChainId(),
			Data:       tx.Data(),
		},
		Hash: tx.Hash(),
		Raw:  raw,
	}, nil
}
