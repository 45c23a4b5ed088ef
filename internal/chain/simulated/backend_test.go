package simulated

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"creditmint/internal/chain"
	"creditmint/internal/ledger"
	"creditmint/internal/token"
	"creditmint/pkg/domain"
)

type BackendSuite struct {
	suite.Suite
	owner    *chain.KeySigner
	minter   *chain.KeySigner
	stranger *chain.KeySigner
	contract domain.Identity
	target   domain.Identity
	tok      *token.Token
	backend  *Backend
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

func (s *BackendSuite) SetupTest() {
	var err error
	s.owner, err = chain.GenerateKeySigner()
	s.Require().NoError(err)
	s.minter, err = chain.GenerateKeySigner()
	s.Require().NoError(err)
	s.stranger, err = chain.GenerateKeySigner()
	s.Require().NoError(err)

	s.contract, err = domain.ParseIdentity("0x00000000000000000000000000000000000c0de1")
	s.Require().NoError(err)
	s.target, err = domain.ParseIdentity("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	s.Require().NoError(err)

	s.tok, err = token.Deploy(ledger.New(), s.contract, s.owner.Identity(), nil)
	s.Require().NoError(err)
	s.backend = New(s.tok)
}

func (s *BackendSuite) sign(signer *chain.KeySigner, nonce uint64, data []byte) *chain.SignedEnvelope {
	return s.signWithGas(signer, nonce, data, 300000)
}

func (s *BackendSuite) signWithGas(signer *chain.KeySigner, nonce uint64, data []byte, gas uint64) *chain.SignedEnvelope {
	signed, err := signer.Sign(chain.Envelope{
		From:       signer.Identity(),
		To:         s.contract,
		Nonce:      nonce,
		FeeRate:    big.NewInt(defaultFeeRate),
		GasCeiling: gas,
		NetworkID:  big.NewInt(DefaultNetworkID),
		Data:       data,
	})
	s.Require().NoError(err)
	return signed
}

func (s *BackendSuite) submit(signer *chain.KeySigner, data []byte) *chain.SignedEnvelope {
	ctx := context.Background()
	nonce, err := s.backend.PendingNonce(ctx, signer.Identity())
	s.Require().NoError(err)
	env := s.sign(signer, nonce, data)
	_, err = s.backend.Submit(ctx, env)
	s.Require().NoError(err)
	return env
}

func (s *BackendSuite) authorizeMinter() {
	data, err := token.PackMinter(token.MethodAuthorize, s.minter.Identity())
	s.Require().NoError(err)
	s.submit(s.owner, data)
	s.backend.Commit()
	s.Require().True(s.tok.IsAuthorized(s.minter.Identity()))
}

// =============================================================================
// Preparation
// =============================================================================

func (s *BackendSuite) TestPreparation() {
	ctx := context.Background()

	id, err := s.backend.NetworkID(ctx)
	s.Require().NoError(err)
	s.Equal(int64(DefaultNetworkID), id.Int64())

	fee, err := s.backend.SuggestFeeRate(ctx)
	s.Require().NoError(err)
	s.Equal(int64(defaultFeeRate), fee.Int64())

	s.Run("pending nonce counts pooled envelopes", func() {
		data, err := token.Pack(token.MethodTotalSupply)
		s.Require().NoError(err)
		s.submit(s.owner, data)
		s.submit(s.owner, data)

		nonce, err := s.backend.PendingNonce(ctx, s.owner.Identity())
		s.Require().NoError(err)
		s.Equal(uint64(2), nonce)

		s.backend.Commit()
		nonce, err = s.backend.PendingNonce(ctx, s.owner.Identity())
		s.Require().NoError(err)
		s.Equal(uint64(2), nonce)
	})
}

// =============================================================================
// Submission and mining
// =============================================================================

func (s *BackendSuite) TestMintSecure() {
	ctx := context.Background()
	s.authorizeMinter()

	amount := new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	data, err := token.PackMint(token.MethodMintSecure, s.target, amount)
	s.Require().NoError(err)
	env := s.submit(s.minter, data)

	s.Run("receipt is pending before the block", func() {
		_, err := s.backend.Receipt(ctx, env.Hash)
		s.ErrorIs(err, chain.ErrPending)
		s.Equal(1, s.backend.Pending())
	})

	block := s.backend.Commit()

	s.Run("receipt reports success in the mined block", func() {
		r, err := s.backend.Receipt(ctx, env.Hash)
		s.Require().NoError(err)
		s.True(r.Success)
		s.Equal(block.Number, r.BlockNumber)
		s.Equal(block.Hash, r.BlockHash)
		s.Greater(r.GasUsed, uint64(intrinsicGas))
	})

	s.Run("ledger carries the credit and notifications", func() {
		s.Zero(amount.Cmp(s.tok.BalanceOf(s.target)))
		events := s.tok.Notifications(ledger.Filter{Name: token.EventMintSecure})
		s.Require().Len(events, 1)
		s.Equal(env.Hash, events[0].TxHash)
		s.Equal(block.Number, events[0].Block)
	})
}

func (s *BackendSuite) TestUnauthorizedMintRevertsButConsumesNonce() {
	ctx := context.Background()
	data, err := token.PackMint(token.MethodMintSecure, s.target, big.NewInt(5))
	s.Require().NoError(err)
	env := s.submit(s.stranger, data)
	s.backend.Commit()

	r, err := s.backend.Receipt(ctx, env.Hash)
	s.Require().NoError(err)
	s.False(r.Success)
	s.NotEmpty(r.Reason)
	s.Zero(s.tok.BalanceOf(s.target).Sign())
	s.Zero(s.tok.TotalSupply().Sign())

	nonce, err := s.backend.PendingNonce(ctx, s.stranger.Identity())
	s.Require().NoError(err)
	s.Equal(uint64(1), nonce)
}

func (s *BackendSuite) TestGasCeilingBelowExecutionCostFails() {
	ctx := context.Background()
	data, err := token.PackMint(token.MethodMintOwner, s.target, big.NewInt(5))
	s.Require().NoError(err)
	ceiling := uint64(intrinsicGas) + 10
	s.Require().Less(ceiling, gasRequired(&chain.SignedEnvelope{Envelope: chain.Envelope{Data: data}}))

	env := s.signWithGas(s.owner, 0, data, ceiling)
	_, err = s.backend.Submit(ctx, env)
	s.Require().NoError(err, "a ceiling above intrinsic gas is accepted for broadcast")
	s.backend.Commit()

	r, err := s.backend.Receipt(ctx, env.Hash)
	s.Require().NoError(err)
	s.False(r.Success)
	s.Equal(ErrOutOfGas.Error(), r.Reason)
	s.Equal(ceiling, r.GasUsed)
	s.Zero(s.tok.TotalSupply().Sign())

	nonce, err := s.backend.PendingNonce(ctx, s.owner.Identity())
	s.Require().NoError(err)
	s.Equal(uint64(1), nonce)
}

func (s *BackendSuite) TestSubmitRejections() {
	ctx := context.Background()
	data, err := token.Pack(token.MethodTotalSupply)
	s.Require().NoError(err)

	s.Run("nonce gap", func() {
		_, err := s.backend.Submit(ctx, s.sign(s.owner, 3, data))
		s.ErrorIs(err, ErrNonceGap)
	})

	s.Run("duplicate envelope", func() {
		env := s.sign(s.owner, 0, data)
		_, err := s.backend.Submit(ctx, env)
		s.Require().NoError(err)
		_, err = s.backend.Submit(ctx, env)
		s.ErrorIs(err, ErrAlreadyKnown)
	})

	s.Run("stale nonce after mining", func() {
		s.backend.Commit()
		_, err := s.backend.Submit(ctx, s.sign(s.owner, 0, append([]byte{}, data...)))
		s.Error(err)
	})

	s.Run("wrong contract", func() {
		signed, err := s.owner.Sign(chain.Envelope{
			From:       s.owner.Identity(),
			To:         s.target,
			Nonce:      1,
			FeeRate:    big.NewInt(1),
			GasCeiling: 300000,
			NetworkID:  big.NewInt(DefaultNetworkID),
			Data:       data,
		})
		s.Require().NoError(err)
		_, err = s.backend.Submit(ctx, signed)
		s.ErrorIs(err, ErrUnknownContract)
	})

	s.Run("wrong network", func() {
		signed, err := s.owner.Sign(chain.Envelope{
			From:       s.owner.Identity(),
			To:         s.contract,
			Nonce:      1,
			FeeRate:    big.NewInt(1),
			GasCeiling: 300000,
			NetworkID:  big.NewInt(1),
			Data:       data,
		})
		s.Require().NoError(err)
		_, err = s.backend.Submit(ctx, signed)
		s.Error(err)
	})

	s.Run("gas ceiling below intrinsic", func() {
		signed, err := s.owner.Sign(chain.Envelope{
			From:       s.owner.Identity(),
			To:         s.contract,
			Nonce:      1,
			FeeRate:    big.NewInt(1),
			GasCeiling: 1000,
			NetworkID:  big.NewInt(DefaultNetworkID),
			Data:       data,
		})
		s.Require().NoError(err)
		_, err = s.backend.Submit(ctx, signed)
		s.ErrorIs(err, ErrIntrinsicGas)
	})
}

// =============================================================================
// Blocks and outages
// =============================================================================

func (s *BackendSuite) TestBlocksChainTogether() {
	first := s.backend.Commit()
	second := s.backend.Commit()
	s.Equal(uint64(1), first.Number)
	s.Equal(uint64(2), second.Number)
	s.NotEqual(first.Hash, second.Hash)

	head, hash := s.backend.Head()
	s.Equal(uint64(2), head)
	s.Equal(second.Hash, hash)
}

func (s *BackendSuite) TestUnreachable() {
	ctx := context.Background()
	s.backend.SetReachable(false)

	_, err := s.backend.NetworkID(ctx)
	s.ErrorIs(err, chain.ErrUnreachable)
	_, err = s.backend.Receipt(ctx, common.HexToHash("0x01"))
	s.ErrorIs(err, chain.ErrUnreachable)

	s.backend.SetReachable(true)
	_, err = s.backend.NetworkID(ctx)
	s.NoError(err)
}

func TestRun_MinesUntilCancelled(t *testing.T) {
	owner, err := chain.GenerateKeySigner()
	require.NoError(t, err)
	contract, err := domain.ParseIdentity("0x00000000000000000000000000000000000c0de1")
	require.NoError(t, err)
	tok, err := token.Deploy(ledger.New(), contract, owner.Identity(), nil)
	require.NoError(t, err)
	b := New(tok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		head, _ := b.Head()
		return head >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Error(t, b.Run(context.Background(), 0))
}
