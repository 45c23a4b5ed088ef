package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"creditmint/internal/chain"
	"creditmint/internal/chain/simulated"
	"creditmint/internal/coordinator"
	jwttoken "creditmint/internal/jwt_token"
	"creditmint/internal/ledger"
	"creditmint/internal/token"
	"creditmint/pkg/domain"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    *command
		wantErr string
	}{
		{
			name: "authorize",
			args: []string{"authorize", "-minter", "0x01"},
			want: &command{name: cmdAuthorize, target: "0x01"},
		},
		{
			name: "mint secure",
			args: []string{"mint-secure", "-to", "0x02", "-amount", "2.5"},
			want: &command{name: cmdMintSecure, target: "0x02", amount: "2.5"},
		},
		{
			name: "token with ttl",
			args: []string{"token", "-subject", "sales", "-ttl", "1h"},
			want: &command{name: cmdToken, subject: "sales", ttl: time.Hour},
		},
		{name: "no command", args: nil, wantErr: "missing command"},
		{name: "unknown", args: []string{"burn"}, wantErr: "unknown command"},
		{name: "missing minter", args: []string{"revoke"}, wantErr: "-minter is required"},
		{name: "missing amount", args: []string{"mint-owner", "-to", "0x02"}, wantErr: "-to and -amount"},
		{name: "stray args", args: []string{"revoke", "-minter", "0x01", "extra"}, wantErr: "unexpected arguments"},
		{name: "bad flag", args: []string{"token", "-nope"}, wantErr: "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssueToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, issueToken("k", &command{name: cmdToken, subject: "sales", ttl: time.Hour}, &out))

	claims, err := jwttoken.NewService("k", jwttoken.DefaultIssuer, jwttoken.DefaultAudience).
		ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "sales", claims.Subject)

	assert.Error(t, issueToken("", &command{name: cmdToken, subject: "sales", ttl: time.Hour}, &out))
}

// =============================================================================
// Execution against the simulated ledger
// =============================================================================

type ExecuteSuite struct {
	suite.Suite
	token   *token.Token
	service *coordinator.Service
	cancel  context.CancelFunc
}

func TestExecuteSuite(t *testing.T) {
	suite.Run(t, new(ExecuteSuite))
}

var (
	contractAddr = domain.IdentityFromAddress(common.HexToAddress("0x00000000000000000000000000000000000c0de0"))
	delegate     = "0x000000000000000000000000000000000000b1b1"
	recipient    = "0x000000000000000000000000000000000000d3d3"
)

func (s *ExecuteSuite) SetupTest() {
	signer, err := chain.GenerateKeySigner()
	s.Require().NoError(err)

	s.token, err = token.Deploy(ledger.New(), contractAddr, signer.Identity(), nil)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := simulated.New(s.token, simulated.WithLogger(logger))
	s.service = coordinator.New(backend, signer, contractAddr,
		coordinator.WithLogger(logger),
		coordinator.WithPolling(2*time.Millisecond, time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { _ = backend.Run(ctx, 2*time.Millisecond) }()
}

func (s *ExecuteSuite) TearDownTest() {
	s.cancel()
}

func (s *ExecuteSuite) exec(args ...string) (result, error) {
	cmd, err := parseCommand(args)
	s.Require().NoError(err)

	var out bytes.Buffer
	err = execute(context.Background(), cmd, s.service, token.DefaultDecimals, &out)
	var res result
	s.Require().NoError(json.Unmarshal(out.Bytes(), &res))
	return res, err
}

func (s *ExecuteSuite) TestAuthorizeThenRevoke() {
	minter, err := domain.ParseIdentity(delegate)
	s.Require().NoError(err)

	res, err := s.exec("authorize", "-minter", delegate)
	s.Require().NoError(err)
	s.Equal(string(coordinator.StateConfirmed), res.State)
	s.NotEmpty(res.TxHash)
	s.True(s.token.IsAuthorized(minter))

	_, err = s.exec("revoke", "-minter", delegate)
	s.Require().NoError(err)
	s.False(s.token.IsAuthorized(minter))
}

func (s *ExecuteSuite) TestMintOwner() {
	res, err := s.exec("mint-owner", "-to", recipient, "-amount", "1.5")
	s.Require().NoError(err)
	s.Equal("1500000000000000000", res.Amount)

	to, err := domain.ParseIdentity(recipient)
	s.Require().NoError(err)
	s.Equal(0, s.token.BalanceOf(to).Cmp(big.NewInt(1500000000000000000)))
}

func (s *ExecuteSuite) TestMintSecure() {
	res, err := s.exec("mint-secure", "-to", recipient, "-amount", "3")
	s.Require().NoError(err)
	s.Equal(string(coordinator.StateConfirmed), res.State)
	s.Equal("3000000000000000000", res.Amount)
}

func (s *ExecuteSuite) TestValidationFailureIsPrinted() {
	res, err := s.exec("mint-owner", "-to", "acme", "-amount", "1")
	s.Require().Error(err)
	s.Contains(res.Error, "Invalid Ethereum address")
	s.Empty(res.TxHash)
}
