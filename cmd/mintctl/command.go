package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"creditmint/internal/coordinator"
	jwttoken "creditmint/internal/jwt_token"
	"creditmint/internal/token"
)

const (
	cmdAuthorize  = "authorize"
	cmdRevoke     = "revoke"
	cmdMintOwner  = "mint-owner"
	cmdMintSecure = "mint-secure"
	cmdToken      = "token"
)

const usage = `usage: mintctl <command> [flags]

commands:
  authorize   -minter ADDRESS              add a delegated minter (owner only)
  revoke      -minter ADDRESS              remove a delegated minter (owner only)
  mint-owner  -to ADDRESS -amount DECIMAL  mint as the owner
  mint-secure -to ADDRESS -amount DECIMAL  mint through the guarded delegated path
  token       -subject NAME [-ttl 24h]     issue a bearer token for POST /mint

Chain commands read ETH_NODE_URL, PRIVATE_KEY and CONTRACT_ADDRESS from the environment;
token reads MINT_API_SIGNING_KEY.
`

type command struct {
	name    string
	target  string
	amount  string
	subject string
	ttl     time.Duration
}

// Transactor runs calls through the coordinator pipeline.
type Transactor interface {
	Mint(ctx context.Context, ev coordinator.CreditEvent) (*coordinator.Outcome, error)
	Transact(ctx context.Context, method string, data []byte) (*coordinator.Outcome, error)
}

func parseCommand(args []string) (*command, error) {
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}
	cmd := &command{name: args[0]}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd.name {
	case cmdAuthorize, cmdRevoke:
		fs.StringVar(&cmd.target, "minter", "", "minter address")
	case cmdMintOwner, cmdMintSecure:
		fs.StringVar(&cmd.target, "to", "", "recipient address")
		fs.StringVar(&cmd.amount, "amount", "", "amount in whole tokens, decimals allowed")
	case cmdToken:
		fs.StringVar(&cmd.subject, "subject", "", "calling system name")
		fs.DurationVar(&cmd.ttl, "ttl", 24*time.Hour, "token lifetime")
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.name)
	}
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch cmd.name {
	case cmdToken:
		if cmd.subject == "" {
			return nil, errors.New("-subject is required")
		}
		if cmd.ttl <= 0 {
			return nil, errors.New("-ttl must be positive")
		}
	case cmdAuthorize, cmdRevoke:
		if cmd.target == "" {
			return nil, errors.New("-minter is required")
		}
	default:
		if cmd.target == "" || cmd.amount == "" {
			return nil, errors.New("-to and -amount are required")
		}
	}
	return cmd, nil
}

type result struct {
	State       string `json:"state"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Amount      string `json:"amountMinted,omitempty"`
	Error       string `json:"error,omitempty"`
}

// execute sends cmd and prints the outcome as JSON. A failed outcome is printed and
// returned.
func execute(ctx context.Context, cmd *command, tx Transactor, decimals uint8, out io.Writer) error {
	var (
		outcome *coordinator.Outcome
		err     error
	)
	switch cmd.name {
	case cmdMintSecure:
		outcome, err = tx.Mint(ctx, coordinator.CreditEvent{Magnitude: cmd.amount, Target: cmd.target})
	case cmdMintOwner:
		outcome, err = mintOwner(ctx, tx, cmd, decimals)
	case cmdAuthorize:
		outcome, err = registryCall(ctx, tx, token.MethodAuthorize, cmd.target)
	case cmdRevoke:
		outcome, err = registryCall(ctx, tx, token.MethodRevoke, cmd.target)
	default:
		return fmt.Errorf("unknown command %q", cmd.name)
	}

	res := result{}
	if outcome != nil {
		res.State = string(outcome.State)
		if outcome.Broadcast() {
			res.TxHash = outcome.TxHash.Hex()
		}
		res.BlockNumber = outcome.BlockNumber
		if outcome.AmountMinted != nil {
			res.Amount = outcome.AmountMinted.String()
		}
	}
	if err != nil {
		res.Error = err.Error()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return encErr
	}
	return err
}

func mintOwner(ctx context.Context, tx Transactor, cmd *command, decimals uint8) (*coordinator.Outcome, error) {
	amount, err := coordinator.ScaleMagnitude(cmd.amount, decimals)
	if err != nil {
		return nil, err
	}
	to, err := coordinator.ParseTarget(cmd.target)
	if err != nil {
		return nil, err
	}
	data, err := token.PackMint(token.MethodMintOwner, to, amount)
	if err != nil {
		return nil, err
	}
	outcome, err := tx.Transact(ctx, token.MethodMintOwner, data)
	if outcome != nil && err == nil {
		outcome.AmountMinted = amount
	}
	return outcome, err
}

func registryCall(ctx context.Context, tx Transactor, method, minterHex string) (*coordinator.Outcome, error) {
	minter, err := coordinator.ParseTarget(minterHex)
	if err != nil {
		return nil, err
	}
	data, err := token.PackMinter(method, minter)
	if err != nil {
		return nil, err
	}
	return tx.Transact(ctx, method, data)
}

func issueToken(signingKey string, cmd *command, out io.Writer) error {
	if signingKey == "" {
		return errors.New("MINT_API_SIGNING_KEY is not set")
	}
	svc := jwttoken.NewService(signingKey, jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
	tok, err := svc.GenerateToken(cmd.subject, jwttoken.ScopeMint, cmd.ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
