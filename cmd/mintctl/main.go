// Package main is the operator CLI for the credit contract.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"creditmint/internal/chain"
	"creditmint/internal/chain/evm"
	"creditmint/internal/coordinator"
	"creditmint/internal/platform/config"
	"creditmint/internal/platform/logger"
	"creditmint/pkg/domain"
)

func main() {
	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mintctl: %v\n\n%s", err, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mintctl: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "mintctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd *command) error {
	if cmd.name == cmdToken {
		return issueToken(cfg.Server.MintSigningKey, cmd, os.Stdout)
	}
	if cfg.Chain.Simulated() {
		return fmt.Errorf("%s needs ETH_NODE_URL; the simulated ledger only lives inside the server", cmd.name)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	signer, err := chain.NewKeySigner(cfg.Chain.PrivateKey)
	if err != nil {
		return fmt.Errorf("PRIVATE_KEY: %w", err)
	}
	contract, err := domain.ParseIdentity(cfg.Chain.ContractAddress)
	if err != nil {
		return fmt.Errorf("CONTRACT_ADDRESS: %w", err)
	}
	client, err := evm.Dial(ctx, cfg.Chain.NodeURL, evm.WithLogger(log))
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer client.Close()

	svc := coordinator.New(client, signer, contract,
		coordinator.WithLogger(log),
		coordinator.WithDecimals(cfg.Mint.TokenDecimals),
		coordinator.WithGasCeiling(cfg.Mint.GasLimit),
		coordinator.WithPolling(cfg.Mint.PollInterval, cfg.Mint.ConfirmTimeout),
		coordinator.WithSubmitTimeout(cfg.Mint.SubmitTimeout),
	)
	return execute(ctx, cmd, svc, cfg.Mint.TokenDecimals, os.Stdout)
}
