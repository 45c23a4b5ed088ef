package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"creditmint/internal/chain"
	"creditmint/internal/chain/evm"
	"creditmint/internal/chain/simulated"
	"creditmint/internal/coordinator"
	mintHandler "creditmint/internal/coordinator/handler"
	cmetrics "creditmint/internal/coordinator/metrics"
	jwttoken "creditmint/internal/jwt_token"
	"creditmint/internal/ledger"
	"creditmint/internal/notify"
	"creditmint/internal/platform/config"
	"creditmint/internal/platform/httpserver"
	"creditmint/internal/platform/kafka"
	"creditmint/internal/platform/lock"
	"creditmint/internal/platform/metrics"
	"creditmint/internal/platform/middleware"
	"creditmint/internal/platform/redis"
	"creditmint/internal/platform/tracing"
	"creditmint/internal/token"
	tokenHandler "creditmint/internal/token/handler"
	"creditmint/pkg/domain"
	"creditmint/pkg/platform/circuit"
	"creditmint/pkg/platform/httputil"
)

// defaultSimContract is where the simulated ledger deploys the contract when
// CONTRACT_ADDRESS is unset.
const defaultSimContract = "0x00000000000000000000000000000000000C0DE0"

// app holds the wired service.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *prometheus.Registry
	coordinator *coordinator.Service
	signer      chain.Signer
	contract    domain.Identity

	// set only for the simulated ledger
	token   *token.Token
	backend *simulated.Backend
	relay   *notify.Relay

	health  map[string]func(context.Context) error
	closers []func()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(cfg.Server, a.router())
	logger.InfoContext(ctx, "starting creditmint",
		"addr", srv.Addr,
		"simulated", cfg.Chain.Simulated(),
		"signer", a.signer.Identity().Hex(),
		"contract", a.contract.Hex(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	if a.backend != nil {
		g.Go(func() error {
			return a.backend.Run(gctx, cfg.Sim.BlockInterval)
		})
	}
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}
	return g.Wait()
}

// build wires every component from cfg. Background loops are started by run.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metrics.NewRegistry(),
		health:   make(map[string]func(context.Context) error),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	signer, err := loadSigner(cfg.Chain)
	if err != nil {
		return nil, err
	}
	a.signer = signer

	contractHex := cfg.Chain.ContractAddress
	if contractHex == "" {
		contractHex = defaultSimContract
	}
	a.contract, err = domain.ParseIdentity(contractHex)
	if err != nil {
		return nil, fmt.Errorf("CONTRACT_ADDRESS: %w", err)
	}

	var network chain.Network
	if cfg.Chain.Simulated() {
		network, err = a.buildSimulated()
	} else {
		network, err = a.buildEVM(ctx)
	}
	if err != nil {
		return nil, err
	}

	locker, err := a.buildLocker(ctx)
	if err != nil {
		return nil, err
	}

	a.coordinator = coordinator.New(network, signer, a.contract,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(cmetrics.New(a.registry)),
		coordinator.WithLocker(locker),
		coordinator.WithDecimals(cfg.Mint.TokenDecimals),
		coordinator.WithGasCeiling(cfg.Mint.GasLimit),
		coordinator.WithPolling(cfg.Mint.PollInterval, cfg.Mint.ConfirmTimeout),
		coordinator.WithSubmitTimeout(cfg.Mint.SubmitTimeout),
	)

	if a.token != nil {
		sinks, err := a.buildSinks(ctx)
		if err != nil {
			return nil, err
		}
		a.relay = notify.NewRelay(a.token.Ledger(), a.contract, sinks, notify.WithLogger(logger))
	}

	ok = true
	return a, nil
}

func loadSigner(cfg config.Chain) (*chain.KeySigner, error) {
	if cfg.PrivateKey != "" {
		s, err := chain.NewKeySigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("PRIVATE_KEY: %w", err)
		}
		return s, nil
	}
	if !cfg.Simulated() {
		return nil, errors.New("PRIVATE_KEY is required with ETH_NODE_URL")
	}
	return chain.GenerateKeySigner()
}

// buildSimulated deploys the contract on an in-process ledger owned by the signer.
func (a *app) buildSimulated() (chain.Network, error) {
	cfg := a.cfg
	decimals := cfg.Mint.TokenDecimals
	supply := new(big.Int).Mul(
		big.NewInt(cfg.Sim.InitialSupply),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil),
	)

	l := ledger.New()
	tok, err := token.Deploy(l, a.contract, a.signer.Identity(), supply,
		token.WithMetadata("Credit", "CRD", decimals),
	)
	if err != nil {
		return nil, fmt.Errorf("deploy contract: %w", err)
	}

	for _, raw := range cfg.Sim.Minters {
		minter, err := domain.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("SIM_MINTERS: %w", err)
		}
		_, err = l.Execute(ledger.Call{Caller: tok.Owner()}, func(tx *ledger.Tx) error {
			return tok.Authorize(tx, minter)
		})
		if err != nil {
			return nil, fmt.Errorf("authorize %s: %w", minter.Hex(), err)
		}
	}

	a.token = tok
	a.backend = simulated.New(tok,
		simulated.WithNetworkID(cfg.Sim.NetworkID),
		simulated.WithLogger(a.logger),
	)
	return a.backend, nil
}

func (a *app) buildEVM(ctx context.Context) (chain.Network, error) {
	client, err := evm.Dial(ctx, a.cfg.Chain.NodeURL, evm.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.health["node"] = func(ctx context.Context) error {
		_, err := client.NetworkID(ctx)
		return err
	}
	return client, nil
}

func (a *app) buildLocker(ctx context.Context) (lock.Locker, error) {
	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return lock.NewMemory(), nil
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })
	a.health["redis"] = rc.Health
	primary := lock.NewRedis(rc.Client, lock.WithTTL(a.cfg.Redis.LockTTL))
	return lock.NewFallback(primary, lock.NewMemory(), circuit.New("redis-lock"), a.logger), nil
}

func (a *app) buildSinks(ctx context.Context) ([]notify.Sink, error) {
	sinks := []notify.Sink{notify.NewLogSink(a.logger)}
	if len(a.cfg.Kafka.Brokers) == 0 {
		return sinks, nil
	}
	producer, err := kafka.NewProducer(ctx, kafka.Config{
		Brokers: a.cfg.Kafka.Brokers,
		Topic:   a.cfg.Kafka.Topic,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, producer.Close)
	a.health["kafka"] = producer.Health
	return append(sinks, notify.NewKafkaSink(producer)), nil
}

func (a *app) router() http.Handler {
	httpMetrics := metrics.NewHTTP(a.registry)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.AccessLog(a.logger))
	r.Use(httpMetrics.Middleware)

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(a.registry))

	mint := mintHandler.New(a.coordinator, a.logger)
	r.Group(func(r chi.Router) {
		if key := a.cfg.Server.MintSigningKey; key != "" {
			tokens := jwttoken.NewService(key, jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
			r.Use(middleware.RequireBearer(tokens, jwttoken.ScopeMint, a.logger))
		}
		mint.Register(r)
	})

	if a.token != nil {
		tokenHandler.New(a.token, a.logger).Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(a.health))}
	for name, check := range a.health {
		if err := check(ctx); err != nil {
			a.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
