// Package app wires the daemon's components together: the Job Store, beacon ingress,
// scheduler, job runner, pipelines, broadcaster, retry controller, and read API.
//
// Grounded on publisher-leader-app/app.go's App{cfg, ..., shutdownFns}/NewApp/
// initialize/Run/runWithGracefulShutdown/shutdown lifecycle shape: the same
// signal-driven graceful shutdown, the same pattern of building every collaborator in
// initialize and starting long-running loops as goroutines in Run.
package app

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/beacon"
	"github.com/lightclient/bankai/internal/broadcaster"
	"github.com/lightclient/bankai/internal/config"
	"github.com/lightclient/bankai/internal/contractclient"
	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/jobrunner"
	"github.com/lightclient/bankai/internal/metrics"
	"github.com/lightclient/bankai/internal/pipeline/epochbatch"
	"github.com/lightclient/bankai/internal/pipeline/synccommittee"
	"github.com/lightclient/bankai/internal/prover"
	"github.com/lightclient/bankai/internal/retry"
	"github.com/lightclient/bankai/internal/scheduler"
	"github.com/lightclient/bankai/internal/store"
	"github.com/lightclient/bankai/internal/tracegen"
	apisrv "github.com/lightclient/bankai/server/api"
	"github.com/lightclient/bankai/server/api/middleware"
)

// jobChannelCapacity bounds the Job Runner's input channel (spec §5: "bounded job
// channel" between the scheduler and the job runner).
const jobChannelCapacity = 256

// App owns every long-running component and its shutdown order.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store     *store.Store
	ingress   *beacon.Ingress
	scheduler *scheduler.Scheduler
	runner    *jobrunner.Runner
	apiServer *apisrv.Server

	jobs chan *job.Job

	cancel context.CancelFunc
}

// New builds every collaborator but starts nothing; call Run to start the daemon.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		cfg:  cfg,
		log:  logger.With().Str("component", "app").Logger(),
		jobs: make(chan *job.Job, jobChannelCapacity),
	}

	if err := a.initialize(); err != nil {
		return nil, fmt.Errorf("app: initialize: %w", err)
	}

	return a, nil
}

func (a *App) initialize() error {
	st, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	a.store = st

	m := metrics.NewBankai()

	beaconClient := beacon.New(a.cfg.Beacon.BaseURL, &http.Client{Timeout: a.cfg.Beacon.RequestTimeout}, a.log)
	a.ingress = beacon.NewIngress(a.cfg.Beacon.BaseURL, a.cfg.Beacon.HeadEventCapacity, a.log)

	contract, err := a.buildContractClient()
	if err != nil {
		return fmt.Errorf("build contract client: %w", err)
	}

	proverClient, err := prover.New(a.cfg.Prover.BaseURL, nil, a.log)
	if err != nil {
		return fmt.Errorf("build prover client: %w", err)
	}

	tracegenClient, err := tracegen.New(a.cfg.Tracegen.BaseURL, nil, a.log)
	if err != nil {
		return fmt.Errorf("build tracegen client: %w", err)
	}

	permits := jobrunner.NewPermits(a.cfg.Scheduler.MaxConcurrentTraceGenerations, a.cfg.Scheduler.MaxConcurrentBeaconRPC)

	pipelines := map[job.Kind]jobrunner.Pipeline{
		job.KindSyncCommitteeUpdate: synccommittee.New(beaconClient, tracegenClient, proverClient, st, permits, a.cfg.Store.ArtifactsDir, a.log),
		job.KindEpochBatchUpdate:    epochbatch.New(beaconClient, tracegenClient, proverClient, st, permits, a.cfg.Store.ArtifactsDir, a.log),
	}

	bc := broadcaster.New(contract, st, permits, m, a.log)

	a.runner = jobrunner.New(st, pipelines, bc, proverClient, permits,
		jobrunner.Config{VerifierProgram: a.cfg.Prover.VerifierProgram}, m, a.log)

	retryCtl := retry.NewController(retry.Dependencies{Store: st, Prover: proverClient, Log: a.log})

	a.scheduler = scheduler.New(st, contract, retryCtl, a.jobs, m, a.log)

	a.apiServer = apisrv.NewServer(a.cfg.API, a.log)
	a.apiServer.Use(middleware.Recover(a.log))
	a.apiServer.Use(middleware.RequestID())
	a.apiServer.Use(middleware.Logger(a.log))
	a.apiServer.EnableCORS()

	apisrv.NewHandlers(st, contract, retryCtl, a.cfg.Store.ArtifactsDir).Register(a.apiServer.Router)
	a.apiServer.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	if a.cfg.Metrics.Enabled {
		a.apiServer.Router.Handle(a.cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	return nil
}

func (a *App) buildContractClient() (*contractclient.Client, error) {
	ethc, err := ethclient.Dial(a.cfg.Contract.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial settlement chain rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(trimHexPrefix(a.cfg.Contract.SignerPkHex))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	chainID := new(big.Int).SetUint64(a.cfg.Contract.ChainID)
	signer := contractclient.NewLocalECDSASigner(chainID, key)

	return contractclient.New(a.cfg.Contract, ethc, signer, a.log)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Run starts every long-running loop and blocks until a shutdown signal or ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.ingress.Run(runCtx)
	go a.scheduler.Run(runCtx, a.ingress.Events())
	go a.runner.Run(runCtx, a.jobs)

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("api server error")
		}
	}()

	return a.runWithGracefulShutdown(runCtx)
}

func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("bankai started")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.log.Info().Msg("initiating graceful shutdown")

	// a.cancel (called by runWithGracefulShutdown before shutdown) already signals the
	// API server's own ctx.Done() listener in Server.Start to shut it down gracefully.
	close(a.jobs)

	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("job store close error")
		return err
	}

	a.log.Info().Msg("graceful shutdown complete")
	return nil
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
