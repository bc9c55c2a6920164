// Server entry point: loads the frozen configuration, opens the store and
// the chain gateway, wires the coordinators, and runs the two HTTP listeners
// until a shutdown signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"triad-arena/server/internal/alert"
	"triad-arena/server/internal/auth"
	"triad-arena/server/internal/chain"
	"triad-arena/server/internal/config"
	"triad-arena/server/internal/httpapi"
	"triad-arena/server/internal/lobby"
	"triad-arena/server/internal/money"
	"triad-arena/server/internal/proto"
	"triad-arena/server/internal/session"
	"triad-arena/server/internal/settle"
	"triad-arena/server/internal/store"
	"triad-arena/server/internal/ws"
	"triad-arena/server/logging"
	"triad-arena/server/logging/sinks"
)

const (
	lobbyTickEvery   = 250 * time.Millisecond
	depositPollEvery = 5 * time.Second
	reaperEvery      = time.Second
	pruneEvery       = time.Hour
	watchdogEvery    = 30 * time.Second
	stuckAfter       = 2 * time.Minute
	nonceTTL         = 5 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading environment directly")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := buildRouter(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	log.Printf("operator wallet %s", gateway.OperatorAddress())

	if !cfg.DevMode && len(cfg.LobbyDepositAddresses) < cfg.LobbyCount {
		return errors.New("LOBBY_DEPOSIT_ADDRESSES must name an address per lobby outside dev mode")
	}

	registry := session.NewRegistry(cfg.MaxConnsPerIP, cfg.ReconnectGrace)
	settler := settle.New(st, gateway, events, settle.Options{
		Workers:          cfg.SettleWorkers,
		MaxAttempts:      cfg.SettleAttempts,
		BackoffCap:       cfg.SettleBackoffCap,
		MinConfirmations: cfg.MinConfirmations,
	})
	manager := lobby.NewManager(cfg, st, gateway, registry, settler, events)
	tokens := auth.NewTokens(st, cfg.TokenTTL)
	nonces := auth.NewNonceIssuer(nonceTTL)

	// Boot reconciliation before any traffic: orphaned matches void and
	// refund, then interrupted transfers resume.
	if err := manager.Reconcile(ctx); err != nil {
		return err
	}
	settler.Start(ctx)
	if err := settler.Resume(ctx); err != nil {
		return err
	}

	wsHandler := &ws.Handler{
		Tokens:   tokens,
		Store:    st,
		Registry: registry,
		Dispatch: &lobby.Dispatcher{Manager: manager, Sender: registry},
		Events:   events,
		Limits: session.Limits{
			InputPerSec: cfg.InputRatePerSec,
			OtherPerSec: cfg.OtherRatePerSec,
		},
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadTimeout:      cfg.ReconnectGrace,
		MaxFrameBytes:    cfg.MaxFrameBytes,
	}

	public := &httpapi.PublicAPI{
		Store:         st,
		Tokens:        tokens,
		Nonces:        nonces,
		Domain:        cfg.SIWEDomain,
		MaxMessageAge: nonceTTL,
		Manager:       manager,
		Sessions:      registry,
		WS:            wsHandler,
		Events:        events,
	}
	admin := &httpapi.AdminAPI{
		DevMode: cfg.DevMode,
		Manager: manager,
		Bots:    lobby.NewBotPool(ctx, manager, st),
		Events:  events,
	}

	// The lobby clock runs on its own ticker; the countdown broadcast needs
	// sub-second cadence.
	go func() {
		ticker := time.NewTicker(lobbyTickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				manager.Tick(ctx)
			}
		}
	}()

	sched, err := startSweeps(ctx, cfg, manager, registry, tokens, nonces, events)
	if err != nil {
		return err
	}
	defer func() { _ = sched.Shutdown() }()

	publicSrv := &http.Server{Addr: cfg.PublicAddr, Handler: public.Router()}
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: admin.Router()}

	errs := make(chan error, 2)
	go func() { errs <- serve("public", publicSrv) }()
	go func() { errs <- serve("admin", adminSrv) }()
	log.Printf("listening public=%s admin=%s dev=%v", cfg.PublicAddr, cfg.AdminAddr, cfg.DevMode)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	publicSrv.Shutdown(shutdownCtx)
	adminSrv.Shutdown(shutdownCtx)
	if router, ok := events.(*logging.Router); ok {
		router.Close(shutdownCtx)
	}
	return nil
}

func serve(name string, srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listener: %w", name, err)
	}
	return nil
}

// buildRouter assembles the event pipeline: console always, a JSON file when
// configured, webhooks when configured.
func buildRouter(cfg config.Config) (logging.Publisher, error) {
	named := []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout)},
	}
	if cfg.EventLogPath != "" {
		jsonSink, err := sinks.NewJSONSink(cfg.EventLogPath)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		named = append(named, logging.NamedSink{Name: "json", Sink: jsonSink})
	}
	if cfg.CriticalAlertURL != "" || cfg.ActivityAlertURL != "" {
		named = append(named, logging.NamedSink{
			Name: "alert",
			Sink: alert.NewNotifier(cfg.CriticalAlertURL, cfg.ActivityAlertURL),
		})
	}
	return logging.NewRouter(logging.ClockFunc(time.Now), logging.DefaultConfig(), named), nil
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.OpenGorm(cfg.DatabaseURL)
	}
	if !cfg.DevMode {
		return nil, errors.New("DATABASE_URL is required outside dev mode")
	}
	log.Println("dev mode: using the in-memory store")
	return store.NewMemoryStore(), nil
}

func openGateway(ctx context.Context, cfg config.Config) (chain.Gateway, error) {
	if cfg.RPCEndpoint != "" {
		return chain.DialEVM(ctx, chain.EVMConfig{
			RPCEndpoint:  cfg.RPCEndpoint,
			TokenAddress: cfg.TokenAddress,
			OperatorKey:  cfg.OperatorKey,
			ChainID:      cfg.ChainID,
			Deadline:     cfg.ChainDeadline,
		})
	}
	if !cfg.DevMode {
		return nil, errors.New("RPC_ENDPOINT is required outside dev mode")
	}
	log.Println("dev mode: using the mock chain gateway")
	return chain.NewMockGateway("0x000000000000000000000000000000000000dEaD", money.MustParse("1000")), nil
}

// startSweeps schedules the recurring maintenance jobs.
func startSweeps(ctx context.Context, cfg config.Config, manager *lobby.Manager, registry *session.Registry, tokens *auth.Tokens, nonces *auth.NonceIssuer, events logging.Publisher) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		every time.Duration
		task  func()
	}{
		{depositPollEvery, func() { manager.PollDeposits(ctx) }},
		{reaperEvery, func() {
			for _, userID := range registry.ReapExpired() {
				manager.GraceExpired(ctx, userID)
			}
		}},
		{cfg.TokenRotateEvery, func() { rotateTokens(ctx, registry, tokens) }},
		{pruneEvery, func() {
			tokens.PruneExpired(ctx)
			nonces.Prune()
		}},
		{watchdogEvery, func() {
			for _, lobbyID := range manager.Stuck(stuckAfter) {
				events.Publish(ctx, logging.Event{
					Type:     logging.EventLobbyTransition,
					Severity: logging.SeverityError,
					Category: logging.CategoryLobby,
					Actor:    logging.EntityRef{ID: fmt.Sprintf("lobby-%d", lobbyID), Kind: logging.EntityKindLobby},
					Extra:    map[string]any{"stuck": true, "threshold": stuckAfter.String()},
				})
			}
		}},
	}
	for _, j := range jobs {
		if _, err := sched.NewJob(gocron.DurationJob(j.every), gocron.NewTask(j.task)); err != nil {
			return nil, err
		}
	}
	sched.Start()
	return sched, nil
}

// rotateTokens replaces every connected user's session token with a fresh
// one and pushes it down the wire. The old token dies with the rotation; a
// client that misses the update re-logs in.
func rotateTokens(ctx context.Context, registry *session.Registry, tokens *auth.Tokens) {
	for _, sess := range registry.Connected() {
		fresh, err := tokens.Rotate(ctx, sess.Token)
		if err != nil {
			continue
		}
		registry.UpdateToken(sess.UserID, fresh.Token)
		registry.Send(sess.UserID, proto.TokenUpdate{Type: proto.TypeTokenUpdate, Token: fresh.Token})
	}
}
