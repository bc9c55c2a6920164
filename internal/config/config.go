// Package config loads the immutable process configuration. Everything is
// read from the environment once at startup (a .env file is honored by the
// entry point before Load runs); coordinators receive the value and never
// mutate it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"triad-arena/server/internal/money"
)

// Config carries every recognized option. Zero-config defaults describe the
// canonical production arena.
type Config struct {
	// Simulation.
	TickRate         int           // ticks per second
	SnapshotEvery    int           // broadcast every Nth tick
	MaxSpeed         float64       // arena units per second
	ArenaWidth       float64
	ArenaHeight      float64
	PlayerRadius     float64
	HeartRadius      float64
	WinHearts        int           // hearts needed to win the showdown
	ShowdownFreeze   time.Duration
	CountdownLength  time.Duration
	SpawnMinPairDist float64
	SpawnWallMargin  float64
	HeartLayoutRandom bool

	// Sessions & transport.
	ReconnectGrace   time.Duration
	RefundTimeout    time.Duration
	InputRatePerSec  float64
	OtherRatePerSec  float64
	MaxConnsPerIP    int
	MaxFrameBytes    int64
	HandshakeTimeout time.Duration
	HeartbeatEvery   time.Duration
	TokenTTL         time.Duration
	TokenRotateEvery time.Duration

	// Settlement & chain.
	MinConfirmations uint64
	EntryFee         money.Amount
	PayoutAmount     money.Amount
	FeeAddress       string
	// LobbyDepositAddresses maps lobby slots to their long-lived receive
	// addresses, in slot order. Dev mode derives placeholders when unset.
	LobbyDepositAddresses []string
	RPCEndpoint      string
	TokenAddress     string
	OperatorKey      string // hex private key of the settlement wallet
	ChainID          int64
	ChainDeadline    time.Duration
	SettleWorkers    int
	SettleAttempts   int
	SettleBackoffCap time.Duration

	// Edges & ops.
	PublicAddr        string
	AdminAddr         string
	DevMode           bool
	LobbyCount        int
	DatabaseURL       string
	CriticalAlertURL  string
	ActivityAlertURL  string
	EventLogPath      string
	SIWEDomain        string
}

// Default returns the canonical configuration used in production and tests.
func Default() Config {
	return Config{
		TickRate:          30,
		SnapshotEvery:     2,
		MaxSpeed:          450,
		ArenaWidth:        1600,
		ArenaHeight:       900,
		PlayerRadius:      22,
		HeartRadius:       16,
		WinHearts:         2,
		ShowdownFreeze:    3 * time.Second,
		CountdownLength:   10 * time.Second,
		SpawnMinPairDist:  150,
		SpawnWallMargin:   50,
		HeartLayoutRandom: false,

		ReconnectGrace:   30 * time.Second,
		RefundTimeout:    5 * time.Minute,
		InputRatePerSec:  120,
		OtherRatePerSec:  10,
		MaxConnsPerIP:    3,
		MaxFrameBytes:    16 * 1024,
		HandshakeTimeout: 10 * time.Second,
		HeartbeatEvery:   2 * time.Second,
		TokenTTL:         24 * time.Hour,
		TokenRotateEvery: 10 * time.Minute,

		MinConfirmations: 3,
		EntryFee:         money.MustParse("1"),
		PayoutAmount:     money.MustParse("2.4"),
		ChainDeadline:    30 * time.Second,
		SettleWorkers:    4,
		SettleAttempts:   5,
		SettleBackoffCap: time.Minute,

		PublicAddr: ":8080",
		AdminAddr:  "127.0.0.1:8081",
		LobbyCount: 4,
		SIWEDomain: "play.triad-arena.example",
	}
}

// Load builds the frozen configuration from the environment on top of the
// defaults.
func Load() (Config, error) {
	cfg := Default()
	var err error

	intOpt(&cfg.TickRate, "TICK_RATE", &err)
	intOpt(&cfg.SnapshotEvery, "SNAPSHOT_EVERY", &err)
	floatOpt(&cfg.MaxSpeed, "MAX_SPEED", &err)
	floatOpt(&cfg.ArenaWidth, "ARENA_WIDTH", &err)
	floatOpt(&cfg.ArenaHeight, "ARENA_HEIGHT", &err)
	floatOpt(&cfg.PlayerRadius, "PLAYER_RADIUS", &err)
	floatOpt(&cfg.HeartRadius, "HEART_RADIUS", &err)
	intOpt(&cfg.WinHearts, "WIN_HEARTS", &err)
	durOpt(&cfg.ShowdownFreeze, "SHOWDOWN_FREEZE", &err)
	durOpt(&cfg.CountdownLength, "COUNTDOWN_LENGTH", &err)
	boolOpt(&cfg.HeartLayoutRandom, "HEART_LAYOUT_RANDOM", &err)

	durOpt(&cfg.ReconnectGrace, "RECONNECT_GRACE", &err)
	durOpt(&cfg.RefundTimeout, "REFUND_TIMEOUT", &err)
	floatOpt(&cfg.InputRatePerSec, "INPUT_RATE_CAP", &err)
	floatOpt(&cfg.OtherRatePerSec, "OTHER_RATE_CAP", &err)
	intOpt(&cfg.MaxConnsPerIP, "MAX_CONNS_PER_IP", &err)
	int64Opt(&cfg.MaxFrameBytes, "MAX_FRAME_BYTES", &err)
	durOpt(&cfg.HandshakeTimeout, "HANDSHAKE_TIMEOUT", &err)
	durOpt(&cfg.HeartbeatEvery, "HEARTBEAT_EVERY", &err)
	durOpt(&cfg.TokenTTL, "TOKEN_TTL", &err)
	durOpt(&cfg.TokenRotateEvery, "TOKEN_ROTATE_EVERY", &err)

	uint64Opt(&cfg.MinConfirmations, "MIN_CONFIRMATIONS", &err)
	amountOpt(&cfg.EntryFee, "ENTRY_FEE", &err)
	amountOpt(&cfg.PayoutAmount, "PAYOUT_AMOUNT", &err)
	strOpt(&cfg.FeeAddress, "FEE_ADDRESS")
	listOpt(&cfg.LobbyDepositAddresses, "LOBBY_DEPOSIT_ADDRESSES")
	strOpt(&cfg.RPCEndpoint, "RPC_ENDPOINT")
	strOpt(&cfg.TokenAddress, "TOKEN_ADDRESS")
	strOpt(&cfg.OperatorKey, "OPERATOR_KEY")
	int64Opt(&cfg.ChainID, "CHAIN_ID", &err)
	durOpt(&cfg.ChainDeadline, "CHAIN_DEADLINE", &err)
	intOpt(&cfg.SettleWorkers, "SETTLE_WORKERS", &err)
	intOpt(&cfg.SettleAttempts, "SETTLE_ATTEMPTS", &err)
	durOpt(&cfg.SettleBackoffCap, "SETTLE_BACKOFF_CAP", &err)

	strOpt(&cfg.PublicAddr, "PUBLIC_ADDR")
	strOpt(&cfg.AdminAddr, "ADMIN_ADDR")
	boolOpt(&cfg.DevMode, "DEV_MODE", &err)
	intOpt(&cfg.LobbyCount, "LOBBY_COUNT", &err)
	strOpt(&cfg.DatabaseURL, "DATABASE_URL")
	strOpt(&cfg.CriticalAlertURL, "CRITICAL_ALERT_URL")
	strOpt(&cfg.ActivityAlertURL, "ACTIVITY_ALERT_URL")
	strOpt(&cfg.EventLogPath, "EVENT_LOG_PATH")
	strOpt(&cfg.SIWEDomain, "SIWE_DOMAIN")

	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the simulation cannot run with.
func (c Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return errors.New("config: tick rate must be positive")
	case c.SnapshotEvery <= 0:
		return errors.New("config: snapshot cadence must be positive")
	case c.ArenaWidth < 4*c.PlayerRadius || c.ArenaHeight < 4*c.PlayerRadius:
		return errors.New("config: arena too small for the player radius")
	case c.MaxSpeed <= 0:
		return errors.New("config: max speed must be positive")
	case c.WinHearts <= 0:
		return errors.New("config: win threshold must be positive")
	case c.LobbyCount <= 0:
		return errors.New("config: at least one lobby required")
	case c.EntryFee <= 0:
		return errors.New("config: entry fee must be positive")
	case c.PayoutAmount <= 0:
		return errors.New("config: payout must be positive")
	case c.PayoutAmount > 3*c.EntryFee:
		return errors.New("config: payout exceeds a full pot")
	case c.MaxFrameBytes <= 0:
		return errors.New("config: frame cap must be positive")
	case len(c.LobbyDepositAddresses) > 0 && len(c.LobbyDepositAddresses) < c.LobbyCount:
		return errors.New("config: fewer deposit addresses than lobbies")
	}
	seen := make(map[string]bool, len(c.LobbyDepositAddresses))
	for _, addr := range c.LobbyDepositAddresses {
		key := strings.ToLower(addr)
		if seen[key] {
			return fmt.Errorf("config: deposit address %s assigned to more than one lobby", addr)
		}
		seen[key] = true
	}
	return nil
}

// TickInterval is the wall duration of one simulation tick.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Dt is the fixed step passed to the physics kernel.
func (c Config) Dt() float64 {
	return 1.0 / float64(c.TickRate)
}

func strOpt(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func listOpt(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

func intOpt(dst *int, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := strconv.Atoi(v)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func int64Opt(dst *int64, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func uint64Opt(dst *uint64, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func floatOpt(dst *float64, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func boolOpt(dst *bool, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := strconv.ParseBool(v)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func amountOpt(dst *money.Amount, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := money.Parse(v)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}

func durOpt(dst *time.Duration, key string, err *error) {
	if v, ok := os.LookupEnv(key); ok && *err == nil {
		parsed, perr := time.ParseDuration(v)
		if perr != nil {
			*err = fmt.Errorf("config: %s: %w", key, perr)
			return
		}
		*dst = parsed
	}
}
