package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triad-arena/server/internal/money"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TICK_RATE", "60")
	t.Setenv("ENTRY_FEE", "0.5")
	t.Setenv("PAYOUT_AMOUNT", "1.2")
	t.Setenv("RECONNECT_GRACE", "45s")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("HEARTBEAT_EVERY", "5s")
	t.Setenv("SETTLE_ATTEMPTS", "7")
	t.Setenv("SETTLE_BACKOFF_CAP", "90s")
	t.Setenv("LOBBY_DEPOSIT_ADDRESSES", "0xaaa1, 0xaaa2,0xaaa3 , 0xaaa4")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 60, cfg.TickRate)
	require.Equal(t, money.MustParse("0.5"), cfg.EntryFee)
	require.Equal(t, money.MustParse("1.2"), cfg.PayoutAmount)
	require.Equal(t, 45*time.Second, cfg.ReconnectGrace)
	require.True(t, cfg.DevMode)
	require.Equal(t, 5*time.Second, cfg.HeartbeatEvery)
	require.Equal(t, 7, cfg.SettleAttempts)
	require.Equal(t, 90*time.Second, cfg.SettleBackoffCap)
	require.Equal(t, []string{"0xaaa1", "0xaaa2", "0xaaa3", "0xaaa4"}, cfg.LobbyDepositAddresses)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("TICK_RATE", "fast")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsOverdrawnPayout(t *testing.T) {
	cfg := Default()
	cfg.PayoutAmount = money.MustParse("3.1")
	require.Error(t, cfg.Validate())
}

func TestValidateDepositAddressList(t *testing.T) {
	cfg := Default()
	cfg.LobbyDepositAddresses = []string{"0xaaa1", "0xaaa2"}
	require.Error(t, cfg.Validate(), "fewer addresses than lobbies")

	cfg.LobbyDepositAddresses = []string{"0xaaa1", "0xaaa2", "0xaaa3", "0xAAA1"}
	require.Error(t, cfg.Validate(), "the same address on two lobbies")

	cfg.LobbyDepositAddresses = []string{"0xaaa1", "0xaaa2", "0xaaa3", "0xaaa4"}
	require.NoError(t, cfg.Validate())
}

func TestTickMath(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Second/30, cfg.TickInterval())
	require.InDelta(t, 1.0/30.0, cfg.Dt(), 1e-12)
}

func TestValidateRejectsTinyArena(t *testing.T) {
	cfg := Default()
	cfg.ArenaWidth = 40
	require.Error(t, cfg.Validate())
}
