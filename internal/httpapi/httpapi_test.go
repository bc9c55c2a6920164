package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad-arena/server/internal/auth"
	"triad-arena/server/internal/chain"
	"triad-arena/server/internal/config"
	"triad-arena/server/internal/lobby"
	"triad-arena/server/internal/money"
	"triad-arena/server/internal/session"
	"triad-arena/server/internal/store"
	"triad-arena/server/logging"
)

const testDomain = "play.triad-arena.example"

type nopSettler struct{}

func (nopSettler) EnqueuePayout(string, string, money.Amount)         {}
func (nopSettler) EnqueueRefund(string, string, money.Amount, string) {}

type nopSender struct{}

func (nopSender) Send(string, any) error { return nil }

type publicFixture struct {
	api     *PublicAPI
	server  *httptest.Server
	store   *store.MemoryStore
	tokens  *auth.Tokens
	manager *lobby.Manager
}

func newPublicFixture(t *testing.T) *publicFixture {
	t.Helper()
	cfg := config.Default()
	st := store.NewMemoryStore()
	gateway := chain.NewMockGateway("0x000000000000000000000000000000000000fee1", money.MustParse("100"))
	manager := lobby.NewManager(cfg, st, gateway, nopSender{}, nopSettler{}, logging.NopPublisher())
	tokens := auth.NewTokens(st, time.Hour)

	api := &PublicAPI{
		Store:         st,
		Tokens:        tokens,
		Nonces:        auth.NewNonceIssuer(time.Minute),
		Domain:        testDomain,
		MaxMessageAge: 5 * time.Minute,
		Manager:       manager,
		Sessions:      session.NewRegistry(3, 30*time.Second),
		WS:            http.NotFoundHandler(),
		Events:        logging.NopPublisher(),
	}
	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return &publicFixture{api: api, server: server, store: st, tokens: tokens, manager: manager}
}

// signIn produces a signed challenge for a fresh key.
func signIn(t *testing.T, nonce string) (message, signature, address string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address = crypto.PubkeyToAddress(key.PublicKey).Hex()

	message = fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nEnter the arena.\n\nURI: https://%s\nVersion: 1\nChain ID: 8453\nNonce: %s\nIssued At: %s",
		testDomain, address, testDomain, nonce, time.Now().Format(time.RFC3339),
	)
	rawSig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	rawSig[64] += 27
	signature = fmt.Sprintf("0x%x", rawSig)
	return message, signature, address
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func fetchNonce(t *testing.T, f *publicFixture) string {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/auth/nonce")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["nonce"])
	return body["nonce"]
}

func TestAuthIssuesSessionToken(t *testing.T) {
	f := newPublicFixture(t)
	message, signature, address := signIn(t, fetchNonce(t, f))

	resp := postJSON(t, f.server.URL+"/auth", authRequest{
		WalletAddress: address, Signature: signature, Message: message,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, address, body.User.WalletAddress)

	userID, err := f.tokens.Validate(context.Background(), body.Token)
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, userID)
}

func TestAuthRejectsMismatchedWallet(t *testing.T) {
	f := newPublicFixture(t)
	message, signature, _ := signIn(t, fetchNonce(t, f))

	resp := postJSON(t, f.server.URL+"/auth", authRequest{
		WalletAddress: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		Signature:     signature,
		Message:       message,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRejectsNonceReplay(t *testing.T) {
	f := newPublicFixture(t)
	message, signature, address := signIn(t, fetchNonce(t, f))
	req := authRequest{WalletAddress: address, Signature: signature, Message: message}

	first := postJSON(t, f.server.URL+"/auth", req)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, f.server.URL+"/auth", req)
	defer second.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, second.StatusCode)
}

func TestHealthAndDiagnostics(t *testing.T) {
	f := newPublicFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/diagnostics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Lobbies        map[string]string `json:"lobbies"`
		Sessions       int               `json:"sessions"`
		PendingPayouts int               `json:"pendingPayouts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Lobbies, 4)
	assert.Equal(t, 0, body.Sessions)
}

func newAdminFixture(t *testing.T, devMode bool) (*httptest.Server, *lobby.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.DevMode = devMode
	st := store.NewMemoryStore()
	gateway := chain.NewMockGateway("0x000000000000000000000000000000000000fee1", money.MustParse("100"))
	manager := lobby.NewManager(cfg, st, gateway, nopSender{}, nopSettler{}, logging.NopPublisher())
	t.Cleanup(func() { manager.Reset(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	api := &AdminAPI{
		DevMode: devMode,
		Manager: manager,
		Bots:    lobby.NewBotPool(ctx, manager, st),
		Events:  logging.NopPublisher(),
	}
	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return server, manager
}

func TestAdminDevGateBlocksProduction(t *testing.T) {
	server, _ := newAdminFixture(t, false)

	resp, err := http.Get(server.URL + "/dev-mode")
	require.NoError(t, err)
	defer resp.Body.Close()
	var mode map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mode))
	assert.False(t, mode["devMode"])

	reset := postJSON(t, server.URL+"/dev/reset", nil)
	reset.Body.Close()
	assert.Equal(t, http.StatusForbidden, reset.StatusCode)

	add := postJSON(t, server.URL+"/bot/add", map[string]int{"lobbyId": 1})
	add.Body.Close()
	assert.Equal(t, http.StatusForbidden, add.StatusCode)
}

func TestAdminBotFillStartsCountdown(t *testing.T) {
	server, manager := newAdminFixture(t, true)

	resp := postJSON(t, server.URL+"/bot/fill", map[string]int{"lobbyId": 1})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Added []string `json:"added"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Added, 3)
	assert.Equal(t, 3, manager.SeatCount(1))
	assert.Equal(t, "countdown", manager.States()[1])
}

func TestAdminReset(t *testing.T) {
	server, manager := newAdminFixture(t, true)

	fill := postJSON(t, server.URL+"/bot/fill", map[string]int{"lobbyId": 2})
	fill.Body.Close()
	require.Equal(t, 3, manager.SeatCount(2))

	reset := postJSON(t, server.URL+"/dev/reset", nil)
	reset.Body.Close()
	assert.Equal(t, http.StatusNoContent, reset.StatusCode)
	assert.Equal(t, 0, manager.SeatCount(2))
	assert.Equal(t, "empty", manager.States()[2])
}
