// Package httpapi carries the two HTTP listeners: the public edge (auth,
// health, the websocket upgrade) and the admin edge (dev tooling). They are
// separate routers bound to separate ports; nothing on the admin surface is
// reachable from the public one.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"triad-arena/server/internal/auth"
	"triad-arena/server/internal/lobby"
	"triad-arena/server/internal/proto"
	"triad-arena/server/internal/session"
	"triad-arena/server/internal/store"
	"triad-arena/server/logging"
)

const maxAuthBody = 8 * 1024

// PublicAPI serves the player-facing surface.
type PublicAPI struct {
	Store         store.Store
	Tokens        *auth.Tokens
	Nonces        *auth.NonceIssuer
	Domain        string
	MaxMessageAge time.Duration
	Manager       *lobby.Manager
	Sessions      *session.Registry
	WS            http.Handler
	Events        logging.Publisher
}

func (a *PublicAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/nonce", a.handleNonce).Methods(http.MethodGet)
	r.HandleFunc("/auth", a.handleAuth).Methods(http.MethodPost)
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/diagnostics", a.handleDiagnostics).Methods(http.MethodGet)
	r.Handle("/ws", a.WS)
	return r
}

func (a *PublicAPI) handleNonce(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"nonce": a.Nonces.Issue()})
}

type authRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

type userView struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	DisplayName   string `json:"displayName"`
	Wins          int    `json:"wins"`
	MatchesPlayed int    `json:"matchesPlayed"`
	EarningsMinor int64  `json:"earningsMinor"`
}

// handleAuth exchanges a signed sign-in message for a session token.
func (a *PublicAPI) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, proto.CodeMalformedFrame, "malformed request body")
		return
	}

	recovered, err := auth.VerifySignIn(req.Message, req.Signature, a.Domain, a.Nonces, a.MaxMessageAge)
	if err != nil {
		writeError(w, http.StatusUnauthorized, proto.CodeSignatureWrong, "sign-in verification failed")
		return
	}
	if !strings.EqualFold(recovered, req.WalletAddress) {
		writeError(w, http.StatusUnauthorized, proto.CodeSignatureWrong, "signature does not match wallet")
		return
	}

	user, err := a.Store.UpsertUserByWallet(r.Context(), recovered)
	if err != nil {
		writeError(w, http.StatusInternalServerError, proto.CodeStoreError, "user record failed")
		return
	}
	token, err := a.Tokens.Mint(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, proto.CodeStoreError, "token mint failed")
		return
	}

	a.Events.Publish(r.Context(), logging.Event{
		Type:     logging.EventSessionOpened,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Actor:    logging.EntityRef{ID: user.ID, Kind: logging.EntityKindPlayer},
		Extra:    map[string]any{"via": "auth"},
	})
	writeJSON(w, http.StatusOK, authResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		User: userView{
			ID:            user.ID,
			WalletAddress: user.Wallet,
			DisplayName:   user.DisplayName,
			Wins:          user.Wins,
			MatchesPlayed: user.MatchesPlayed,
			EarningsMinor: user.EarningsMinor,
		},
	})
}

func (a *PublicAPI) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDiagnostics reports operational state: lobby phases, live sessions,
// and the settlement backlog.
func (a *PublicAPI) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	pendingPayouts, err := a.Store.ListPendingPayouts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, proto.CodeStoreError, "store unavailable")
		return
	}
	pendingRefunds, err := a.Store.ListPendingRefunds(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, proto.CodeStoreError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lobbies":        a.Manager.States(),
		"sessions":       a.Sessions.Count(),
		"pendingPayouts": len(pendingPayouts),
		"pendingRefunds": len(pendingRefunds),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, proto.Errorf(code, message))
}
