package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"triad-arena/server/internal/lobby"
	"triad-arena/server/internal/proto"
	"triad-arena/server/logging"
)

// AdminAPI serves the operator-only surface on its own listener. Everything
// that fabricates state is gated on dev mode.
type AdminAPI struct {
	DevMode bool
	Manager *lobby.Manager
	Bots    *lobby.BotPool
	Events  logging.Publisher
}

func (a *AdminAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/dev-mode", a.handleDevMode).Methods(http.MethodGet)
	r.HandleFunc("/dev/reset", a.requireDev(a.handleReset)).Methods(http.MethodPost)
	r.HandleFunc("/bot/add", a.requireDev(a.handleBotAdd)).Methods(http.MethodPost)
	r.HandleFunc("/bot/fill", a.requireDev(a.handleBotFill)).Methods(http.MethodPost)
	return r
}

func (a *AdminAPI) requireDev(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.DevMode {
			writeError(w, http.StatusForbidden, proto.CodeDevTxOnPublic, "dev mode disabled")
			return
		}
		next(w, r)
	}
}

func (a *AdminAPI) handleDevMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"devMode": a.DevMode})
}

func (a *AdminAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	a.Manager.Reset(r.Context())
	a.Events.Publish(r.Context(), logging.Event{
		Type:     logging.EventLobbyTransition,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Actor:    logging.EntityRef{ID: "admin", Kind: logging.EntityKindSystem},
		Extra:    map[string]any{"op": "reset"},
	})
	w.WriteHeader(http.StatusNoContent)
}

type botRequest struct {
	LobbyID int `json:"lobbyId"`
}

func (a *AdminAPI) handleBotAdd(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, proto.CodeMalformedFrame, "malformed request body")
		return
	}
	id, err := a.Bots.Add(req.LobbyID)
	if err != nil {
		writeError(w, http.StatusConflict, proto.CodeLobbyNotJoinable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": id})
}

func (a *AdminAPI) handleBotFill(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, proto.CodeMalformedFrame, "malformed request body")
		return
	}
	ids, err := a.Bots.Fill(req.LobbyID)
	if err != nil {
		writeError(w, http.StatusConflict, proto.CodeLobbyNotJoinable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": ids})
}
