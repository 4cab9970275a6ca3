package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/channel"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/hub"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/internal/storage"
	"github.com/tenorite/tenorite-server/internal/ws"
	"github.com/tenorite/tenorite-server/pkg/types"
)

// Channels is the part of the hub the API uses.
type Channels interface {
	ws.Directory
	Create(ctx context.Context, tempo game.Tempo, mode, name string, ephemeral bool) (*channel.Session, error)
}

type Games interface {
	Game(ctx context.Context, id string) (*game.RecordedGame, error)
}

type Winlists interface {
	Top(ctx context.Context, tempo game.Tempo, mode game.ModeID, n int) ([]types.WinlistEntry, error)
}

// GameResponse is a recorded game together with its ranking.
type GameResponse struct {
	Game    *game.RecordedGame `json:"game"`
	Ranking game.Ranking       `json:"ranking"`
}

func CreateChannel(ch Channels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateChannelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		tempo, err := game.ParseTempo(req.Tempo)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s, err := ch.Create(r.Context(), tempo, req.Mode, req.Name, true)
		switch {
		case err == nil:
		case errors.Is(err, hub.ErrNameInUse):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, hub.ErrInvalidName), errors.Is(err, game.ErrUnknownMode), errors.Is(err, game.ErrUnknownTempo):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, hub.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		default:
			obslog.L().Error("create_channel_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create channel")
			return
		}

		writeJSON(w, http.StatusCreated, types.ChannelInfo{
			Tempo: string(s.Tempo()),
			Mode:  string(s.Mode().ID),
			Name:  s.Name(),
			Max:   channel.MaxSlots,
		})
	}
}

func ListChannels(ch Channels) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tempo, err := game.ParseTempo(r.URL.Query().Get("tempo"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := ch.List(r.Context(), tempo)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetGame(games Games) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if games == nil {
			writeError(w, http.StatusServiceUnavailable, "game storage is not configured")
			return
		}
		g, err := games.Game(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			obslog.L().Error("get_game_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load game")
			return
		}
		writeJSON(w, http.StatusOK, GameResponse{Game: g, Ranking: g.Ranking()})
	}
}

func GetWinlist(wl Winlists) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wl == nil {
			writeError(w, http.StatusServiceUnavailable, "win-list is not configured")
			return
		}
		q := r.URL.Query()
		tempo, err := game.ParseTempo(q.Get("tempo"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode, err := game.FindMode(q.Get("mode"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n := 10
		if v := q.Get("n"); v != "" {
			if n, err = strconv.Atoi(v); err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid n")
				return
			}
		}
		entries, err := wl.Top(r.Context(), tempo, mode.ID, n)
		if err != nil {
			obslog.L().Error("get_winlist_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load win-list")
			return
		}
		if entries == nil {
			entries = []types.WinlistEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.Error{Error: msg})
}
