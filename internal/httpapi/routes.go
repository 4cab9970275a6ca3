package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenorite/tenorite-server/internal/ws"
)

// Deps are the services behind the API. Games and Winlist may be nil.
type Deps struct {
	Channels Channels
	Games    Games
	Winlist  Winlists
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Post("/channels", CreateChannel(d.Channels))
	r.Get("/channels", ListChannels(d.Channels))
	r.Get("/games/{id}", GetGame(d.Games))
	r.Get("/winlist", GetWinlist(d.Winlist))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Channels))
	return r
}
