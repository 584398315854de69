package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/hub"
	"github.com/DoyleJ11/groupsync/internal/sink"
	"github.com/DoyleJ11/groupsync/internal/ws"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

type Options struct {
	// Supervise keeps joined groups connected after transient drops.
	Supervise bool
	Log       *zap.Logger
}

// SetupRoutes builds the local control API over the hub's sessions and the shared sink.
func SetupRoutes(h *hub.Hub, s sink.Sink, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/groups", ListGroups(h))
	r.Get("/sink/recent", RecentSong(s))

	r.Route("/groups/{groupID}", func(r chi.Router) {
		r.Post("/connect", ConnectGroup(h, opts.Supervise, log))
		r.Delete("/", DisconnectGroup(h))
		r.Get("/state", GroupState(h))
		r.Get("/snapshot", GroupSnapshot(h))
		r.Get("/events", ws.Handler(h, log))
		r.Post("/play", SimpleCommand(h, types.IntentPlay))
		r.Post("/pause", SimpleCommand(h, types.IntentPause))
		r.Post("/next", SimpleCommand(h, types.IntentNext))
		r.Post("/prev", SimpleCommand(h, types.IntentPrev))
		r.Post("/seek", Seek(h))
		r.Post("/queue", Enqueue(h, s))
	})
	return r
}
