package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/engine"
	"github.com/DoyleJ11/groupsync/internal/hub"
	"github.com/DoyleJ11/groupsync/internal/session"
	"github.com/DoyleJ11/groupsync/internal/sink"
	"github.com/DoyleJ11/groupsync/internal/transport"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func statusFor(err error) int {
	var te *transport.Error
	switch {
	case errors.Is(err, transport.ErrJoinRejected):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrAlreadyConnected), errors.Is(err, engine.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, wire.ErrUnsupportedCommand):
		return http.StatusBadRequest
	case errors.Is(err, hub.ErrClosed), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// joined looks up the group's entry, answering 404 when it was never joined.
func joined(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*hub.Entry, bool) {
	e, err := h.Get(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if e == nil {
		http.Error(w, "group not joined", http.StatusNotFound)
		return nil, false
	}
	return e, true
}

func ConnectGroup(h *hub.Hub, supervise bool, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			http.Error(w, "token required", http.StatusBadRequest)
			return
		}

		e, err := h.Ensure(r.Context(), groupID)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := e.Session.Connect(r.Context(), groupID, body.Token); err != nil {
			log.Warn("connect failed", zap.String("group_id", groupID), zap.Error(err))
			writeError(w, err)
			return
		}
		if supervise {
			if _, err := h.Supervise(r.Context(), groupID, body.Token); err != nil {
				log.Warn("supervise failed", zap.String("group_id", groupID), zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, struct {
			GroupID  string `json:"groupId"`
			ClientID string `json:"clientId"`
		}{GroupID: groupID, ClientID: e.Session.ClientID()})
	}
}

func DisconnectGroup(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := joined(w, r, h)
		if !ok {
			return
		}
		if err := e.Session.Disconnect(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		if err := h.Remove(r.Context(), e.GroupID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListGroups(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Groups []string `json:"groups"`
		}{Groups: ids})
	}
}

func GroupState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := joined(w, r, h)
		if !ok {
			return
		}
		v, err := e.Session.State(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Conn       engine.ConnState `json:"conn"`
			GroupID    string           `json:"groupId"`
			Generation uint64           `json:"generation"`
			Seq        uint64           `json:"seq,omitempty"`
		}{Conn: v.Conn, GroupID: v.GroupID, Generation: v.Generation, Seq: seqOf(v.Snapshot)})
	}
}

func seqOf(snap *types.GroupSnapshot) uint64 {
	if snap == nil {
		return 0
	}
	return snap.Seq
}

func GroupSnapshot(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := joined(w, r, h)
		if !ok {
			return
		}
		snap, found, err := e.Session.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if !found {
			http.Error(w, "no snapshot yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// SimpleCommand sends an intent that carries no data.
func SimpleCommand(h *hub.Hub, action types.IntentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		request(w, r, h, types.PlaybackIntent{Action: action})
	}
}

func Seek(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Timestamp *float64 `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Timestamp == nil {
			http.Error(w, "timestamp required", http.StatusBadRequest)
			return
		}
		request(w, r, h, types.PlaybackIntent{Action: types.IntentSeek, Offset: *body.Timestamp})
	}
}

// Enqueue takes explicit songs, or a query resolved through the sink's catalogue.
func Enqueue(h *hub.Hub, s sink.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Songs []types.Song `json:"songs"`
			Query string       `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		songs := body.Songs
		if len(songs) == 0 && strings.TrimSpace(body.Query) != "" {
			found, err := s.SearchFor(r.Context(), body.Query)
			if err != nil {
				writeError(w, err)
				return
			}
			songs = found
		}
		if len(songs) == 0 {
			http.Error(w, "nothing to enqueue", http.StatusBadRequest)
			return
		}
		request(w, r, h, types.PlaybackIntent{Action: types.IntentEnqueue, Songs: songs})
	}
}

func request(w http.ResponseWriter, r *http.Request, h *hub.Hub, intent types.PlaybackIntent) {
	e, ok := joined(w, r, h)
	if !ok {
		return
	}
	if err := e.Session.Request(r.Context(), intent); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func RecentSong(s sink.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		song, err := s.GetMostRecentSong(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if song == nil {
			http.Error(w, "nothing played yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, song)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
