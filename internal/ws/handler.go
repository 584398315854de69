package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/feed"
	"github.com/DoyleJ11/groupsync/internal/hub"
	"github.com/DoyleJ11/groupsync/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler streams a group's events to a local UI and takes playback intents back.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("events")
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		e, err := h.Get(r.Context(), groupID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if e == nil {
			http.Error(w, "group not joined", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, 32)
		clientID := uuid.NewString()
		log.Debug("listener joined", zap.String("group_id", groupID), zap.String("client_id", clientID))

		select {
		case e.Feed.Inbox() <- feed.Join{ClientID: clientID, Outbox: out}:
		case <-e.Feed.Done():
			conn.Close(websocket.StatusGoingAway, "group left")
			return
		case <-r.Context().Done():
			return
		}
		defer func() {
			select {
			case e.Feed.Inbox() <- feed.Leave{ClientID: clientID}:
			default:
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. A closed outbox means the feed dropped us or shut down.
		go func() {
			defer cancel()
			for {
				select {
				case ev, ok := <-out:
					if !ok {
						conn.Close(websocket.StatusGoingAway, "feed closed")
						return
					}
					if err := write(ctx, conn, ev); err != nil {
						return
					}
				case <-e.Feed.Done():
					conn.Close(websocket.StatusGoingAway, "feed closed")
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("listener read ended", zap.String("client_id", clientID), zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: types.EventError, Error: "bad json"})
				continue
			}
			intent, ok := cm.Intent()
			if !ok {
				_ = write(ctx, conn, types.ServerMessage{Type: types.EventError, Error: "unknown type"})
				continue
			}
			if err := e.Session.Request(ctx, intent); err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: types.EventError, Error: err.Error()})
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev types.ServerMessage) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
