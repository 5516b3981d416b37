package api

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/works"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait       = 10 * time.Second
	inboxStreamSize = 20
)

// stream upgrades the request and writes every value of the channel opened
// by open as a JSON message. The stream ends when the channel closes or the
// client goes away.
func stream[T any](s *Server, w http.ResponseWriter, r *http.Request, open func(ctx context.Context) (<-chan T, error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	values, err := open(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Incoming messages are ignored; reading notices the client leaving.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(keepAlivePingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-values:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) streamPost(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	postID := chi.URLParam(r, "postID")

	post, err := s.Posts.Get(r.Context(), viewer, postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Priming gives the stream a current first message.
	if _, err := s.views(r.Context(), viewer, []*domain.Post{post}); err != nil {
		writeError(w, r, err)
		return
	}
	engine := s.Works.For(viewer)
	stream(s, w, r, func(ctx context.Context) (<-chan works.State, error) {
		states, err := engine.Watch(ctx, postID)
		if err != nil {
			return nil, err
		}
		out := make(chan works.State, 1)
		if state, ok := engine.State(postID); ok {
			out <- state
		}
		go func() {
			defer close(out)
			for state := range states {
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	})
}

func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	me := identity.FromContext(r.Context())
	if !me.Authenticated() {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	stream(s, w, r, func(ctx context.Context) (<-chan notify.Snapshot, error) {
		return s.Inbox.Watch(ctx, me.UserID, inboxStreamSize)
	})
}
