package api

import (
	"net/http"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/comments"
	"github.com/UkralStul/crewfeed-service/internal/crew"
	"github.com/UkralStul/crewfeed-service/internal/dataloader"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/posts"
	"github.com/UkralStul/crewfeed-service/internal/prefs"
	"github.com/UkralStul/crewfeed-service/internal/profiles"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/upload"
	"github.com/UkralStul/crewfeed-service/internal/works"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const keepAlivePingInterval = 10 * time.Second

// Server is the root of the HTTP layer. It holds every service the handlers
// need.
type Server struct {
	Store    storage.Storage
	Verifier *identity.Verifier
	Posts    *posts.Service
	Works    *works.Registry
	Comments *comments.Service
	Threads  *comments.Registry
	Crew     *crew.Service
	Profiles *profiles.Service
	Inbox    *notify.Inbox
	Prefs    *prefs.Store

	CommentPageSize int
	ReplyPageSize   int
	// UploadDir is served under /uploads when set.
	UploadDir string

	upgrader websocket.Upgrader
}

// Options sizes the comment pages and the per-user session state.
type Options struct {
	CommentPageSize int
	ReplyPageSize   int
	SessionIdle     time.Duration
}

func DefaultOptions() Options {
	return Options{CommentPageSize: 10, ReplyPageSize: 5, SessionIdle: works.DefaultIdleTimeout}
}

// New wires every service over one store.
func New(store storage.Storage, uploader upload.Uploader, verifier *identity.Verifier, preferences *prefs.Store, opts Options) (*Server, error) {
	profileSvc, err := profiles.NewService(store)
	if err != nil {
		return nil, err
	}
	emitter := notify.NewEmitter(store)
	commentSvc := comments.NewService(store, emitter, profileSvc)

	return &Server{
		Store:           store,
		Verifier:        verifier,
		Posts:           posts.NewService(store, uploader, profileSvc),
		Works:           works.NewRegistry(store, emitter, profileSvc, opts.SessionIdle),
		Comments:        commentSvc,
		Threads:         comments.NewRegistry(commentSvc, opts.CommentPageSize, opts.ReplyPageSize, opts.SessionIdle),
		Crew:            crew.NewService(store, emitter, profileSvc),
		Profiles:        profileSvc,
		Inbox:           notify.NewInbox(store),
		Prefs:           preferences,
		CommentPageSize: opts.CommentPageSize,
		ReplyPageSize:   opts.ReplyPageSize,
	}, nil
}

// EvictSessions drops work engines and comment threads nobody has used
// within the idle timeout.
func (s *Server) EvictSessions() {
	engines := s.Works.Evict()
	threads := s.Threads.Evict()
	if engines+threads > 0 {
		log.Info().Int("engines", engines).Int("threads", threads).Msg("Evicted idle sessions.")
	}
}

func (s *Server) Router() http.Handler {
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.Verifier.Middleware)
	router.Use(dataloader.Middleware(s.Store))

	router.Route("/posts", func(r chi.Router) {
		r.Get("/", s.listPosts)
		r.Post("/", s.createPost)
		r.Route("/{postID}", func(r chi.Router) {
			r.Use(s.visiblePost)
			r.Get("/", s.getPost)
			r.Post("/works", s.toggleWork)
			r.Get("/thread", s.getThread)
			r.Post("/thread/more", s.loadMoreThread)
			r.Delete("/thread", s.collapseThread)
			r.Get("/thread/replies/{commentID}", s.getReplies)
			r.Post("/thread/replies/{commentID}/more", s.loadMoreReplies)
			r.Delete("/thread/replies/{commentID}", s.collapseReplies)
			r.Get("/comments", s.listComments)
			r.Post("/comments", s.addComment)
			r.Get("/comments/{commentID}/replies", s.listReplies)
			r.Post("/comments/{commentID}/replies", s.addReply)
		})
	})

	router.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", s.getUser)
		r.Put("/follow", s.setFollowing)
		r.Get("/crew", s.listCrew)
		r.Get("/followers", s.listFollowers)
	})

	router.Route("/me", func(r chi.Router) {
		r.Put("/profile", s.putProfile)
		r.Delete("/followers/{userID}", s.removeFollower)
		r.Get("/suggestions", s.suggestions)
		r.Get("/notifications", s.listNotifications)
		r.Delete("/notifications", s.clearNotifications)
		r.Post("/notifications/read", s.readAllNotifications)
		r.Post("/notifications/{notificationID}/read", s.readNotification)
		r.Delete("/notifications/{notificationID}", s.deleteNotification)
		r.Get("/preferences", s.getPreferences)
		r.Put("/preferences", s.putPreferences)
	})

	router.Get("/ws/posts/{postID}", s.streamPost)
	router.Get("/ws/notifications", s.streamNotifications)

	if s.UploadDir != "" {
		router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.UploadDir))))
	}
	return router
}
