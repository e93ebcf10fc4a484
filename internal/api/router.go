// Package api serves the local HTTP API over the synchronized mailbox.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/auth"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	AuthHandler          *AuthHandler
	ConversationsHandler *ConversationsHandler
	MessagesHandler      *MessagesHandler
	SearchHandler        *SearchHandler
	SyncHandler          *SyncHandler
	WebSocketHandler     *WebSocketHandler
	APIToken             string
	Log                  zerolog.Logger
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/", handleRoot)

	// The provider redirects the browser here, so it can't carry the API token.
	r.Get("/api/v1/auth/callback", deps.AuthHandler.Callback)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(deps.APIToken, deps.Log))

		r.Get("/api/v1/auth/status", deps.AuthHandler.GetAuthStatus)
		r.Get("/api/v1/auth/login", deps.AuthHandler.Login)
		r.Post("/api/v1/auth/logout", deps.AuthHandler.Logout)

		r.Get("/api/v1/conversations", deps.ConversationsHandler.GetConversations)
		r.Get("/api/v1/conversations/{conversationID}", deps.ConversationsHandler.GetConversation)
		r.Post("/api/v1/conversations/{conversationID}/read", deps.ConversationsHandler.MarkRead)

		r.Post("/api/v1/messages", deps.MessagesHandler.Send)
		r.Get("/api/v1/messages/{messageID}/attachments/{attachmentID}", deps.MessagesHandler.GetAttachment)

		r.Get("/api/v1/search", deps.SearchHandler.Search)

		r.Post("/api/v1/sync", deps.SyncHandler.Trigger)
		r.Get("/api/v1/sync/status", deps.SyncHandler.GetStatus)

		r.Get("/api/v1/ws", deps.WebSocketHandler.Handle)
	})

	return r
}

// requestLogger logs one line per request once it completes.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "vchat API is running")
}
