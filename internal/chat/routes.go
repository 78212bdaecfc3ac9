// internal/chat/routes.go

package chat

import (
	"github.com/go-chi/chi/v5"

	"github.com/pairlyhq/pairly-backend/internal/auth"
)

// RegisterRoutes mounts the chat API. Everything requires an
// authenticated user, including the websocket upgrade.
func RegisterRoutes(r chi.Router, handler *Handler, authMW *auth.Middleware) {
	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Use(authMW.Authenticate)

		r.Post("/messages/text", handler.SendText)
		r.Post("/messages/image", handler.SendImage)
		r.Post("/messages/voice", handler.SendVoice)
		r.Patch("/messages/{messageID}", handler.EditMessage)
		r.Delete("/messages/{messageID}", handler.DeleteMessage)

		r.Post("/receipts", handler.ReportReceipt)
		r.Post("/messages/read", handler.MarkRead)

		r.Get("/conversations", handler.ListConversations)
		r.Get("/conversations/{conversationID}/messages", handler.ListMessages)

		r.Post("/block/{userID}", handler.BlockUser)
		r.Post("/unblock/{userID}", handler.UnblockUser)

		r.Get("/ws", handler.ServeWS)
	})
}
