// internal/chat/handlers.go

package chat

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/internal/auth"
	"github.com/pairlyhq/pairly-backend/internal/common/utils"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

const maxMultipartMemory = 32 << 20

type Handler struct {
	service  Service
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewHandler(service Service, hub *Hub, log *zap.SugaredLogger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) SendText(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.service.SendTextMessage(r.Context(), userID, &req)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, msg, http.StatusCreated)
}

func (h *Handler) SendImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	req := SendImageRequest{
		ConversationID: r.FormValue("conversation_id"),
		ToUserID:       r.FormValue("to_user_id"),
		Caption:        r.FormValue("caption"),
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	file, cleanup, err := h.openUpload(r, "image")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	defer cleanup()

	msg, err := h.service.SendImageMessage(r.Context(), userID, &req, file)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, msg, http.StatusCreated)
}

func (h *Handler) SendVoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	duration, _ := strconv.Atoi(r.FormValue("duration_seconds"))
	req := SendVoiceRequest{
		ConversationID:  r.FormValue("conversation_id"),
		ToUserID:        r.FormValue("to_user_id"),
		DurationSeconds: duration,
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	file, cleanup, err := h.openUpload(r, "voice")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	defer cleanup()

	msg, err := h.service.SendVoiceMessage(r.Context(), userID, &req, file)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, msg, http.StatusCreated)
}

// openUpload extracts the named multipart file and prepares the head
// slice used for signature sniffing, rewinding the reader afterwards.
func (h *Handler) openUpload(r *http.Request, field string) (*MediaFile, func(), error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, nil, apperrors.New(apperrors.CodeInvalidIdentifier, "invalid multipart form")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.CodeInvalidIdentifier, "missing file field "+field)
	}

	head, err := readHead(file)
	if err != nil {
		file.Close()
		return nil, nil, apperrors.Internal("failed to read upload", err)
	}

	return &MediaFile{
		Reader:   file,
		Size:     header.Size,
		Mime:     header.Header.Get("Content-Type"),
		Filename: header.Filename,
		Head:     head,
	}, func() { file.Close() }, nil
}

func readHead(file multipart.File) ([]byte, error) {
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		return nil, err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, err
	}
	return head[:n], nil
}

func (h *Handler) ReportReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := h.service.ReportDeliveryReceipt(r.Context(), userID, &req)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, receipt, http.StatusOK)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkMessagesRead(r.Context(), userID, &req); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, map[string]bool{"marked": true}, http.StatusOK)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	conversations, err := h.service.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, conversations, http.StatusOK)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "before must be RFC3339", http.StatusBadRequest)
			return
		}
		before = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.service.ListMessages(r.Context(), userID, conversationID, before, limit)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, page, http.StatusOK)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid message id", http.StatusBadRequest)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.service.EditMessage(r.Context(), userID, messageID, &req)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, msg, http.StatusOK)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		utils.ErrorResponse(w, apperrors.CodeInvalidIdentifier, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteMessage(r.Context(), userID, messageID); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, map[string]bool{"deleted": true}, http.StatusOK)
}

func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.BlockUser(r.Context(), userID, chi.URLParam(r, "userID")); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, map[string]bool{"blocked": true}, http.StatusOK)
}

func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.UnblockUser(r.Context(), userID, chi.URLParam(r, "userID")); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}

	utils.SuccessResponse(w, map[string]bool{"unblocked": true}, http.StatusOK)
}

// ServeWS upgrades the connection and hands it to the hub. The auth
// middleware has already established the user.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, apperrors.CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := NewClient(h.hub, conn, userID, h.service, h.log)
	h.hub.Register(client)
	client.Start()
}
