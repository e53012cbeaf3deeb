package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

// ScreenAPIHandler exposes the chat screen operations as JSON.
type ScreenAPIHandler struct {
	screens *app.ScreenService
	log     *zap.Logger
}

type SelectDocumentRequest struct {
	DocumentID int `json:"document_id" binding:"required,gt=0"`
}

type SubmitQuestionRequest struct {
	Question string `json:"question"`
}

type ScreenPayload struct {
	*model.Screen
	SubmitEnabled bool `json:"can_submit"`
}

type QuestionPayload struct {
	Accepted bool          `json:"accepted"`
	Screen   ScreenPayload `json:"screen"`
}

func NewScreenAPIHandler(screens *app.ScreenService, log *zap.Logger) *ScreenAPIHandler {
	return &ScreenAPIHandler{screens: screens, log: log}
}

func newScreenPayload(screen *model.Screen) ScreenPayload {
	return ScreenPayload{Screen: screen, SubmitEnabled: screen.CanSubmit()}
}

// Get returns the screen and hands over any pending notice exactly once.
func (h *ScreenAPIHandler) Get(c *gin.Context) {
	screen, notice, err := h.screens.TakeNotice(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		h.internalError(c, "load screen failed", err)
		return
	}
	screen.Notice = notice
	response.OK(c, newScreenPayload(screen))
}

func (h *ScreenAPIHandler) Mount(c *gin.Context) {
	screen, err := h.screens.Mount(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		h.internalError(c, "mount screen failed", err)
		return
	}
	response.OK(c, newScreenPayload(screen))
}

func (h *ScreenAPIHandler) Refresh(c *gin.Context) {
	screen, err := h.screens.RefreshDocuments(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		h.internalError(c, "refresh documents failed", err)
		return
	}
	response.OK(c, newScreenPayload(screen))
}

func (h *ScreenAPIHandler) ToggleDropdown(c *gin.Context) {
	screen, err := h.screens.ToggleDropdown(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		h.internalError(c, "toggle dropdown failed", err)
		return
	}
	response.OK(c, newScreenPayload(screen))
}

func (h *ScreenAPIHandler) Select(c *gin.Context) {
	var req SelectDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	screen, err := h.screens.SelectDocument(c.Request.Context(), middleware.ViewerID(c), req.DocumentID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			h.internalError(c, "select document failed", err)
		}
		return
	}
	response.OK(c, newScreenPayload(screen))
}

// Upload forwards multipart field "file". The outcome is reported through
// the screen notice, as for the HTML screen.
func (h *ScreenAPIHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		h.internalError(c, "read uploaded file failed", err)
		return
	}
	defer f.Close()

	viewerID := middleware.ViewerID(c)
	if _, err := h.screens.Upload(c.Request.Context(), viewerID, fileHeader.Filename, f); err != nil {
		h.internalError(c, "upload failed", err)
		return
	}
	screen, notice, err := h.screens.TakeNotice(c.Request.Context(), viewerID)
	if err != nil {
		h.internalError(c, "load screen failed", err)
		return
	}
	screen.Notice = notice
	response.OK(c, newScreenPayload(screen))
}

func (h *ScreenAPIHandler) SubmitQuestion(c *gin.Context) {
	var req SubmitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	viewerID := middleware.ViewerID(c)
	pending, err := h.screens.SubmitQuestion(c.Request.Context(), viewerID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAnswerPending):
			response.Error(c, http.StatusConflict, response.CodeAnswerPending, err.Error())
		default:
			h.internalError(c, "submit question failed", err)
		}
		return
	}

	screen, err := h.screens.Screen(c.Request.Context(), viewerID)
	if err != nil {
		h.internalError(c, "load screen failed", err)
		return
	}
	if pending == nil {
		response.OK(c, QuestionPayload{Accepted: false, Screen: newScreenPayload(screen)})
		return
	}
	awaitInBackground(context.WithoutCancel(c.Request.Context()), pending, h.log)
	response.Accepted(c, QuestionPayload{Accepted: true, Screen: newScreenPayload(screen)})
}

func (h *ScreenAPIHandler) internalError(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.String("viewer_id", middleware.ViewerID(c)), zap.Error(err))
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, msg)
}
