package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/middleware"
)

const chatPath = "/chat"

// ScreenHandler serves the chat screen as server-rendered HTML. Every
// action posts a form and redirects back to the screen.
type ScreenHandler struct {
	screens *app.ScreenService
	appName string
	log     *zap.Logger
}

type chatView struct {
	AppName string
	Screen  *model.Screen
	Notice  string
}

func NewScreenHandler(screens *app.ScreenService, appName string, log *zap.Logger) *ScreenHandler {
	return &ScreenHandler{screens: screens, appName: appName, log: log}
}

// Mount is a page load: the viewer starts over with an empty transcript.
func (h *ScreenHandler) Mount(c *gin.Context) {
	if _, err := h.screens.Mount(c.Request.Context(), middleware.ViewerID(c)); err != nil {
		h.fail(c, "mount screen failed", err)
		return
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

func (h *ScreenHandler) Show(c *gin.Context) {
	screen, notice, err := h.screens.TakeNotice(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		h.fail(c, "load screen failed", err)
		return
	}
	c.HTML(http.StatusOK, "chat.html", chatView{
		AppName: h.appName,
		Screen:  screen,
		Notice:  notice,
	})
}

func (h *ScreenHandler) ToggleDropdown(c *gin.Context) {
	if _, err := h.screens.ToggleDropdown(c.Request.Context(), middleware.ViewerID(c)); err != nil {
		h.fail(c, "toggle dropdown failed", err)
		return
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

func (h *ScreenHandler) Select(c *gin.Context) {
	documentID, err := strconv.Atoi(c.PostForm("document_id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, chatPath)
		return
	}
	if _, err := h.screens.SelectDocument(c.Request.Context(), middleware.ViewerID(c), documentID); err != nil {
		if !errors.Is(err, model.ErrDocumentNotFound) {
			h.fail(c, "select document failed", err)
			return
		}
		h.log.Warn("select unknown document", zap.Int("document_id", documentID))
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

func (h *ScreenHandler) Refresh(c *gin.Context) {
	if _, err := h.screens.RefreshDocuments(c.Request.Context(), middleware.ViewerID(c)); err != nil {
		h.fail(c, "refresh documents failed", err)
		return
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

// Upload forwards the picked file. Submitting the form without a file does nothing.
func (h *ScreenHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Redirect(http.StatusSeeOther, chatPath)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		h.fail(c, "read uploaded file failed", err)
		return
	}
	defer f.Close()

	if _, err := h.screens.Upload(c.Request.Context(), middleware.ViewerID(c), fileHeader.Filename, f); err != nil {
		h.fail(c, "upload failed", err)
		return
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

// Question records the question and lets the answer arrive in the
// background; the page polls while the typing indicator is shown.
func (h *ScreenHandler) Question(c *gin.Context) {
	pending, err := h.screens.SubmitQuestion(c.Request.Context(), middleware.ViewerID(c), c.PostForm("question"))
	if err != nil && !errors.Is(err, app.ErrAnswerPending) {
		h.fail(c, "submit question failed", err)
		return
	}
	if pending != nil {
		awaitInBackground(context.WithoutCancel(c.Request.Context()), pending, h.log)
	}
	c.Redirect(http.StatusSeeOther, chatPath)
}

func (h *ScreenHandler) fail(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.String("viewer_id", middleware.ViewerID(c)), zap.Error(err))
	c.String(http.StatusInternalServerError, "something went wrong, please reload the page")
}

func awaitInBackground(ctx context.Context, pending *app.PendingAnswer, log *zap.Logger) {
	go func() {
		if _, err := pending.Await(ctx); err != nil {
			log.Error("settle answer failed", zap.Error(err))
		}
	}()
}
