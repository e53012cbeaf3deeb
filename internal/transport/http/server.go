package http

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"pdfchat/internal/bootstrap"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/web"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestLogger(app.Logger.Named("http")),
		gin.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	router.SetHTMLTemplate(web.Templates())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	viewer := middleware.ViewerSession(app.Signer, middleware.CookieConfig{
		Name:   app.Config.Session.CookieName,
		Secure: app.Config.Session.Secure,
	}, app.Logger)

	screenHandler := handler.NewScreenHandler(app.Screens, app.Config.App.Name, app.Logger.Named("screen_http"))
	router.GET("/", viewer, screenHandler.Mount)
	chat := router.Group("/chat")
	chat.Use(viewer)
	chat.GET("", screenHandler.Show)
	chat.POST("/dropdown", screenHandler.ToggleDropdown)
	chat.POST("/select", screenHandler.Select)
	chat.POST("/refresh", screenHandler.Refresh)
	chat.POST("/upload", screenHandler.Upload)
	chat.POST("/question", screenHandler.Question)

	apiHandler := handler.NewScreenAPIHandler(app.Screens, app.Logger.Named("screen_api"))
	v1 := router.Group("/api/v1")
	screenGroup := v1.Group("/screen")
	screenGroup.Use(viewer)
	screenGroup.GET("", apiHandler.Get)
	screenGroup.POST("/mount", apiHandler.Mount)
	screenGroup.POST("/refresh", apiHandler.Refresh)
	screenGroup.POST("/dropdown", apiHandler.ToggleDropdown)
	screenGroup.POST("/select", apiHandler.Select)
	screenGroup.POST("/upload", apiHandler.Upload)
	screenGroup.POST("/questions", apiHandler.SubmitQuestion)

	return router
}
