package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"orgrag/internal/bootstrap"
	"orgrag/internal/pkg/jwtutil"
	"orgrag/internal/transport/http/handler"
	"orgrag/internal/transport/http/middleware"
)

const healthOrganizationID = "00000000-0000-0000-0000-000000000000"

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", newHealthHandler(app).Check)
	if app.Metrics != nil {
		path := app.Config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(app.Metrics.Handler()))
	}

	maxUpload := int64(app.Config.App.MaxUploadMB) << 20
	router.MaxMultipartMemory = maxUpload

	authHandler := handler.NewAuthHandler()
	documentHandler := handler.NewDocumentHandler(app.RAG, maxUpload)
	askHandler := handler.NewAskHandler(app.RAG)
	orgHandler := handler.NewOrganizationHandler(app.Organizations)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	v1.GET("/me", authHandler.Me)
	v1.POST("/ask", askHandler.Ask)

	docs := v1.Group("/documents")
	docs.GET("", documentHandler.List)
	docs.GET("/:id", documentHandler.Get)
	docs.POST("", middleware.RequireAdmin(), documentHandler.Upload)
	docs.POST("/text", middleware.RequireAdmin(), documentHandler.CreateText)
	docs.DELETE("/:id", middleware.RequireAdmin(), documentHandler.Delete)

	orgs := v1.Group("/organizations")
	orgs.Use(middleware.RequireRole(jwtutil.RoleSuperAdmin))
	orgs.POST("", orgHandler.Create)
	orgs.GET("", orgHandler.List)
	orgs.PATCH("/:id", orgHandler.Update)

	return router
}

// newHealthHandler registers a probe for every dependency the app was built with.
func newHealthHandler(app *bootstrap.App) *handler.HealthHandler {
	h := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt)

	if app.DB != nil {
		h.Register("database", func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if app.Redis != nil {
		h.Register("redis", func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		})
	}
	if app.MQConn != nil {
		h.Register("rabbitmq", func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		})
	}
	if app.Guard != nil && app.Embedder != nil && app.Embedder.Dimensions() > 0 {
		probe := make([]float32, app.Embedder.Dimensions())
		probe[0] = 1
		h.Register("vector_store", func(ctx context.Context) error {
			// An organization that never has chunks: the search only proves the backend answers.
			_, err := app.Guard.Search(ctx, healthOrganizationID, probe, 1)
			return err
		})
	}
	if app.Postgres != nil {
		h.Register("postgres", func(ctx context.Context) error {
			return app.Postgres.PingContext(ctx)
		})
	}
	return h
}
