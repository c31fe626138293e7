package httptransport

import (
	"log/slog"

	"github.com/relaygrid/octabot/internal/transport/http/handler"
	"github.com/relaygrid/octabot/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Project *handler.ProjectHandler
	Task    *handler.TaskHandler
}

func NewRouter(logger *slog.Logger, h Handlers, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	api.POST("/users/login", h.Auth.Login)
	api.POST("/users/logout", h.Auth.Logout)

	auth := api.Group("", middleware.Auth(jwtKey))

	auth.GET("/users/me", h.Auth.Me)

	auth.GET("/users", h.User.List)
	auth.POST("/users", h.User.Create)
	auth.GET("/users/:id", h.User.Get)
	auth.PUT("/users/:id", h.User.Update)
	auth.DELETE("/users/:id", h.User.Delete)

	auth.GET("/projects", h.Project.List)
	auth.POST("/projects", h.Project.Create)
	auth.GET("/projects/:id", h.Project.Get)
	auth.PUT("/projects/:id", h.Project.Update)
	auth.DELETE("/projects/:id", h.Project.Delete)

	auth.GET("/tasks", h.Task.List)
	auth.POST("/tasks", h.Task.Create)
	auth.GET("/tasks/:id", h.Task.Get)
	auth.PUT("/tasks/:id", h.Task.Update)
	auth.DELETE("/tasks/:id", h.Task.Delete)

	return r
}
