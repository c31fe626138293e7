package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/relaygrid/octabot/internal/usecase"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	uc     *usecase.ProjectUsecase
	logger *slog.Logger
}

func NewProjectHandler(uc *usecase.ProjectUsecase, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{uc: uc, logger: logger.With("component", "project_handler")}
}

type createProjectRequest struct {
	Name    string          `json:"name" binding:"required"`
	Code    string          `json:"code" binding:"required"`
	Options json.RawMessage `json:"options"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.uc.CreateProject(c.Request.Context(), usecase.CreateProjectInput{
		Name:    req.Name,
		Code:    req.Code,
		OwnerID: c.GetString("userID"),
		Options: req.Options,
	})
	if err != nil {
		writeError(c, h.logger, "create project", err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.uc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get project", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type updateProjectRequest struct {
	Name    string          `json:"name" binding:"required"`
	Code    string          `json:"code" binding:"required"`
	Options json.RawMessage `json:"options"`
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.uc.UpdateProject(c.Request.Context(), usecase.UpdateProjectInput{
		ID:      c.Param("id"),
		Name:    req.Name,
		Code:    req.Code,
		Options: req.Options,
	})
	if err != nil {
		writeError(c, h.logger, "update project", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.uc.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete project", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) List(c *gin.Context) {
	perPage, _ := strconv.Atoi(c.Query("users_per_page"))

	result, err := h.uc.ListProjects(c.Request.Context(), usecase.ListProjectsInput{
		OwnerID: c.Query("owner_id"),
		Cursor:  c.Query("cursor"),
		Limit:   perPage,
	})
	if err != nil {
		writeError(c, h.logger, "list projects", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projects":    result.Projects,
		"next_cursor": result.NextCursor,
	})
}
