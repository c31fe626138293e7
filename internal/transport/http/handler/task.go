package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/relaygrid/octabot/internal/usecase"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	uc     *usecase.TaskUsecase
	logger *slog.Logger
}

func NewTaskHandler(uc *usecase.TaskUsecase, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{uc: uc, logger: logger.With("component", "task_handler")}
}

type createTaskRequest struct {
	Name      string          `json:"name" binding:"required"`
	Type      string          `json:"type" binding:"required"`
	Schedule  *string         `json:"schedule"`
	ProjectID string          `json:"project_id" binding:"required"`
	StartAt   time.Time       `json:"start_at" binding:"required"`
	Options   json.RawMessage `json:"options"`
}

// POST /api/tasks runs the next-run calculator's input variant against
// the caller-supplied start_at before persisting, per §4.3/§6.
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.uc.CreateTask(c.Request.Context(), usecase.CreateTaskInput{
		Name:      req.Name,
		Type:      req.Type,
		Schedule:  req.Schedule,
		ProjectID: req.ProjectID,
		StartAt:   req.StartAt,
		Options:   req.Options,
	})
	if err != nil {
		writeError(c, h.logger, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.uc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	Name     string          `json:"name" binding:"required"`
	Schedule *string         `json:"schedule"`
	StartAt  time.Time       `json:"start_at" binding:"required"`
	Options  json.RawMessage `json:"options"`
}

func (h *TaskHandler) Update(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.uc.UpdateTask(c.Request.Context(), usecase.UpdateTaskInput{
		ID:       c.Param("id"),
		Name:     req.Name,
		Schedule: req.Schedule,
		StartAt:  req.StartAt,
		Options:  req.Options,
	})
	if err != nil {
		writeError(c, h.logger, "update task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.uc.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete task", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) List(c *gin.Context) {
	perPage, _ := strconv.Atoi(c.Query("users_per_page"))

	result, err := h.uc.ListTasks(c.Request.Context(), usecase.ListTasksInput{
		ProjectID: c.Query("project_id"),
		Cursor:    c.Query("cursor"),
		Limit:     perPage,
	})
	if err != nil {
		writeError(c, h.logger, "list tasks", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":       result.Tasks,
		"next_cursor": result.NextCursor,
	})
}
