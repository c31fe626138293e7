package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/usecase"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	uc     *usecase.UserUsecase
	logger *slog.Logger
}

func NewUserHandler(uc *usecase.UserUsecase, logger *slog.Logger) *UserHandler {
	return &UserHandler{uc: uc, logger: logger.With("component", "user_handler")}
}

type createUserRequest struct {
	Username string      `json:"username" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     domain.Role `json:"role"`
	Email    *string     `json:"email" binding:"omitempty,email"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.uc.CreateUser(c.Request.Context(), usecase.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Email:    req.Email,
	})
	if err != nil {
		writeError(c, h.logger, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.uc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Username string      `json:"username" binding:"required"`
	Role     domain.Role `json:"role"`
	Email    *string     `json:"email" binding:"omitempty,email"`
	Password *string     `json:"password"`
}

func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.uc.UpdateUser(c.Request.Context(), usecase.UpdateUserInput{
		ID:       c.Param("id"),
		Username: req.Username,
		Role:     req.Role,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, "update user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.uc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete user", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List pages by cursor: ?cursor= takes the next_cursor of the previous
// response and ?users_per_page= sets the page size. A ?page= number is
// not read.
func (h *UserHandler) List(c *gin.Context) {
	perPage, _ := strconv.Atoi(c.Query("users_per_page"))

	result, err := h.uc.ListUsers(c.Request.Context(), usecase.ListUsersInput{
		Cursor: c.Query("cursor"),
		Limit:  perPage,
	})
	if err != nil {
		writeError(c, h.logger, "list users", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":       result.Users,
		"next_cursor": result.NextCursor,
	})
}
