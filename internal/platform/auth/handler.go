package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
)

type errDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errDTO {
	var e errDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, err.Error()))
	case errors.Is(err, ErrBadCredential), errors.Is(err, ErrDisabled):
		c.JSON(http.StatusUnauthorized, apiErr(CodeUnauthenticated, "IDまたはパスワードが間違っています"))
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, apiErr(CodeNotFound, "account not found"))
	case errors.Is(err, ErrAlreadyExists):
		c.JSON(http.StatusConflict, apiErr(CodeConflict, "ID already exists"))
	default:
		log.Printf("[ERROR] auth: %v", err)
		c.JSON(http.StatusInternalServerError, apiErr(CodeInternal, "internal error"))
	}
}

type AuthHandler struct{ svc *Service }

// RegisterRoutes: login は公開、アカウント管理は admin のみ
func RegisterRoutes(r gin.IRouter, svc *Service) {
	h := &AuthHandler{svc: svc}
	r.POST("/login", h.Login)

	admin := r.Group("", RequireAuth(svc.Secret()), RequireRole(RoleAdmin))
	admin.POST("/register", h.Register)
	admin.GET("/accounts", h.ListAccounts)
	admin.DELETE("/accounts/:id", h.DeleteAccount)
	admin.PATCH("/accounts/:id", h.ChangeUsername)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary  Operator login
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body LoginRequest true "credentials"
// @Success  200 {object} map[string]string
// @Failure  401 {object} errDTO
// @Router   /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid request"))
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "message": "Login successful"})
}

type RegisterRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"` // 未指定なら operator
}

// Register godoc
// @Summary  Create an operator account (admin)
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body RegisterRequest true "account"
// @Success  201 {object} map[string]string
// @Failure  409 {object} errDTO
// @Security BearerAuth
// @Router   /register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid request"))
		return
	}
	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password, req.Role); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

// ListAccounts godoc
// @Summary  List operator accounts (admin)
// @Tags     auth
// @Produce  json
// @Success  200 {array} Account
// @Security BearerAuth
// @Router   /accounts [get]
func (h *AuthHandler) ListAccounts(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteAccount godoc
// @Summary  Delete an operator account (admin)
// @Tags     auth
// @Param    id path string true "account id"
// @Success  200 {object} map[string]string
// @Failure  404 {object} errDTO
// @Security BearerAuth
// @Router   /accounts/{id} [delete]
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if id == c.GetString(CtxUserIDKey) {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "cannot delete the signed-in account"))
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type ChangeUsernameRequest struct {
	NewID string `json:"new_id" binding:"required"`
}

// ChangeUsername godoc
// @Summary  Rename an operator account (admin)
// @Tags     auth
// @Accept   json
// @Param    id   path string                true "account id"
// @Param    body body ChangeUsernameRequest true "new id"
// @Success  200 {object} map[string]string
// @Security BearerAuth
// @Router   /accounts/{id} [patch]
func (h *AuthHandler) ChangeUsername(c *gin.Context) {
	var req ChangeUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid request"))
		return
	}
	if err := h.svc.ChangeID(c.Request.Context(), c.Param("id"), req.NewID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "username changed"})
}
