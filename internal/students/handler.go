package students

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, write ...gin.HandlerFunc) {
	h := &Handler{svc: svc}

	// GET /students?class=&q=&active=
	r.GET("/students", h.List)
	r.GET("/students/:id", h.Get)

	w := r.Group("", write...)
	w.POST("/students", h.Create)
	w.PUT("/students/:id", h.Update)
	w.DELETE("/students/:id", h.Delete)
}

// List godoc
// @Summary  List students ordered by name
// @Tags     students
// @Produce  json
// @Param    class  query string false "class name, SEMUA for all"
// @Param    q      query string false "name search"
// @Param    active query bool   false "active students only"
// @Success  200 {object} ListResponse
// @Router   /students [get]
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		ClassName: c.Query("class"),
		Search:    c.Query("q"),
	}
	if v := c.Query("active"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.ActiveOnly = b
		}
	}
	items, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Total: len(items)})
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Create godoc
// @Summary  Add a student
// @Tags     students
// @Accept   json
// @Produce  json
// @Param    body body CreateStudentRequest true "student"
// @Success  201 {object} Student
// @Failure  409 {object} errDTO "NIS already registered"
// @Router   /students [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "name, nis and class_name are required"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/students/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "name, nis and class_name are required"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== helpers =====

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

func apiErrFrom(err error) errDTO {
	if api, ok := err.(*APIError); ok {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(CodeInternal, err.Error())
}
