package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, write ...gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.GET("/attendance", h.List)
	r.GET("/attendance/stats", h.Stats)
	r.GET("/attendance/:id", h.Get)

	w := r.Group("", write...)
	w.POST("/attendance", h.Upsert)
	w.POST("/attendance/sheet", h.SaveSheet)
	w.DELETE("/attendance/:id", h.Delete)
}

// List godoc
// @Summary  List attendance records
// @Tags     attendance
// @Produce  json
// @Param    student_id query string false "student id"
// @Param    class      query string false "class name"
// @Param    status     query string false "Hadir | Sakit | Izin | Alfa"
// @Param    on         query string false "exact date (YYYY-MM-DD or today)"
// @Param    from       query string false "from date"
// @Param    to         query string false "to date"
// @Param    limit      query int    false "page size (max 500)"
// @Param    offset     query int    false "offset"
// @Param    sort       query string false "date_desc | date_asc | student_name"
// @Success  200 {object} ListResponse
// @Router   /attendance [get]
func (h *Handler) List(c *gin.Context) {
	var q ListQuery
	if v := c.Query("student_id"); v != "" {
		q.StudentID = &v
	}
	if v := c.Query("class"); v != "" {
		q.ClassName = &v
	}
	if v := c.Query("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, err.Error()))
			return
		}
		q.Status = &st
	}
	if v := c.Query("on"); v != "" {
		q.On = &v
	}
	if v := c.Query("from"); v != "" {
		q.From = &v
	}
	if v := c.Query("to"); v != "" {
		q.To = &v
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "limit must be an integer"))
			return
		}
		q.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "offset must be an integer"))
			return
		}
		q.Offset = n
	}
	q.Sort = c.Query("sort")

	res, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stats godoc
// @Summary  Count records per status in a date range (defaults to this month)
// @Tags     attendance
// @Produce  json
// @Param    from query string false "YYYY-MM-DD"
// @Param    to   query string false "YYYY-MM-DD"
// @Success  200 {object} StatsResponse
// @Router   /attendance/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.Stats(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upsert godoc
// @Summary  Record attendance; an existing (student, date) row is replaced
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    body body UpsertRequest true "records"
// @Success  200 {object} UpsertResponse
// @Failure  400 {object} errDTO
// @Router   /attendance [post]
func (h *Handler) Upsert(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "records are required"))
		return
	}
	res, err := h.svc.Upsert(c.Request.Context(), req.Records)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// SaveSheet godoc
// @Summary  Save one class's attendance for a day; every active student needs a status
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    body body SheetRequest true "sheet"
// @Success  200 {object} UpsertResponse
// @Failure  400 {object} errDTO
// @Router   /attendance/sheet [post]
func (h *Handler) SaveSheet(c *gin.Context) {
	var req SheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "class_name and entries are required"))
		return
	}
	res, err := h.svc.SaveSheet(c.Request.Context(), req)
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
