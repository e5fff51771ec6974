package dashboard

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/datacache"
)

type Snapshotter interface {
	Snapshot() datacache.Snapshot
}

type Handler struct {
	src Snapshotter
	loc *time.Location
	now func() time.Time
}

func NewHandler(src Snapshotter, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{src: src, loc: loc, now: time.Now}
}

func RegisterRoutes(r gin.IRouter, h *Handler) {
	r.GET("/dashboard", h.Get)
}

// Get godoc
// @Summary  Dashboard statistics for a day (defaults to today)
// @Tags     dashboard
// @Produce  json
// @Param    date query string false "YYYY-MM-DD"
// @Success  200 {object} Summary
// @Router   /dashboard [get]
func (h *Handler) Get(c *gin.Context) {
	day := h.now().In(h.loc)
	if v := strings.TrimSpace(c.Query("date")); v != "" && v != "today" {
		t, err := time.ParseInLocation(attendance.DateLayout, v, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_ARGUMENT", "message": "date must be YYYY-MM-DD"}})
			return
		}
		day = t
	}
	c.JSON(http.StatusOK, Compute(h.src.Snapshot(), day))
}
