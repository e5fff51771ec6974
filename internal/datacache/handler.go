package datacache

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ cache *Cache }

func RegisterRoutes(r gin.IRouter, cache *Cache) {
	h := &Handler{cache: cache}
	r.GET("/snapshot", h.Snapshot)
	r.POST("/sync", h.Sync)
}

// Snapshot godoc
// @Summary  Current cached students, classes and attendance
// @Tags     cache
// @Produce  json
// @Success  200 {object} Snapshot
// @Router   /snapshot [get]
func (h *Handler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Snapshot())
}

// Sync godoc
// @Summary  Reload the cache from the store and return the new snapshot
// @Tags     cache
// @Produce  json
// @Success  200 {object} Snapshot
// @Router   /sync [post]
func (h *Handler) Sync(c *gin.Context) {
	h.cache.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, h.cache.Snapshot())
}
