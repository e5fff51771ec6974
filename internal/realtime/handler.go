package realtime

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	hub *Hub
}

func RegisterRoutes(r gin.IRouter, hub *Hub) {
	h := &Handler{hub: hub}
	r.GET("/realtime", h.Connect)
}

// Connect godoc
// @Summary  Websocket stream: snapshot:init once, then db:change per write
// @Tags     realtime
// @Router   /realtime [get]
func (h *Handler) Connect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WARN] realtime: upgrade: %v", err)
		return
	}

	client := NewClient(h.hub, conn)
	// snapshot:init は hub が登録時に積む
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	log.Printf("[INFO] realtime: client %s connected", client.ID)

	go client.WritePump()
	go client.ReadPump()
}
