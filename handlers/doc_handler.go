package handlers

import (
	"net/http"

	"coinrush/services"
	"coinrush/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type DocHandler struct {
	gateway  *services.GatewayService
	hub      *services.Hub
	upgrader websocket.Upgrader
}

func NewDocHandler(gateway *services.GatewayService, hub *services.Hub, upgrader websocket.Upgrader) *DocHandler {
	return &DocHandler{
		gateway:  gateway,
		hub:      hub,
		upgrader: upgrader,
	}
}

func (h *DocHandler) CreateDocument(c *gin.Context) {
	var doc store.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collection, id := c.Param("collection"), c.Param("id")
	if err := h.gateway.CreateDocument(c.Request.Context(), collection, id, doc); err != nil {
		respondError(c, err)
		return
	}

	log.Debug().Str("collection", collection).Str("id", id).Str("uid", c.GetString("uid")).Msg("document created")
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *DocHandler) GetDocument(c *gin.Context) {
	doc, err := h.gateway.ReadDocument(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocHandler) PatchDocument(c *gin.Context) {
	var fields store.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.gateway.WriteDocument(c.Request.Context(), c.Param("collection"), c.Param("id"), fields); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// WatchDocument upgrades to a websocket that streams snapshots of one document.
func (h *DocHandler) WatchDocument(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	// Only existing documents can be watched.
	if _, err := h.gateway.ReadDocument(c.Request.Context(), collection, id); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("websocket upgrade failed")
		return
	}

	h.hub.RegisterClient(conn, collection, id, c.GetString("uid"))
}

func (h *DocHandler) RoomResults(c *gin.Context) {
	rounds, err := h.gateway.RoomResults(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": services.NormalizeRoomCode(c.Param("id")), "rounds": rounds})
}
