package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"coinrush/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type OpenSessionRequest struct {
	DisplayName string `json:"displayName" binding:"max=32"`
}

// OpenSession hands out a fresh participant id and its token. There are no
// accounts; every session is a new participant.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	// an empty body is a nameless guest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, uid, err := h.sessions.Issue(strings.TrimSpace(req.DisplayName))
	if err != nil {
		respondError(c, err)
		return
	}

	log.Info().Str("uid", uid).Msg("session opened")
	c.JSON(http.StatusOK, gin.H{"token": token, "uid": uid})
}

func (h *SessionHandler) Whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uid": c.GetString("uid")})
}
