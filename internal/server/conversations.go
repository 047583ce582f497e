package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/internal/assist"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *AssistServer) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, bindError(err))
			return
		}
	}
	conv, err := s.chat.CreateConversation(c.Request.Context(), userID(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *AssistServer) ListConversations(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	list, err := s.chat.ListConversations(c.Request.Context(), userID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list, "total": len(list), "limit": limit, "offset": offset})
}

func (s *AssistServer) GetConversation(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	detail, err := s.chat.Conversation(c.Request.Context(), userID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *AssistServer) DeleteConversation(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.chat.DeleteConversation(c.Request.Context(), userID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *AssistServer) SendMessage(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	var req assist.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	res, err := s.chat.Send(c.Request.Context(), userID(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// StreamMessage relays the reply as server-sent events. The reply is stored
// only when the stream finishes.
func (s *AssistServer) StreamMessage(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	var req assist.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	ch, err := s.chat.SendStream(c.Request.Context(), userID(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	relaySSE(c, ch, s.logger)
}
