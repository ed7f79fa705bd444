// Chat turn HTTP handler.
//
// This file exposes the streaming chat endpoint:
//   - POST /chat  (submit a message, reply streamed as Server-Sent Events)
//
// The response is an SSE stream of cumulative "message" events: each event
// carries the full assistant text so far, so a client renders by replacement
// rather than concatenation and a dropped event never corrupts the draft. A
// final "done" event carries the conversation id and completion status.
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ChatRequest is the JSON payload for submitting one chat turn.
type ChatRequest struct {
	// Message is the user's text (1-500 chars after trimming).
	Message string `json:"message" binding:"required" example:"¿Cómo mejoro mi sentadilla?"`
	// ConversationID continues an existing thread when set; a new thread is
	// created from the message when empty.
	ConversationID string `json:"conversation_id,omitempty" format:"uuid"`
}

// ChatDone is the payload of the terminal SSE "done" event.
type ChatDone struct {
	ConversationID string `json:"conversation_id"`
	// Error is true when generation failed and the streamed text is the
	// apology fallback rather than a model reply.
	Error bool `json:"error,omitempty"`
}

// Chat godoc
// @ID          chat
// @Summary     Send a chat message (SSE stream)
// @Description Submits one user message and streams the assistant reply as Server-Sent Events. Each "message" event carries the cumulative text so far; the terminal "done" event carries the conversation id.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ChatRequest  true  "Chat turn payload"
//
// @Success     200  {string} string "SSE stream"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Conversation limit reached"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     429  {object} handlers.ErrorResponse "Hourly chat quota spent"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	conv, stream, err := h.chatSvc.SendMessage(c.Request.Context(), userID(c), req.ConversationID, req.Message)
	if err != nil {
		failService(c, err, ErrCodeChatFailed)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Conversation-ID", conv.ID)

	c.Stream(func(w io.Writer) bool {
		snap, open := <-stream.Snapshots()
		if !open {
			c.SSEvent("done", ChatDone{ConversationID: conv.ID, Error: stream.Failed()})
			return false
		}
		c.SSEvent("message", snap)
		return true
	})
}
