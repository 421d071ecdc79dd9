package server

import (
	"carwatch/conversation"
	"carwatch/metrics"
	"carwatch/session"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageBody  = 64 << 10
	maxMessageRunes = 4096
)

type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type replyJSON struct {
	Text    string            `json:"text"`
	Menu    conversation.Menu `json:"menu,omitempty"`
	Buttons [][]string        `json:"buttons,omitempty"`
}

type messageResponse struct {
	Replies []replyJSON `json:"replies"`
}

func toJSON(replies []conversation.Reply) messageResponse {
	out := messageResponse{Replies: make([]replyJSON, len(replies))}
	for i, r := range replies {
		out.Replies[i] = replyJSON{Text: r.Text, Menu: r.Menu, Buttons: conversation.Buttons(r.Menu)}
	}
	return out
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(req.Text) > maxMessageRunes {
		http.Error(w, "Message too long", http.StatusRequestEntityTooLarge)
		return
	}

	// The gateway relays every user from one address, so the budget is per user.
	if !s.limiter.allow(req.UserID) {
		s.logger.Warn("Rate limit exceeded", "user_id", req.UserID, "ip", clientIP(r))
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	replies, err := s.conversation.HandleText(r.Context(), req.UserID, req.Text)
	switch {
	case errors.Is(err, session.ErrBusy):
		s.logger.Info("Message rejected, previous one still in progress", "user_id", req.UserID)
		metrics.MessagesTotal.WithLabelValues("busy").Inc()
		s.writeJSON(w, http.StatusConflict, toJSON([]conversation.Reply{conversation.BusyReply()}))
		return
	case err != nil:
		s.logger.Error("Failed to handle message", "user_id", req.UserID, "error", err)
		metrics.MessagesTotal.WithLabelValues("error").Inc()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.MessagesTotal.WithLabelValues("handled").Inc()
	s.writeJSON(w, http.StatusOK, toJSON(replies))
}
