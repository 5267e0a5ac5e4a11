package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/dispatcher"
)

const submitTimeout = 5 * time.Second

// CrawlStartedMessage is broadcast to dashboard clients when a session is queued.
type CrawlStartedMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type startCrawlResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// startCrawl handles POST /api/start-crawl. The body is optional; an empty
// request runs a full session.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	opts, err := decodeSessionOptions(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate session id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}
	now := s.deps.Clock.Now()
	item := crawler.QueueItem{
		SessionID: sessionID,
		Options:   opts,
		Attempt:   1,
		Submitted: now.Unix(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	if err := s.deps.Sessions.Submit(ctx, item); err != nil {
		if errors.Is(err, dispatcher.ErrUnavailable) {
			s.logger.Warn("crawl rejected", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "crawl queue is full")
			return
		}
		s.logger.Error("enqueue crawl failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}

	s.logger.Info("crawl queued",
		zap.String("session_id", sessionID),
		zap.String("session_type", string(opts.Type)),
	)
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(CrawlStartedMessage{
			Type:      "crawl_started",
			SessionID: sessionID,
			Message:   fmt.Sprintf("%s crawl session queued", opts.Type),
			Timestamp: now,
		})
	}
	writeJSON(w, http.StatusAccepted, startCrawlResponse{
		Status:    "success",
		Message:   "Crawl started",
		SessionID: sessionID,
	})
}

func decodeSessionOptions(body io.Reader) (crawler.SessionOptions, error) {
	var opts crawler.SessionOptions
	if body != nil {
		if err := json.NewDecoder(body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return crawler.SessionOptions{}, errors.New("invalid JSON")
		}
	}
	switch opts.Type {
	case "":
		opts.Type = crawler.SessionFull
	case crawler.SessionFull, crawler.SessionDiscovery, crawler.SessionEnrichment:
	default:
		return crawler.SessionOptions{}, fmt.Errorf("unknown session_type %q", opts.Type)
	}
	return opts, nil
}
