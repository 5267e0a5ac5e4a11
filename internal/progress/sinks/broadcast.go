package sinks

import (
	"context"
	"time"

	"github.com/osvhub/osv-discovery/internal/progress"
)

// Broadcaster delivers a JSON-encodable message to every dashboard client.
type Broadcaster interface {
	Broadcast(msg any)
}

// ProgressMessage is the "progress" WebSocket frame.
type ProgressMessage struct {
	Type      string            `json:"type"`
	Stage     string            `json:"stage"`
	SessionID string            `json:"session_id"`
	Phase     string            `json:"phase,omitempty"`
	Company   string            `json:"company,omitempty"`
	Vessel    string            `json:"vessel,omitempty"`
	Message   string            `json:"message,omitempty"`
	Counters  progress.Counters `json:"counters"`
	Timestamp time.Time         `json:"timestamp"`
}

// PhaseProgressMessage is the "discovery_progress" WebSocket frame.
type PhaseProgressMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// BroadcastSink forwards session milestones to dashboard clients. Source
// results stay server side.
type BroadcastSink struct {
	out Broadcaster
}

// NewBroadcastSink wraps out.
func NewBroadcastSink(out Broadcaster) *BroadcastSink {
	return &BroadcastSink{out: out}
}

// Consume broadcasts one message per milestone event.
func (s *BroadcastSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.out == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage == progress.StageSourceResult {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if evt.Stage == progress.StagePhaseProgress {
			s.out.Broadcast(PhaseProgressMessage{
				Type:      "discovery_progress",
				SessionID: evt.SessionID,
				Phase:     evt.Phase,
				Current:   evt.Current,
				Total:     evt.Total,
			})
			continue
		}
		s.out.Broadcast(ProgressMessage{
			Type:      "progress",
			Stage:     string(evt.Stage),
			SessionID: evt.SessionID,
			Phase:     evt.Phase,
			Company:   evt.Company,
			Vessel:    evt.Vessel,
			Message:   evt.Note,
			Counters:  evt.Counters,
			Timestamp: evt.TS.UTC(),
		})
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *BroadcastSink) Close(context.Context) error {
	return nil
}
