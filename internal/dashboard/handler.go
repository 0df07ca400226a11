package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/query"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

// RecordData describes a list or task change
type RecordData struct {
	Stage      notify.Stage      `json:"stage"`
	Action     string            `json:"action"` // upsert, remove
	Collection schema.Collection `json:"collection"`
	ParentID   string            `json:"parentId,omitempty"`
	ID         string            `json:"id"`
	PreviousID string            `json:"previousId,omitempty"`
	Item       *schema.Item      `json:"item,omitempty"`
}

// ResyncData names the parent whose cache was reloaded
type ResyncData struct {
	Collection schema.Collection `json:"collection"`
	ParentID   string            `json:"parentId"`
}

// ConnectivityData carries the new oracle state
type ConnectivityData struct {
	Online bool `json:"online"`
}

// StatsData contains store statistics
type StatsData struct {
	Lists   int         `json:"lists"`
	Tasks   query.Stats `json:"tasks"`
	Tags    []string    `json:"tags"`
	Pending int         `json:"pending"`
	Online  bool        `json:"online"`
}

// StatsFunc computes a statistics snapshot.
type StatsFunc func(ctx context.Context) (StatsData, error)

// StoreStats returns a StatsFunc reading the local store.
func StoreStats(db *store.DB, oracle connectivity.Oracle) StatsFunc {
	return func(ctx context.Context) (StatsData, error) {
		st, err := db.StatsContext(ctx)
		if err != nil {
			return StatsData{}, err
		}
		tasks, err := db.Tasks().GetAll(ctx, store.Filter{ActiveOnly: true})
		if err != nil {
			return StatsData{}, err
		}
		return StatsData{
			Lists:   st.Lists,
			Tasks:   query.Summarize(tasks),
			Tags:    query.Tags(tasks),
			Pending: st.Pending,
			Online:  oracle.IsOnline(),
		}, nil
	}
}

// Handler turns engine notifications into dashboard messages.
// It bridges between a notify.Hub subscription and the WebSocket server.
type Handler struct {
	server *Server
	stats  StatsFunc
	logger *slog.Logger
}

// NewHandler creates a handler connected to a dashboard server. stats may be
// nil, in which case no statistics are broadcast.
func NewHandler(server *Server, stats StatsFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		stats:  stats,
		logger: logger.With("component", "dashboard"),
	}
	server.OnConnect(h.statsMessage)
	server.Handle("/api/stats", http.HandlerFunc(h.handleStats))
	return h
}

// Run forwards events until ctx is cancelled or events is closed.
func (h *Handler) Run(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.OnEvent(ctx, ev)
		}
	}
}

// OnEvent broadcasts one event, followed by fresh statistics when the event
// committed a change.
func (h *Handler) OnEvent(ctx context.Context, ev notify.Event) {
	msg, ok := h.format(ev)
	if !ok {
		return
	}
	h.server.Broadcast(msg)

	if ev.Stage == notify.StageCommitted {
		h.broadcastStats(ctx)
	}
}

func (h *Handler) format(ev notify.Event) (Message, bool) {
	var typ MessageType
	var data any

	switch ev.Kind {
	case notify.KindUpsert, notify.KindRemove:
		typ = MessageTypeRecord
		data = RecordData{
			Stage:      ev.Stage,
			Action:     string(ev.Kind),
			Collection: ev.Collection,
			ParentID:   ev.ParentID,
			ID:         ev.ID,
			PreviousID: ev.PreviousID,
			Item:       ev.Item,
		}
	case notify.KindResync:
		typ = MessageTypeResync
		data = ResyncData{Collection: ev.Collection, ParentID: ev.ParentID}
	case notify.KindSync:
		if ev.Result == nil {
			return Message{}, false
		}
		typ = MessageTypeSync
		data = *ev.Result
	case notify.KindConnectivity:
		if ev.Online == nil {
			return Message{}, false
		}
		typ = MessageTypeConnectivity
		data = ConnectivityData{Online: *ev.Online}
	default:
		h.logger.Debug("ignoring event", "kind", ev.Kind)
		return Message{}, false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal event", "kind", ev.Kind, "error", err)
		return Message{}, false
	}
	return Message{Type: typ, Timestamp: ev.Timestamp, Data: raw}, true
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats(ctx context.Context) {
	if msg, ok := h.statsMessage(ctx); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) statsMessage(ctx context.Context) (Message, bool) {
	if h.stats == nil {
		return Message{}, false
	}
	st, err := h.stats(ctx)
	if err != nil {
		h.logger.Warn("failed to compute stats", "error", err)
		return Message{}, false
	}
	raw, err := json.Marshal(st)
	if err != nil {
		h.logger.Error("failed to marshal stats", "error", err)
		return Message{}, false
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: raw}, true
}

// handleStats serves the current statistics as JSON.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "statistics unavailable", http.StatusServiceUnavailable)
		return
	}
	st, err := h.stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}
