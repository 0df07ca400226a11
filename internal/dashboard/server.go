// Package dashboard provides a real-time WebSocket feed of sync activity.
//
// The dashboard broadcasts record changes, cache reloads, sweep results and
// connectivity transitions to connected WebSocket clients, so a second
// screen can watch the engine converge.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeRecord indicates a list or task was upserted or removed
	MessageTypeRecord MessageType = "record"

	// MessageTypeResync indicates a parent's cache was reloaded
	MessageTypeResync MessageType = "resync"

	// MessageTypeSync indicates a sweep completed
	MessageTypeSync MessageType = "sync"

	// MessageTypeConnectivity indicates the oracle changed state
	MessageTypeConnectivity MessageType = "connectivity"

	// MessageTypeStats carries a statistics snapshot
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server fans dashboard messages out to WebSocket subscribers. Every
// subscriber has its own send queue and writer goroutine; a subscriber whose
// queue overflows is disconnected rather than allowed to stall the others.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	routes   map[string]http.Handler

	mu      sync.Mutex
	clients map[*client]struct{}
	welcome func(ctx context.Context) (Message, bool)

	queue     chan Message
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// ClientQueue is the number of messages buffered per subscriber (default: 64)
	ClientQueue int

	// Logger for server activity (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		ClientQueue: 64,
		Logger:      slog.Default(),
	}
}

// NewServer creates a dashboard server. Nothing listens until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := config.ClientQueue
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		routes:    make(map[string]http.Handler),
		clients:   make(map[*client]struct{}),
		queue:     make(chan Message, 128),
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "dashboard"),
	}
}

// OnConnect sets the function that builds the first message a subscriber
// receives. Returning false sends an empty stats message instead.
func (s *Server) OnConnect(fn func(ctx context.Context) (Message, bool)) {
	s.mu.Lock()
	s.welcome = fn
	s.mu.Unlock()
}

// Handle registers an extra HTTP handler. It must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	if s.http != nil {
		panic("dashboard: Handle called after Start")
	}
	s.routes[pattern] = h
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", s.serveHealth)
	mux.HandleFunc("/", s.serveIndex)
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard serve failed", "error", err)
		}
	}()
	return nil
}

// Stop disconnects every subscriber and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		s.drop(c, websocket.StatusGoingAway, "server shutting down")
	}

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("dashboard shutdown: %w", serr)
		}
	}
	s.wg.Wait()
	s.logger.Info("dashboard stopped")
	return err
}

// Broadcast queues msg for every subscriber. It never blocks; when the
// server queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-s.ctx.Done():
	case s.queue <- msg:
	default:
		s.logger.Warn("dashboard queue full, dropping message", "type", msg.Type)
	}
}

// fanOut copies queued messages into each subscriber's own queue.
func (s *Server) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to encode message", "type", msg.Type, "error", err)
				continue
			}

			var slow []*client
			s.mu.Lock()
			for c := range s.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			s.mu.Unlock()

			for _, c := range slow {
				s.logger.Warn("subscriber too slow, disconnecting")
				s.drop(c, websocket.StatusPolicyViolation, "too slow")
			}
		}
	}
}

// client is one WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, s.queueSize),
		done: make(chan struct{}),
	}

	// The welcome is queued before registering so it is always first.
	if data, err := json.Marshal(s.welcomeMessage()); err == nil {
		c.send <- data
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("subscriber connected", "clients", n)

	s.wg.Add(2)
	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) welcomeMessage() Message {
	s.mu.Lock()
	welcome := s.welcome
	s.mu.Unlock()

	if welcome != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if msg, ok := welcome(ctx); ok {
			return msg
		}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now()}
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debug("subscriber write failed", "error", err)
				s.drop(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop discards client frames and notices disconnects.
func (s *Server) readLoop(c *client) {
	defer s.wg.Done()
	for {
		if _, _, err := c.conn.Read(s.ctx); err != nil {
			s.drop(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

// drop unregisters c and closes its connection. Safe to call repeatedly.
func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		s.mu.Lock()
		delete(s.clients, c)
		n := len(s.clients)
		s.mu.Unlock()

		close(c.done)
		_ = c.conn.Close(code, reason)
		s.logger.Info("subscriber disconnected", "clients", n)
	})
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "tsync dashboard\n\nws://%s/ws\thttp://%s/health\thttp://%s/api/stats\n",
		r.Host, r.Host, r.Host)
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns how many subscribers are connected.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
