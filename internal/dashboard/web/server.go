// Package web serves a read-only coverage dashboard: the live
// CorpusStatResult and plateau status (over a JSON endpoint and a
// websocket push channel) and every crash recorded so far (over a second
// JSON endpoint). Grounded on the
// teacher's internal/web.Server, narrowed to observability only — no
// control-plane actions (start/stop/config), since this is a coverage
// dashboard, not the crash triage UI spec.md's non-goals exclude.
package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/execstatefuzzer/execstatefuzzer/internal/fuzzloop"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Server is the fiber-backed dashboard server.
type Server struct {
	app    *fiber.App
	loop   *fuzzloop.Loop
	logger *slog.Logger

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
}

// StatsView is the JSON shape served at /api/stats: the loop's running
// counters plus the corpus tracker's on-demand aggregate.
type StatsView struct {
	Executions        int64                  `json:"executions"`
	InterestingInputs int64                  `json:"interestingInputs"`
	Crashes           int64                  `json:"crashes"`
	Timeouts          int64                  `json:"timeouts"`
	StartTime         time.Time              `json:"startTime"`
	LastInterestingAt time.Time              `json:"lastInterestingAt"`
	IsCoveragePlateau bool                   `json:"isCoveragePlateau"`
	Corpus            types.CorpusStatResult `json:"corpus"`
}

// New builds a Server over loop. logger may be nil, in which case a
// default slog logger is used, matching the teacher's own ambient
// logging choice (see SPEC_FULL.md §5.2).
func New(loop *fuzzloop.Loop, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:       app,
		loop:      loop,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 100),
	}
	s.setupRoutes()
	go s.handleBroadcast()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(cors.New())

	api := s.app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/crashes", s.handleCrashes)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

func (s *Server) statsView() StatsView {
	stats := s.loop.Stats()
	tracker := s.loop.Tracker()
	return StatsView{
		Executions:        stats.Executions,
		InterestingInputs: stats.InterestingInputs,
		Crashes:           stats.Crashes,
		Timeouts:          stats.Timeouts,
		StartTime:         stats.StartTime,
		LastInterestingAt: stats.LastInterestingAt,
		IsCoveragePlateau: tracker.IsCoveragePlateau(),
		Corpus:            tracker.Result(),
	}
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.statsView())
}

func (s *Server) handleCrashes(c *fiber.Ctx) error {
	return c.JSON(s.loop.Crashes())
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()

	data, _ := json.Marshal(map[string]any{"type": "stats", "data": s.statsView()})
	c.WriteMessage(websocket.TextMessage, data)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcast() {
	for msg := range s.broadcast {
		s.clientsMu.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMu.Unlock()
	}
}

// BroadcastStats pushes the current stats view to every connected
// websocket client, called periodically by the CLI's dashboard loop.
func (s *Server) BroadcastStats() {
	data, err := json.Marshal(map[string]any{"type": "stats", "data": s.statsView()})
	if err != nil {
		s.logger.Error("dashboard: marshal stats", "error", err)
		return
	}
	select {
	case s.broadcast <- data:
	default:
	}
}

// Start serves the dashboard at addr (e.g. ":9090").
func (s *Server) Start(addr string) error {
	s.logger.Info("web dashboard starting", "addr", addr)
	return s.app.Listen(addr)
}

// Stop gracefully shuts the dashboard server down.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}
