// Package platformsim is a local gin + gin-contrib/sse HTTP server that
// replays a scripted sequence of framed SSE lines, standing in for the
// execution platform in integration tests. It is imported only from
// _test.go files; it does not ship as part of the library's public surface.
package platformsim

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// NamedEvent is a standard-framed SSE event, encoded with gin-contrib/sse so
// tests exercise the exact wire encoding the platform itself uses.
type NamedEvent struct {
	Name string
	Data string
}

// Script is a scripted response for one execute_workflow submission.
type Script struct {
	// StatusCode is the HTTP status to answer with. 0 means 200.
	StatusCode int
	// Events are written first, encoded via gin-contrib/sse.
	Events []NamedEvent
	// RawLines are written verbatim after Events — this is how tests
	// exercise mixed SSE/compact-JSON/raw-text framing that gin's SSE
	// helper wouldn't otherwise produce.
	RawLines []string
	// Truncate marks a script as a broken stream. The handler writes only
	// Events and RawLines in either case, so the stream lacks a terminal
	// workflow_complete event exactly when the script does not include one.
	Truncate bool
	// LineDelay, if set, is slept between each written RawLine — used to
	// simulate a slow log burst a test can cancel mid-stream.
	LineDelay time.Duration
}

// Server serves one scripted response per configured run, keyed by call
// order: the first POST gets scripts[0], the second gets scripts[1], etc.
type Server struct {
	httpServer *httptest.Server
	scripts    []Script
	calls      int
}

// New starts a simulator that serves scripts in order as successive
// /workflow POSTs arrive.
func New(scripts []Script) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{scripts: scripts}

	router := gin.New()
	router.POST("/workflow", s.handleExecute)
	s.httpServer = httptest.NewServer(router)
	return s
}

// URL returns the simulator's base endpoint, suitable for transport.Config.Endpoint.
func (s *Server) URL() string { return s.httpServer.URL + "/workflow" }

// Close shuts down the underlying httptest server.
func (s *Server) Close() { s.httpServer.Close() }

func (s *Server) handleExecute(c *gin.Context) {
	if s.calls >= len(s.scripts) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "platformsim: no more scripted responses"})
		return
	}
	script := s.scripts[s.calls]
	s.calls++

	if script.StatusCode != 0 && script.StatusCode != http.StatusOK {
		c.JSON(script.StatusCode, gin.H{"error": "platformsim: scripted failure"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	for _, ev := range script.Events {
		sse.Encode(c.Writer, sse.Event{Event: ev.Name, Data: ev.Data})
		if ok {
			flusher.Flush()
		}
	}
	for _, line := range script.RawLines {
		if script.LineDelay > 0 {
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(script.LineDelay):
			}
		}
		c.Writer.Write([]byte(line + "\n"))
		if ok {
			flusher.Flush()
		}
	}
	if script.Truncate {
		// Hijack-free truncation: just stop writing. The client sees EOF
		// without ever observing a workflow_complete event.
		return
	}
}
