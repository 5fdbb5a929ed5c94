// Package api is the control-plane HTTP layer described in SPEC_FULL.md's
// DOMAIN STACK section: it exposes acknowledgement, health, and change-event
// streaming endpoints over the decoded replication stream, giving the
// teacher's otherwise-unused gin/gin-contrib-sse/gorilla-websocket
// dependencies a concrete job. It only ever touches the Stream's public
// Acknowledge entry point and the Frame values published to it — never the
// decoder's internal relation/type caches.
package api

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nikunjy/pgoutputd/pgoutput"
	"github.com/nikunjy/pgoutputd/replication"
	"github.com/sirupsen/logrus"
)

// AckRequest is the body of POST /ack. The `binding:"required"` tag is
// enforced by gin's default validator (go-playground/validator/v10 in gin
// v1.9.1), the same binding-tag mechanism the teacher's own SnapshotDataJSON
// request type relies on.
type AckRequest struct {
	LSN string `json:"lsn" binding:"required"`
}

// Server is the control-plane HTTP API in front of a replication Stream.
type Server struct {
	engine      *gin.Engine
	stream      *replication.Stream
	broadcaster *Broadcaster
	log         logrus.FieldLogger

	running  atomic.Bool
	lastLSN  atomic.Value // string
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP router. Call Broadcast for every decoded Frame
// from the session's pull loop to fan it out to subscribers.
func NewServer(stream *replication.Stream, log logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:      gin.New(),
		stream:      stream,
		broadcaster: NewBroadcaster(),
		log:         log,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.running.Store(true)
	s.lastLSN.Store("")

	s.engine.Use(gin.Recovery())
	s.engine.POST("/ack", s.handleAck)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/events/ws", s.handleWebsocket)
	s.engine.GET("/events/sse", s.handleSSE)
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Broadcast publishes frame to every connected subscriber and records its
// LSN for the health endpoint. Call this from the session's pull loop.
func (s *Server) Broadcast(frame pgoutput.Frame) {
	s.lastLSN.Store(frame.CurrentLSN.String())
	s.broadcaster.Publish(frame)
}

// Stop marks the server as no longer running (reported by /health) and
// closes every subscriber connection.
func (s *Server) Stop() {
	s.running.Store(false)
	s.broadcaster.Close()
}

func (s *Server) handleAck(c *gin.Context) {
	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.stream.Acknowledge(c.Request.Context(), req.LSN); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acked": req.LSN})
}

func (s *Server) handleHealth(c *gin.Context) {
	lastLSN, _ := s.lastLSN.Load().(string)
	c.JSON(http.StatusOK, gin.H{
		"running": s.running.Load(),
		"lastLsn": lastLSN,
	})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.broadcaster.Subscribe(64)
	defer unsubscribe()

	for frame := range events {
		payload, err := encodeFrame(frame)
		if err != nil {
			s.log.WithError(err).Warn("encode frame for websocket subscriber")
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) handleSSE(c *gin.Context) {
	events, unsubscribe := s.broadcaster.Subscribe(64)
	defer unsubscribe()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-events:
			if !ok {
				return false
			}
			payload, err := encodeFrame(frame)
			if err != nil {
				s.log.WithError(err).Warn("encode frame for SSE subscriber")
				return true
			}
			sse.Encode(w, sse.Event{Event: string(frame.Kind), Data: string(payload)})
			return true
		case <-time.After(30 * time.Second):
			sse.Encode(w, sse.Event{Event: "ping", Data: "{}"})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
