// ABOUTME: Websocket remote control server
// ABOUTME: Carries command frames to the control channel and broadcasts replies
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/exjack/exjack-go/internal/version"
	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/exjack/exjack-go/pkg/audio/resample"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/pcm"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueue     = 64
)

// Controller applies commands; control.Channel implements it
type Controller interface {
	Handle(cmd control.Command) (control.Ack, error)
	HandleFrame(frame []byte) ([]byte, error)
}

// Config holds server configuration
type Config struct {
	Addr  string // listen address, e.g. ":8927"
	Path  string // websocket path
	Name  string
	Debug bool

	// Status returns the value served as JSON at /status
	Status func() any

	// SampleRate returns the server rate Opus pushes are resampled to.
	// Nil keeps OpusSampleRate.
	SampleRate func() int
}

// Server is the websocket remote control endpoint
type Server struct {
	config   Config
	ctl      Controller
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener

	sessions   map[string]*session
	sessionsMu sync.RWMutex
	isShutdown bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	text chan []byte
	opus *pcm.OpusDecoder
	rs   *resample.Resampler
	rate int
}

// New creates a server applying commands to ctl
func New(config Config, ctl Controller) *Server {
	if config.Path == "" {
		config.Path = "/exjack"
	}
	if config.Addr == "" {
		config.Addr = ":8927"
	}

	s := &Server{
		config: config,
		ctl:    ctl,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin header
				origin := r.Header.Get("Origin")
				if origin != "" && config.Debug {
					log.Printf("[DEBUG] accepting websocket from origin: %s", origin)
				}
				return true
			},
		},
		sessions: make(map[string]*session),
	}

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

// Handler returns the HTTP handler serving the websocket and status routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.mux}

	log.Printf("Remote control listening on %s%s", ln.Addr(), s.config.Path)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Remote HTTP server error: %v", err)
		}
	}()
	return nil
}

// Port returns the port the server is listening on, or 0 before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Stop closes every session and shuts the HTTP server down
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.sessionsMu.Lock()
		s.isShutdown = true
		for _, sess := range s.sessions {
			sess.conn.Close()
		}
		s.sessionsMu.Unlock()

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				log.Printf("Remote HTTP server shutdown error: %v", err)
			}
		}

		s.wg.Wait()
		log.Printf("Remote control stopped")
	})
}

// Broadcast queues a binary frame for every session. Slow sessions drop it.
func (s *Server) Broadcast(frame []byte) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	for _, sess := range s.sessions {
		select {
		case sess.send <- frame:
		default:
			if s.config.Debug {
				log.Printf("[DEBUG] session %s queue full, dropping frame", sess.id)
			}
		}
	}
}

// Sessions returns the number of connected sessions
func (s *Server) Sessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var status any = map[string]string{"name": s.config.Name}
	if s.config.Status != nil {
		status = s.config.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Error encoding status: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New remote connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendQueue),
		text: make(chan []byte, sendQueue),
	}

	s.sessionsMu.Lock()
	if s.isShutdown {
		s.sessionsMu.Unlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()

	writerDone := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(writerDone)
		s.sessionWriter(sess)
	}()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, sess.id)
		s.sessionsMu.Unlock()
		close(sess.send)
		<-writerDone
		log.Printf("Remote session closed: %s", sess.id)
	}()

	s.sendJSON(sess, Message{Type: "hello", Payload: Hello{
		SessionID: sess.id,
		Name:      s.config.Name,
		Version:   version.Version,
	}})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(sess, data)
		case websocket.TextMessage:
			s.handleText(sess, data)
		}
	}
}

// handleBinary applies a command frame or an Opus push and queues the reply
func (s *Server) handleBinary(sess *session, data []byte) {
	var (
		reply []byte
		err   error
	)

	if len(data) > 0 && data[0] == OpusFrame {
		var ack control.Ack
		ack, err = s.pushOpus(sess, data[1:])
		reply = control.EncodeAck(ack)
	} else {
		reply, err = s.ctl.HandleFrame(data)
	}

	if err != nil && s.config.Debug {
		log.Printf("[DEBUG] session %s: %v", sess.id, err)
	}
	s.queue(sess, reply)
}

func (s *Server) pushOpus(sess *session, packet []byte) (control.Ack, error) {
	if sess.opus == nil {
		dec, err := pcm.NewOpusDecoder()
		if err != nil {
			return control.Ack{Opcode: control.OpPushFrames, Result: control.ResultUnsupported}, err
		}
		sess.opus = dec
	}

	samples, err := sess.opus.Decode(packet)
	if err != nil {
		return control.Ack{Opcode: control.OpPushFrames, Result: control.ResultMalformed},
			fmt.Errorf("%w: %v", control.ErrMalformedCommand, err)
	}

	samples = s.toServerRate(sess, samples)
	payload := make([]byte, len(samples)*audio.BytesPerSample)
	audio.PutFloat32LE(payload, samples)
	return s.ctl.Handle(control.Command{Opcode: control.OpPushFrames, Payload: payload})
}

// toServerRate converts decoded Opus audio to the current server rate
func (s *Server) toServerRate(sess *session, samples []audio.Sample) []audio.Sample {
	if s.config.SampleRate == nil {
		return samples
	}
	rate := s.config.SampleRate()
	if rate <= 0 || rate == pcm.OpusSampleRate {
		return samples
	}
	if sess.rs == nil || sess.rate != rate {
		sess.rs = resample.New(pcm.OpusSampleRate, rate, 1)
		sess.rate = rate
	}
	out := make([]audio.Sample, sess.rs.OutputSamplesNeeded(len(samples)))
	n := sess.rs.Resample(samples, out)
	return out[:n]
}

// handleText serves JSON requests
func (s *Server) handleText(sess *session, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendJSON(sess, Message{Type: "error", Payload: "invalid JSON: " + err.Error()})
		return
	}

	switch msg.Type {
	case "command":
		ack, err := s.ctl.Handle(control.Command{Opcode: control.Opcode(msg.Opcode), Arg: msg.Arg})
		s.sendJSON(sess, Message{Type: "ack", Payload: ackMessage(ack, err)})
	case "status":
		var status any
		if s.config.Status != nil {
			status = s.config.Status()
		}
		s.sendJSON(sess, Message{Type: "status", Payload: status})
	default:
		s.sendJSON(sess, Message{Type: "error", Payload: "unknown message type: " + msg.Type})
	}
}

func (s *Server) queue(sess *session, frame []byte) {
	select {
	case sess.send <- frame:
	default:
		log.Printf("Session %s queue full, dropping reply", sess.id)
	}
}

func (s *Server) sendJSON(sess *session, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	select {
	case sess.text <- data:
	default:
		log.Printf("Session %s queue full, dropping %s", sess.id, msg.Type)
	}
}

// sessionWriter owns all writes to the connection
func (s *Server) sessionWriter(sess *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-sess.send:
			if !ok {
				return
			}
			sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Printf("Error writing binary message: %v", err)
				return
			}

		case data := <-sess.text:
			sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing text message: %v", err)
				return
			}

		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
