package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal-backtest-lab/internal/observability"
	"signal-backtest-lab/internal/reporting"
	"signal-backtest-lab/internal/source"
)

// WSConfig configures WebSocket sessions.
type WSConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a session may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxMessageBytes limits inbound message size.
	MaxMessageBytes int64
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:    30 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 4096,
	}
}

func (c WSConfig) withDefaults() WSConfig {
	d := DefaultWSConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	return c
}

// wsRequest selects an instrument and leverage. Every message replaces the
// previous selection.
type wsRequest struct {
	ID               string `json:"id,omitempty"`
	Instrument       string `json:"instrument"`
	Leverage         int    `json:"leverage"`
	StartEquity      string `json:"start_equity,omitempty"`
	EntryFeePct      string `json:"entry_fee_pct,omitempty"`
	ExitFeePct       string `json:"exit_fee_pct,omitempty"`
	PositionFraction string `json:"position_fraction,omitempty"`
	Sheet            string `json:"sheet,omitempty"`
	Step             string `json:"step,omitempty"`
}

func (m wsRequest) params() requestParams {
	p := requestParams{
		Instrument:       m.Instrument,
		StartEquity:      m.StartEquity,
		EntryFeePct:      m.EntryFeePct,
		ExitFeePct:       m.ExitFeePct,
		PositionFraction: m.PositionFraction,
		Sheet:            m.Sheet,
		Step:             m.Step,
	}
	if m.Leverage != 0 {
		p.Leverage = strconv.Itoa(m.Leverage)
	}
	return p
}

// Response types.
const (
	wsTypeResult = "result"
	wsTypeError  = "error"
)

type wsResponse struct {
	Type      string               `json:"type"`
	ID        string               `json:"id,omitempty"`
	Selection string               `json:"selection,omitempty"`
	Result    *reporting.RunReport `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	Status    int                  `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		srv:    s,
		conn:   conn,
		latest: source.NewLatest(),
	}
	s.logger.Debug("websocket session opened", zap.String("session", sess.id))
	sess.serve(r.Context())
	s.logger.Debug("websocket session closed", zap.String("session", sess.id))
}

// session is one WebSocket connection. Only the latest selection's result is
// ever written back.
type session struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	latest *source.Latest

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func (ss *session) serve(parent context.Context) {
	observability.DefaultMetrics.WSSessions.Inc()
	defer observability.DefaultMetrics.WSSessions.Dec()

	cfg := ss.srv.ws
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ss.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = ss.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	done := make(chan struct{})
	ss.wg.Add(1)
	go ss.pingLoop(done)

	for {
		_, msg, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.srv.logger.Debug("websocket read", zap.String("session", ss.id), zap.Error(err))
			}
			break
		}
		_ = ss.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		ss.handle(ctx, msg)
	}

	close(done)
	cancel()
	ss.wg.Wait()
	ss.conn.Close()
}

// handle claims the selection slot synchronously so arrival order decides
// which selection is latest, then evaluates in the background.
func (ss *session) handle(ctx context.Context, msg []byte) {
	var m wsRequest
	if err := json.Unmarshal(msg, &m); err != nil {
		ss.writeErr(m.ID, fmt.Errorf("%w: invalid message: %w", errBadRequest, err))
		return
	}

	req, err := ss.srv.parse(m.params())
	if err != nil {
		ss.writeErr(m.ID, err)
		return
	}

	runCtx, finish := ss.latest.Begin(ctx, req.key())

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()

		res, err := ss.srv.run(runCtx, req)
		if !finish() || ctx.Err() != nil {
			return
		}
		if err != nil {
			ss.writeErr(m.ID, err)
			return
		}

		rr := reporting.NewRunReport(res)
		ss.write(wsResponse{Type: wsTypeResult, ID: m.ID, Selection: rr.Selection, Result: &rr})
	}()
}

func (ss *session) writeErr(id string, err error) {
	ss.write(wsResponse{Type: wsTypeError, ID: id, Error: err.Error(), Status: statusFor(err)})
}

func (ss *session) write(resp wsResponse) {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()

	_ = ss.conn.SetWriteDeadline(time.Now().Add(ss.srv.ws.WriteTimeout))
	if err := ss.conn.WriteJSON(resp); err != nil {
		ss.srv.logger.Debug("websocket write", zap.String("session", ss.id), zap.Error(err))
	}
}

// pingLoop sends periodic pings to keep connection alive.
func (ss *session) pingLoop(done <-chan struct{}) {
	defer ss.wg.Done()

	ticker := time.NewTicker(ss.srv.ws.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ss.srv.closing:
			// Unblocks the read loop.
			ss.writeMu.Lock()
			_ = ss.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(ss.srv.ws.WriteTimeout))
			ss.writeMu.Unlock()
			ss.conn.Close()
			return
		case <-ticker.C:
			ss.writeMu.Lock()
			err := ss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ss.srv.ws.WriteTimeout))
			ss.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
