package jobsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/job"
)

// WebSocketConfig configures a getwork-over-websocket pool connection.
type WebSocketConfig struct {
	URL        string
	Login      string
	Pass       string
	PoolID     int
	Algo       algorithm.Algorithm
	Retries    int
	RetryPause time.Duration
	Logger     *slog.Logger
}

// wsRequest mirrors the server-side WSRequest shape so the wire contract
// matches on both ends of a round trip.
type wsRequest struct {
	ID     int           `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type wsResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  interface{}     `json:"error,omitempty"`
}

type wsNotify struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// getWorkResult is the subset of GetWorkResult the core needs to build a
// job.Job; PoolID and Algo come from this client's own configuration, not
// the wire.
type getWorkResult struct {
	HeaderHash string `json:"headerHash"`
	Target     string `json:"target"`
	Height     uint64 `json:"height"`
	JobID      string `json:"jobId"`
}

// WebSocketClient is a JobSource for pools that push work over a
// gorilla/websocket connection instead of raw TCP stratum. Message shapes
// (WSRequest/WSResponse/WSNotify/GetWorkResult) are ported from
// tos-pool/internal/slave/websocket.go's server-side definitions; this is
// their client-side counterpart using gorilla/websocket's own Dialer.
type WebSocketClient struct {
	cfg    WebSocketConfig
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	msgID atomic.Int64
}

// NewWebSocketClient builds a client for one websocket pool endpoint.
func NewWebSocketClient(cfg WebSocketConfig) *WebSocketClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 5
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = 5 * time.Second
	}
	return &WebSocketClient{cfg: cfg, logger: cfg.Logger.With("component", "jobsource", "url", cfg.URL)}
}

// Run dials, authenticates, and reads getWork notifications until ctx is
// cancelled or the retry budget is exhausted.
func (c *WebSocketClient) Run(ctx context.Context, onJob func(j job.Job)) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.cfg.RetryPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			lastErr = err
			c.logger.Warn("dial failed", "attempt", attempt+1, "error", err)
			continue
		}
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		if err := c.authenticate(); err != nil {
			lastErr = err
			c.logger.Warn("authenticate failed", "attempt", attempt+1, "error", err)
			c.Close()
			continue
		}

		attempt = -1
		lastErr = c.readLoop(ctx, onJob)
		c.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("connection lost, reconnecting", "error", lastErr)
	}
	return fmt.Errorf("jobsource: exhausted retries against %s: %w", c.cfg.URL, lastErr)
}

func (c *WebSocketClient) authenticate() error {
	return c.writeJSON(wsRequest{
		ID:     int(c.msgID.Add(1)),
		Method: "login",
		Params: []interface{}{c.cfg.Login, c.cfg.Pass},
	})
}

// Submit sends a solved share as a submitWork request. It does not wait
// for or read the pool's reply: it reports accepted=true whenever the
// request was written.
func (c *WebSocketClient) Submit(ctx context.Context, s job.Solution) (bool, error) {
	if err := c.writeJSON(wsRequest{
		ID:     int(c.msgID.Add(1)),
		Method: "submitWork",
		Params: []interface{}{s.JobID, fmt.Sprintf("%08x", s.Nonce), fmt.Sprintf("%x", s.Hash)},
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *WebSocketClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("jobsource: not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *WebSocketClient) readLoop(ctx context.Context, onJob func(j job.Job)) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("jobsource: not connected")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("jobsource: read: %w", err)
		}
		c.handleMessage(data, onJob)
	}
}

func (c *WebSocketClient) handleMessage(data []byte, onJob func(j job.Job)) {
	var notify wsNotify
	if err := json.Unmarshal(data, &notify); err == nil && notify.Method == "getWork" {
		var gw getWorkResult
		if err := json.Unmarshal(notify.Params, &gw); err != nil {
			c.logger.Error("invalid getWork notification", "error", err)
			return
		}
		j, err := c.toJob(&gw)
		if err != nil {
			c.logger.Error("invalid job", "error", err)
			return
		}
		onJob(j)
		return
	}
	c.logger.Debug("unrecognized message", "data", string(data))
}

func (c *WebSocketClient) toJob(gw *getWorkResult) (job.Job, error) {
	var j job.Job
	j.ID = gw.JobID
	j.PoolID = c.cfg.PoolID
	j.Algo = c.cfg.Algo
	j.Height = gw.Height
	if err := j.SetBlob(gw.HeaderHash); err != nil {
		return job.Job{}, err
	}
	if err := j.SetTarget(gw.Target); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// Close releases the underlying websocket connection, if any.
func (c *WebSocketClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
