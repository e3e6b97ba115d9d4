package jobsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/job"
)

// StratumConfig configures one pool connection.
type StratumConfig struct {
	Addr       string
	Login      string
	Pass       string
	RigID      string
	Agent      string
	PoolID     int
	Algo       algorithm.Algorithm
	Retries    int
	RetryPause time.Duration
	Logger     *slog.Logger
}

// StratumClient is a TCP JSON-RPC JobSource, the transport shape pools in
// the CryptoNight/RandomX ecosystem speak: newline-delimited JSON
// requests/responses plus unsolicited "job" notifications.
type StratumClient struct {
	cfg    StratumConfig
	logger *slog.Logger

	connMu sync.Mutex
	conn   net.Conn

	msgID   atomic.Uint64
	pending map[uint64]chan json.RawMessage
	pendMu  sync.Mutex

	sessionID string
	clientID  string
}

type stratumRequest struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type stratumResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *stratumError   `json:"error,omitempty"`
}

type stratumError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type loginParams struct {
	Login    string `json:"login"`
	Pass     string `json:"pass"`
	Agent    string `json:"agent"`
	RigID    string `json:"rigid,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type wireJob struct {
	JobID    string `json:"job_id"`
	Blob     string `json:"blob"`
	Target   string `json:"target"`
	SeedHash string `json:"seed_hash,omitempty"`
	Height   uint64 `json:"height,omitempty"`
}

type loginResult struct {
	ID     string   `json:"id"`
	Job    *wireJob `json:"job"`
	Status string   `json:"status"`
}

type submitParams struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	Nonce  string `json:"nonce"`
	Result string `json:"result"`
}

type submitResult struct {
	Status string `json:"status"`
}

type jobNotify struct {
	Method string   `json:"method"`
	Params *wireJob `json:"params"`
}

// NewStratumClient builds a client for one pool. Defaults mirror
// coopmine/pool_client.go's DefaultPoolClientConfig.
func NewStratumClient(cfg StratumConfig) *StratumClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Agent == "" {
		cfg.Agent = "cnrx-miner/1.0.0"
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 5
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = 5 * time.Second
	}
	return &StratumClient{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "jobsource", "addr", cfg.Addr),
		pending:  make(map[uint64]chan json.RawMessage),
		clientID: uuid.New().String()[:8],
	}
}

// Run connects, logs in, and reads jobs until ctx is cancelled or the
// retry budget (cfg.Retries attempts, paced cfg.RetryPause apart via a
// token-bucket limiter) is exhausted.
func (c *StratumClient) Run(ctx context.Context, onJob func(j job.Job)) error {
	limiter := rate.NewLimiter(rate.Every(c.cfg.RetryPause), 1)
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		// The bucket starts full, so the first Wait returns at once and
		// every later attempt waits RetryPause after the previous one.
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if err := c.connect(); err != nil {
			lastErr = err
			c.logger.Warn("connect failed", "attempt", attempt+1, "error", err)
			continue
		}
		if err := c.login(onJob); err != nil {
			lastErr = err
			c.logger.Warn("login failed", "attempt", attempt+1, "error", err)
			c.Close()
			continue
		}

		attempt = -1 // a successful session resets the retry budget
		lastErr = c.readLoop(ctx, onJob)
		c.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("connection lost, reconnecting", "error", lastErr)
	}
	return fmt.Errorf("jobsource: exhausted retries against %s: %w", c.cfg.Addr, lastErr)
}

func (c *StratumClient) connect() error {
	conn, err := net.DialTimeout("tcp", c.cfg.Addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("jobsource: dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *StratumClient) login(onJob func(j job.Job)) error {
	params := loginParams{Login: c.cfg.Login, Pass: c.cfg.Pass, Agent: c.cfg.Agent, RigID: c.cfg.RigID, ClientID: c.clientID}
	result, err := c.call(params, "login")
	if err != nil {
		return err
	}
	var lr loginResult
	if err := json.Unmarshal(result, &lr); err != nil {
		return fmt.Errorf("jobsource: parse login result: %w", err)
	}
	c.sessionID = lr.ID
	if lr.Job != nil {
		if j, err := c.toJob(lr.Job); err == nil {
			onJob(j)
		} else {
			c.logger.Error("invalid job in login response", "error", err)
		}
	}
	return nil
}

// Submit reports a share upstream, encoding the nonce as 8 hex chars and
// the hash as 64 hex chars, matching the wire convention every CN/RandomX
// stratum pool shares.
func (c *StratumClient) Submit(ctx context.Context, s job.Solution) (bool, error) {
	params := submitParams{
		ID:     c.sessionID,
		JobID:  s.JobID,
		Nonce:  fmt.Sprintf("%08x", s.Nonce),
		Result: fmt.Sprintf("%x", s.Hash),
	}
	result, err := c.call(params, "submit")
	if err != nil {
		return false, err
	}
	var sr submitResult
	if err := json.Unmarshal(result, &sr); err != nil {
		return false, fmt.Errorf("jobsource: parse submit result: %w", err)
	}
	return sr.Status == "OK", nil
}

func (c *StratumClient) call(params interface{}, method string) (json.RawMessage, error) {
	id := c.msgID.Add(1)
	respCh := make(chan json.RawMessage, 1)
	c.pendMu.Lock()
	c.pending[id] = respCh
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	if err := c.send(stratumRequest{ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("jobsource: timeout waiting for %s response", method)
	case result := <-respCh:
		return result, nil
	}
}

func (c *StratumClient) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("jobsource: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err = c.conn.Write(data)
	return err
}

func (c *StratumClient) readLoop(ctx context.Context, onJob func(j job.Job)) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("jobsource: not connected")
	}

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("jobsource: read: %w", err)
		}
		c.handleMessage(line, onJob)
	}
}

func (c *StratumClient) handleMessage(data []byte, onJob func(j job.Job)) {
	var resp stratumResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID > 0 {
		c.pendMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendMu.Unlock()
		if ok {
			if resp.Error != nil {
				c.logger.Error("rpc error", "id", resp.ID, "code", resp.Error.Code, "message", resp.Error.Message)
			}
			select {
			case ch <- resp.Result:
			default:
			}
		}
		return
	}

	var notify jobNotify
	if err := json.Unmarshal(data, &notify); err == nil && notify.Method == "job" && notify.Params != nil {
		if j, err := c.toJob(notify.Params); err == nil {
			onJob(j)
		} else {
			c.logger.Error("invalid job notification", "error", err)
		}
		return
	}

	c.logger.Debug("unrecognized message", "data", string(data))
}

// toJob decodes a wire job into the core's job.Job, applying this
// client's configured (poolId, algorithm) and the SetBlob/SetTarget
// validation that also derives nicehash auto-detection.
func (c *StratumClient) toJob(w *wireJob) (job.Job, error) {
	var j job.Job
	j.ID = w.JobID
	j.ClientID = c.clientID
	j.PoolID = c.cfg.PoolID
	j.Algo = c.cfg.Algo
	j.Height = w.Height
	if err := j.SetBlob(w.Blob); err != nil {
		return job.Job{}, err
	}
	if err := j.SetTarget(w.Target); err != nil {
		return job.Job{}, err
	}
	if w.SeedHash != "" {
		if err := j.SetSeedHash(w.SeedHash); err != nil {
			return job.Job{}, err
		}
	}
	return j, nil
}

// Close releases the underlying TCP connection, if any.
func (c *StratumClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
