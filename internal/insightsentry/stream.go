package insightsentry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/candle"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/ratelimit"
	"realtime-chart-engine/internal/types"

	"github.com/gorilla/websocket"
)

const (
	DefaultWebsocketURL = "wss://realtime.insightsentry.com/live"
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = time.Second
)

var (
	// ErrReconnectExhausted is returned by Run once MaxAttempts consecutive connections failed.
	ErrReconnectExhausted = &apperr.Error{Kind: apperr.KindUpstream, Message: "websocket reconnect attempts exhausted"}
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = &apperr.Error{Kind: apperr.KindValidation, Message: "websocket not connected"}
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Publisher receives every aggregated update produced by the stream.
type Publisher interface {
	Publish(ctx context.Context, tf types.Timeframe, bars []types.Bar) error
}

// Options configures a Client. Zero values take the defaults.
type Options struct {
	URL         string
	APIKey      string
	Symbol      string
	MaxAttempts int
	BaseDelay   time.Duration
	Dialer      Dialer
	Sleep       func(ctx context.Context, d time.Duration) error
}

type switchRequest struct {
	symbol string
	reply  chan error
}

// Client keeps one upstream subscription alive and feeds its 1m bars through the
// live aggregator to a Publisher.
//
// Run owns the aggregator: frames and symbol switches are handled by a single dispatch
// loop, so bars for one symbol are aggregated strictly in arrival order.
type Client struct {
	url         string
	apiKey      string
	maxAttempts int
	baseDelay   time.Duration
	dialer      Dialer
	sleep       func(ctx context.Context, d time.Duration) error
	publisher   Publisher
	logger      logger.Interface

	mu       sync.RWMutex
	state    State
	symbol   string
	attempts int
	conn     Conn
	session  chan struct{} // closed when the current session ends

	writeMu  sync.Mutex
	engine   *candle.Aggregator
	switches chan switchRequest

	closed  context.Context
	closeFn context.CancelFunc
}

func NewClient(opts Options, publisher Publisher, log logger.Interface) *Client {
	if opts.URL == "" {
		opts.URL = DefaultWebsocketURL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	if log == nil {
		log = logger.NewNop()
	}

	closed, closeFn := context.WithCancel(context.Background())
	return &Client{
		url:         opts.URL,
		apiKey:      opts.APIKey,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		dialer:      opts.Dialer,
		sleep:       opts.Sleep,
		publisher:   publisher,
		logger:      log,
		state:       Disconnected,
		symbol:      opts.Symbol,
		engine:      candle.NewAggregator(),
		switches:    make(chan switchRequest),
		closed:      closed,
		closeFn:     closeFn,
	}
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Symbol() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbol
}

// Attempts returns the number of consecutive failed connections.
func (c *Client) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// Run connects and reconnects until ctx is done, Close is called, or MaxAttempts
// consecutive connections fail. The delay before retry n is BaseDelay * 2^(n-1).
// It returns nil on cancellation and ErrReconnectExhausted on terminal failure.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	for {
		c.setState(Connecting)
		c.logger.Info("connecting to upstream stream",
			logger.NewField("url", c.url),
			logger.NewField("attempt", c.Attempts()+1),
		)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err == nil {
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			c.setState(Disconnected)
			c.logger.Info("upstream stream stopped")
			return nil
		}

		attempts := c.recordFailure()
		c.logger.Error(apperr.Upstream(err, "upstream stream connection lost"),
			logger.NewField("attempt", attempts),
			logger.NewField("max_attempts", c.maxAttempts),
		)
		if attempts >= c.maxAttempts {
			c.setState(Failed)
			c.logger.Error(ErrReconnectExhausted, logger.NewField("attempts", attempts))
			return ErrReconnectExhausted
		}

		c.setState(Reconnecting)
		delay := c.baseDelay << (attempts - 1)
		c.logger.Info("reconnecting", logger.NewField("delay", delay.String()))
		if err := c.sleep(ctx, delay); err != nil {
			c.setState(Disconnected)
			return nil
		}
	}
}

// serve runs one connected session: subscribe, then dispatch frames until the
// connection drops or ctx ends.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	readerDone := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.session = done
	c.attempts = 0
	c.state = Connected
	symbol := c.symbol
	c.mu.Unlock()

	defer func() {
		close(done)
		c.mu.Lock()
		c.conn = nil
		if c.state == Connected {
			c.state = Reconnecting
		}
		c.mu.Unlock()
		_ = conn.Close()
		<-readerDone
	}()

	c.logger.Info("connected to upstream stream", logger.NewField("symbol", symbol))
	if err := c.sendDirective(conn, symbol, ""); err != nil {
		close(readerDone)
		return err
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(readerDone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErr:
			return err
		case msg := <-frames:
			c.handleFrame(ctx, msg)
		case req := <-c.switches:
			req.reply <- c.switchTo(conn, req.symbol)
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, msg []byte) {
	if string(msg) == pongFrame {
		c.logger.Debug("received pong")
		return
	}

	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		c.logger.Error(apperr.Parse(err, "failed to parse stream frame"), logger.NewField("size", len(msg)))
		return
	}
	if f.Message != nil {
		c.logger.Info("upstream status", logger.NewField("status", *f.Message))
		return
	}
	if len(f.Series) == 0 {
		return
	}
	if current := c.Symbol(); f.Code != "" && f.Code != current {
		c.logger.Debug("dropping frame for previous symbol",
			logger.NewField("code", f.Code),
			logger.NewField("symbol", current),
		)
		return
	}

	bars := toBars(f.Series)
	c.logger.Debug("processing bars", logger.NewField("count", len(bars)))
	for _, bar := range bars {
		for _, u := range c.engine.AddBar(bar) {
			if len(u.Bars) == 0 || c.publisher == nil {
				continue
			}
			if err := c.publisher.Publish(ctx, u.Timeframe, u.Bars); err != nil {
				c.logger.Error(err, logger.NewField("timeframe", u.Timeframe))
			}
		}
	}
}

// SwitchSymbol moves the subscription to symbol and discards all aggregation state.
// It is a no-op when symbol is already tracked.
func (c *Client) SwitchSymbol(ctx context.Context, symbol string) error {
	c.mu.RLock()
	state, current, session := c.state, c.symbol, c.session
	c.mu.RUnlock()

	if state != Connected {
		return ErrNotConnected
	}
	if symbol == current {
		c.logger.Info("already subscribed, skipping switch", logger.NewField("symbol", symbol))
		return nil
	}

	req := switchRequest{symbol: symbol, reply: make(chan error, 1)}
	select {
	case c.switches <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-session:
		return ErrNotConnected
	case <-c.closed.Done():
		return ErrNotConnected
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// switchTo runs on the dispatch loop.
func (c *Client) switchTo(conn Conn, symbol string) error {
	old := c.Symbol()
	if symbol == old {
		return nil
	}
	c.logger.Info("switching symbol", logger.NewField("from", old), logger.NewField("to", symbol))

	if err := c.sendDirective(conn, old, actionUnsubscribe); err != nil {
		return apperr.Upstream(err, "unsubscribe %s", old)
	}

	c.mu.Lock()
	c.symbol = symbol
	c.mu.Unlock()

	if err := c.sendDirective(conn, symbol, ""); err != nil {
		return apperr.Upstream(err, "subscribe %s", symbol)
	}

	c.engine = candle.NewAggregator()
	c.logger.Info("aggregator reset", logger.NewField("symbol", symbol))
	return nil
}

// Ping sends one keep-alive frame.
func (c *Client) Ping() error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if conn == nil || state != Connected {
		return ErrNotConnected
	}
	return c.write(conn, websocket.TextMessage, []byte(pingFrame))
}

// KeepAlive pings every interval while the client is connected. It returns when ctx
// is done, Close is called, or the client has failed permanently.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("keep-alive stopped")
			return
		case <-t.C:
		}

		if c.State() == Failed {
			c.logger.Warn("keep-alive stopped, stream failed")
			return
		}
		if err := c.Ping(); err != nil {
			if err != ErrNotConnected {
				c.logger.Error(apperr.Upstream(err, "keep-alive ping"))
			}
			continue
		}
		c.logger.Debug("sent ping")
	}
}

// Close cancels Run and KeepAlive. The session closes its connection on the way out.
func (c *Client) Close() error {
	c.closeFn()
	return nil
}

func (c *Client) sendDirective(conn Conn, symbol, action string) error {
	b, err := seriesDirective(c.apiKey, symbol, action)
	if err != nil {
		return err
	}
	if err := c.write(conn, websocket.TextMessage, b); err != nil {
		return err
	}
	if action == "" {
		action = "subscribe"
	}
	c.logger.Info("sent directive", logger.NewField("action", action), logger.NewField("symbol", symbol))
	return nil
}

func (c *Client) write(conn Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) recordFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.attempts
}

// bind derives a context that also ends on Close.
func (c *Client) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.closed, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
