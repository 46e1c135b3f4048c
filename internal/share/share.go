package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	KindHello = "hello"
	KindTurn  = "turn"
	KindBye   = "bye"

	Broadcast = "ALL"
)

var ErrClosed = errors.New("share: publisher closed")

type Message struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Kind    string    `json:"kind"`
	Session string    `json:"session"`
	ID      string    `json:"id"`
	Seq     int       `json:"seq"`
	User    string    `json:"user,omitempty"`
	Content string    `json:"content,omitempty"`
	Mood    string    `json:"mood,omitempty"`
	Time    time.Time `json:"time"`
}

// Turn is one finished exchange.
type Turn struct {
	User      string
	Assistant string
	Mood      string
}

type Options struct {
	// Reconnect attempts per failed write.
	Retries      int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Publisher mirrors finished turns to a websocket hub.
type Publisher struct {
	url     string
	from    string
	session string
	opt     Options

	mu     sync.Mutex
	conn   *ws.Conn
	seq    int
	closed bool
}

func Dial(ctx context.Context, hubURL, from string, opt Options) (*Publisher, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	opt.defaults()

	p := &Publisher{
		url:     u.String(),
		from:    from,
		session: uuid.NewString(),
		opt:     opt,
	}

	if p.conn, err = p.dial(ctx); err != nil {
		return nil, err
	}
	log.Info("Connected to hub", "url", p.url, "session", p.session)

	if err := p.send(ctx, Message{Kind: KindHello}); err != nil {
		p.conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Session() string { return p.session }

func (p *Publisher) Publish(ctx context.Context, t Turn) error {
	return p.send(ctx, Message{
		Kind:    KindTurn,
		User:    t.User,
		Content: t.Assistant,
		Mood:    t.Mood,
	})
}

// Close says goodbye and closes the connection. Safe to call twice.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.opt.WriteTimeout)
	defer cancel()

	if err := p.send(ctx, Message{Kind: KindBye}); err != nil && !errors.Is(err, ErrClosed) {
		log.Debug("Failed to say bye to hub", "err", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	deadline := time.Now().Add(p.opt.WriteTimeout)
	p.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), deadline)
	return p.conn.Close()
}

func (p *Publisher) send(ctx context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.seq++
	m.From = p.from
	m.To = Broadcast
	m.Session = p.session
	m.ID = uuid.NewString()
	m.Seq = p.seq
	m.Time = time.Now().UTC()

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", m.Kind, err)
	}

	err = p.write(payload)
	if err == nil {
		return nil
	}
	if isClosed(err) {
		log.Info("Hub closed the connection, reconnecting", "url", p.url)
	} else {
		log.Warn("Hub write failed, reconnecting", "url", p.url, "err", err)
	}

	if err := p.reconnect(ctx); err != nil {
		return err
	}
	return p.write(payload)
}

func (p *Publisher) write(payload []byte) error {
	log.Debug("Write ws", "msg", string(payload))
	p.conn.SetWriteDeadline(time.Now().Add(p.opt.WriteTimeout))
	return p.conn.WriteMessage(ws.TextMessage, payload)
}

func (p *Publisher) reconnect(ctx context.Context) error {
	p.conn.Close()

	var err error
	for i := 0; i < p.opt.Retries; i++ {
		var conn *ws.Conn
		if conn, err = p.dial(ctx); err == nil {
			p.conn = conn
			log.Info("Reconnected to hub", "url", p.url)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opt.RetryBackoff):
		}
	}
	return fmt.Errorf("reconnect after %d attempts: %w", p.opt.Retries, err)
}

func (p *Publisher) dial(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.url, err)
	}
	return conn, nil
}

// isClosed reports a close handshake from the hub, or a write after one.
func isClosed(err error) bool {
	if errors.Is(err, ws.ErrCloseSent) {
		return true
	}
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
