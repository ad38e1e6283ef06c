package ws

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// Acceptor takes ownership of freshly upgraded connections.
type Acceptor interface {
	Accept(ctx context.Context, conn *Conn)
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(ctx context.Context, conn *Conn)

func (f AcceptorFunc) Accept(ctx context.Context, conn *Conn) {
	f(ctx, conn)
}

// Handler upgrades /ws?id=<peer> requests and hands the resulting Conn to an
// Acceptor.
type Handler struct {
	acceptor Acceptor
	cfg      Config
	upgrader websocket.Upgrader
}

func NewHandler(acceptor Acceptor, cfg Config) *Handler {
	return &Handler{
		acceptor: acceptor,
		cfg:      cfg.normalize(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	peer := r.URL.Query().Get("id")
	if peer == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Printf("[ws] upgrade failed for %s: %v", peer, err)
		return
	}
	h.acceptor.Accept(r.Context(), NewConn(peer, conn, h.cfg))
}

// Dial connects to a server endpoint as peer. endpoint is the base websocket
// URL, for example ws://localhost:8080/ws.
func Dial(ctx context.Context, endpoint, peer string, cfg Config) (*Conn, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := target.Query()
	query.Set("id", peer)
	target.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.Redacted(), err)
	}
	return NewConn(peer, conn, cfg), nil
}
