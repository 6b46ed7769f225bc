package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/events"
)

const (
	feedWriteWait = 5 * time.Second
	// Eventos pendentes por cliente antes de ele ser considerado lento e desconectado.
	feedClientBuffer = 64
)

// feedClient é uma conexão com a própria fila de saída e um escritor dedicado.
type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// FeedHub transmite compras aceitas aos clientes conectados por websocket.
// Implementa events.Publisher, então recebe os mesmos eventos que os brokers.
type FeedHub struct {
	clients  map[*feedClient]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	closed   bool
	log      *zap.Logger
}

var _ events.Publisher = (*FeedHub)(nil)

// NewFeedHub cria o hub sem clientes.
func NewFeedHub(log *zap.Logger) *FeedHub {
	return &FeedHub{
		clients:  make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      log,
	}
}

// Publish entrega o evento à fila de cada cliente sem esperar a rede.
// Cliente com a fila cheia é desconectado.
func (h *FeedHub) Publish(_ context.Context, ev events.PurchaseEvent) error {
	msg, err := ev.Encode()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("cliente do feed lento, desconectando")
			h.removeLocked(c)
			c.conn.Close()
		}
	}
	return nil
}

// removeLocked tira o cliente do hub e encerra seu escritor. Exige h.mu.
func (h *FeedHub) removeLocked(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *FeedHub) remove(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// writeLoop escreve a fila do cliente na conexão até a fila ser fechada.
func (h *FeedHub) writeLoop(c *feedClient) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("cliente do feed desconectado", zap.Error(err))
			c.conn.Close()
			h.remove(c)
			for range c.send {
			}
			return
		}
	}
}

// Clients devolve o número de clientes conectados.
func (h *FeedHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close desconecta todos os clientes e recusa novas conexões.
func (h *FeedHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	var errs []error
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		errs = append(errs, c.conn.Close())
		h.removeLocked(c)
	}
	return errors.Join(errs...)
}

// Subscribe aceita a conexão websocket e a mantém até o cliente sair.
// GET /transactions/feed
func (h *FeedHub) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("falha no upgrade do websocket", zap.Error(err))
		return
	}

	c := &feedClient{conn: conn, send: make(chan []byte, feedClientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	defer func() {
		h.remove(c)
		conn.Close()
	}()
	// O feed só envia; a leitura existe para detectar a desconexão.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
