package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/realtime"
)

const (
	helloTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
	sendBuffer   = 512
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS runs one realtime conversation: hello, then client frames until
// the socket closes.
func (s *server) serveWS(c echo.Context) error {
	r := c.Request()
	if !authOK(r, s.deps.Config.AuthPassword) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	conn, err := wsUpgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return nil
	}
	conn.SetReadLimit(readLimit)

	connID := shortuuid.New()
	ctx := observability.WithConnID(r.Context(), connID)
	log := observability.LoggerFromContext(ctx)
	out := newWSConn(conn, log)
	defer out.close()

	hello, err := readHello(conn)
	if err != nil {
		log.Info("ws hello failed", "error", err)
		out.sendJSON(realtime.Error(err))
		return nil
	}

	conv, err := s.newConversation(ctx, out, hello)
	if err != nil {
		log.Warn("conversation setup failed", "error", err)
		out.sendJSON(realtime.Error(err))
		return nil
	}
	defer conv.close()
	log.Info("conversation started", "agent_id", conv.agent.ID)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read ended", "error", err)
			}
			return nil
		}
		switch mt {
		case websocket.BinaryMessage:
			conv.mic.Push(data)
		case websocket.TextMessage:
			msg, derr := realtime.DecodeClient(data)
			if derr != nil {
				out.sendJSON(realtime.Error(derr))
				continue
			}
			conv.handle(ctx, msg)
		}
	}
}

func readHello(conn *websocket.Conn) (realtime.ClientMessage, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return realtime.ClientMessage{}, errors.Wrap(err, "read hello")
	}
	if mt != websocket.TextMessage {
		return realtime.ClientMessage{}, errors.New("first frame must be hello")
	}
	msg, err := realtime.DecodeClient(data)
	if err != nil {
		return realtime.ClientMessage{}, err
	}
	if msg.Type != realtime.TypeHello {
		return realtime.ClientMessage{}, errors.New("first frame must be hello")
	}
	return msg, nil
}

type outFrame struct {
	mt   int
	data []byte
}

// wsConn owns the write side of a socket. Every frame goes through one
// writer goroutine.
type wsConn struct {
	conn *websocket.Conn
	log  *slog.Logger
	send chan outFrame
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn, log *slog.Logger) *wsConn {
	w := &wsConn{
		conn: conn,
		log:  log,
		send: make(chan outFrame, sendBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.writeLoop()
	return w
}

func (w *wsConn) sendJSON(msg realtime.ServerMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		w.log.Error("encode server message", "error", err, "type", msg.Type)
		return
	}
	w.enqueue(outFrame{mt: websocket.TextMessage, data: b})
}

// WriteSample sends one paced audio frame as a binary message.
func (w *wsConn) WriteSample(s media.Sample) error {
	select {
	case <-w.quit:
		return errors.New("connection closed")
	default:
	}
	w.enqueue(outFrame{mt: websocket.BinaryMessage, data: s.Data})
	return nil
}

func (w *wsConn) enqueue(f outFrame) {
	select {
	case w.send <- f:
	case <-w.quit:
	}
}

func (w *wsConn) writeLoop() {
	defer close(w.done)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case f := <-w.send:
			if err := w.write(f); err != nil {
				w.log.Debug("ws write failed", "error", err)
				w.stop()
				return
			}
		case <-ping.C:
			if err := w.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				w.stop()
				return
			}
		case <-w.quit:
			w.flush()
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		}
	}
}

// flush writes frames that were queued before close.
func (w *wsConn) flush() {
	for {
		select {
		case f := <-w.send:
			if err := w.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (w *wsConn) write(f outFrame) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(f.mt, f.data)
}

func (w *wsConn) stop() {
	w.once.Do(func() { close(w.quit) })
}

// close stops the writer after flushing and closes the socket.
func (w *wsConn) close() {
	w.stop()
	<-w.done
	_ = w.conn.Close()
}
