package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// link owns one websocket. All writes go through the writer goroutine so a
// slow reader never stalls the tick.
type link struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter

	closeOnce sync.Once
	reasonMu  sync.Mutex
	reason    string
}

func newLink(conn *websocket.Conn, queue int, limit rate.Limit, burst int) *link {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	l := &link{
		ws:   conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
	if limit > 0 {
		if burst <= 0 {
			burst = max(1, int(limit))
		}
		l.limiter = rate.NewLimiter(limit, burst)
	}
	return l
}

func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.send <- data:
		return nil
	case <-l.done:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

func (l *link) allow() bool {
	return l.limiter == nil || l.limiter.Allow()
}

func (l *link) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				l.close("write: " + err.Error())
				return
			}
		case <-ticker.C:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.close("ping: " + err.Error())
				return
			}
		}
	}
}

func (l *link) prepareRead() {
	_ = l.ws.SetReadDeadline(time.Now().Add(pongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// close stops the writer and closes the socket. The first reason wins.
func (l *link) close(reason string) {
	l.closeOnce.Do(func() {
		l.reasonMu.Lock()
		l.reason = reason
		l.reasonMu.Unlock()
		close(l.done)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		_ = l.ws.Close()
	})
}

func (l *link) closeReason() string {
	l.reasonMu.Lock()
	defer l.reasonMu.Unlock()
	return l.reason
}
