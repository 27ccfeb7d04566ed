package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed     = errors.New("ws is closed")
	ErrBufferFull = errors.New("ws write buffer is full")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait / 2

	maxMessageSize = 64 << 10
	bufferSize     = 64
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Message struct {
	MsgType int
	Message []byte
}

type Client struct {
	logger *slog.Logger
	conn   *websocket.Conn

	writeChan chan *Message
	readChan  chan *Message

	closed bool
	lock   sync.Mutex
}

func (ws *Client) Close() error {
	ws.lock.Lock()
	defer ws.lock.Unlock()

	if ws.closed {
		return nil
	}

	metrics.Clients.Dec()
	ws.closed = true
	close(ws.writeChan)

	return ws.conn.Close()
}

// NewWsClient starts the read and write pumps of conn. done is closed once the writer has stopped.
func NewWsClient(logger *slog.Logger, conn *websocket.Conn) (client *Client, done chan struct{}) {
	client = &Client{
		logger: logger,
		conn:   conn,

		writeChan: make(chan *Message, bufferSize),
		readChan:  make(chan *Message),
	}

	metrics.Clients.Inc()

	done = make(chan struct{})

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(client.readChan)
		defer client.Close()

		for {
			msg := &Message{}
			var err error

			msg.MsgType, msg.Message, err = conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("ws read failed", "err", err)
				}
				break
			}

			client.readChan <- msg
		}
	}()

	go func() {
		defer close(done)
		defer func() {
			for range client.writeChan {
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case msg, ok := <-client.writeChan:
				if !ok {
					return
				}

				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(msg.MsgType, msg.Message); err != nil {
					logger.Debug("ws write failed", "err", err)
					_ = client.Close()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					logger.Debug("ws ping failed", "err", err)
					_ = client.Close()
					return
				}
			}
		}
	}()

	return client, done
}

// Send queues msg without blocking; a client that is not keeping up gets ErrBufferFull.
func (ws *Client) Send(msg *Message) error {
	ws.lock.Lock()
	defer ws.lock.Unlock()

	if ws.closed {
		return ErrClosed
	}

	select {
	case ws.writeChan <- msg:
		return nil
	default:
		metrics.Dropped.Inc()
		return ErrBufferFull
	}
}

func (ws *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal ws message: %w", err)
	}

	return ws.Send(&Message{MsgType: websocket.TextMessage, Message: data})
}

func (ws *Client) Read() (*Message, error) {
	msg, ok := <-ws.readChan
	if !ok {
		return nil, ErrClosed
	}

	return msg, nil
}

// use it when you don't need to read messages
func (ws *Client) DrainRead() {
	for {
		_, err := ws.Read()
		if err != nil {
			return
		}
	}
}
