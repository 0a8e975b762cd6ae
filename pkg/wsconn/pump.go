// Package wsconn runs the read and write loops shared by both ends of a board
// websocket.
package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Pump runs a read loop and a write loop on conn until either fails or ctx is
// done. Text frames are passed to onFrame; outbound frames are taken from
// send. The connection is closed when Pump returns.
func Pump(
	ctx context.Context,
	conn *websocket.Conn,
	send <-chan []byte,
	onFrame func([]byte) error,
) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var readErr error
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			mt, p, err := conn.ReadMessage()
			if err != nil {
				readErr = err
				return
			}
			if mt != websocket.TextMessage {
				slog.Debug("ignoring non-text frame", "type", mt)
				continue
			}
			if err := onFrame(p); err != nil {
				slog.Warn("failed to handle frame", "err", err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()

		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case frame, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					slog.Debug("failed to write message", "err", err)
					return
				}
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					slog.Debug("failed to ping", "err", err)
					return
				}
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
		}
	}()

	wg.Wait()
	if parent.Err() != nil || websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return fmt.Errorf("failed to read message: %w", readErr)
}
