package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/observability"
)

const eventWriteTimeout = 5 * time.Second

type cartEvent struct {
	Cart cartResponse `json:"cart"`
	Demo cartResponse `json:"demo"`
}

// cartEvents streams the session's carts after every change. The first
// message is the current state. The stream ends with a going-away close
// frame when the session is closed.
func (s *httpServer) cartEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.environment == config.EnvDev,
	})
	if err != nil {
		observability.Log().Error("websocket accept failed", observability.F("error", err))
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	release := s.sessions.Hold(sess)
	defer release()

	changed := make(chan struct{}, 1)
	signal := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubRemote := sess.Remote.Subscribe(signal)
	defer unsubRemote()
	unsubDemo := sess.Demo.Subscribe(signal)
	defer unsubDemo()

	// Client frames are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		event := cartEvent{
			Cart: remoteCartResponse(sess.Remote),
			Demo: demoCartResponse(sess.Demo),
		}
		if err := writeEvent(ctx, conn, event); err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				observability.Log().Debug("cart event stream ended",
					observability.F("session", sess.ID),
					observability.F("error", err))
			}
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-sess.Done():
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
			return
		case <-changed:
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event cartEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, encodeJSON(event))
}
