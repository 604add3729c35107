package feed

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/jokebox/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// Streamer upgrades a request to a WebSocket and relays the caller's
// JokeEvents as JSON text frames until either side goes away.
type Streamer struct {
	broker   *Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamer allows upgrades from the given origins; "*" allows any.
func NewStreamer(broker *Broker, allowedOrigins []string, logger *slog.Logger) *Streamer {
	return &Streamer{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// Stream serves one connection for user. The caller has already
// authenticated the request.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, user model.AuthUser) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := s.broker.Subscribe(user.ID)
	defer s.broker.Unsubscribe(sub)

	log := s.logger.With(slog.String("user_id", user.ID))
	log.Debug("feed client connected")

	// The client never sends anything meaningful; reading is only how we
	// learn about pongs and close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInboundSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("feed client read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed closed"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug("feed write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Debug("feed client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}
