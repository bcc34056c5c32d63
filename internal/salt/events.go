package salt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// EventWatcher tails the salt-api event bus over WebSocket and surfaces
// job-return events in the log. It is purely observational: the rollout
// never depends on the stream, it only makes long waits legible.
type EventWatcher struct {
	endpoint string
	log      *slog.Logger
}

// NewEventWatcher builds a watcher for the /ws endpoint of the given
// salt-api base URL, authenticated with an existing session token.
func NewEventWatcher(apiURL, token string) (*EventWatcher, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + token

	return &EventWatcher{
		endpoint: u.String(),
		log:      slog.Default().With("component", "salt-events"),
	}, nil
}

// Watch streams events until the context is cancelled or the connection
// drops.
func (w *EventWatcher) Watch(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial event bus: %w", err)
	}
	defer conn.Close()

	// salt-api starts streaming only after the client's first message.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("websocket client ready")); err != nil {
		return fmt.Errorf("event bus handshake: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w.log.Info("watching salt event bus")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		w.handle(msg)
	}
}

// handle parses one event frame. Frames arrive as "data: {json}".
func (w *EventWatcher) handle(msg []byte) {
	payload, ok := strings.CutPrefix(string(msg), "data: ")
	if !ok {
		return
	}

	var ev struct {
		Tag  string         `json:"tag"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		w.log.Debug("undecodable event frame", "error", err)
		return
	}

	// Only job returns are interesting during a rollout.
	if strings.HasPrefix(ev.Tag, "salt/job/") && strings.Contains(ev.Tag, "/ret/") {
		w.log.Debug("job return",
			"tag", ev.Tag, "fun", ev.Data["fun"], "id", ev.Data["id"], "success", ev.Data["success"])
	}
}
