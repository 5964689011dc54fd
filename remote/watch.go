package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskboard/gateway"
)

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *Client) socketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/api/ws"
	return u.String()
}

// Watch streams the user's committed changes to fn until ctx is done or the
// connection drops. It returns nil when ctx ends the watch.
func (c *Client) Watch(ctx context.Context, fn func(gateway.Change)) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.socketURL(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.socketURL(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				c.log.Debug("dropping malformed realtime message", "error", err)
				continue
			}
			return fmt.Errorf("failed to read change: %w", err)
		}
		if msg.Type != "change" {
			continue
		}
		var change gateway.Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			c.log.Debug("dropping malformed change", "error", err)
			continue
		}
		fn(change)
	}
}
