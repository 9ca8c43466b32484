package apiclient

import (
	"context"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/pkg/errors"
)

// StreamEvents relays server push events onto the local bus until ctx ends or
// the connection drops. Polling keeps working without it.
func (c *Client) StreamEvents(ctx context.Context, bus eventbus.Bus) error {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	u.RawQuery = url.Values{"access_token": {c.token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "dial event stream")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var evt eventbus.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read event")
		}
		if !evt.Topic.IsValid() {
			continue
		}
		bus.Publish(evt)
	}
}
