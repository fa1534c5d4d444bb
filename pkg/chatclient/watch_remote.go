package chatclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"novachat/internal/domain"
)

// watchRemote follows a conversation through the primary service's
// websocket watch feed. Each frame is the full current conversation.
func watchRemote(ctx context.Context, apiURL, self, peer string) error {
	u, err := wsURL(apiURL, self, peer)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial watch feed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var msgs []domain.Message
		if err := conn.ReadJSON(&msgs); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch feed closed: %w", err)
		}
		printConversation(msgs)
	}
}

func wsURL(apiURL, self, peer string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/watch"
	q := url.Values{}
	q.Set("view", "messages")
	q.Set("self", domain.NormalizeUsername(self))
	q.Set("peer", domain.NormalizeUsername(peer))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
