package bitmart

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"marketsync/internal/exchange"
	"marketsync/internal/stream"
)

const (
	// loginHash registers the login request on the private connection
	loginHash = "login"
	// authHash is the future every private subscriber waits on
	authHash = "authenticated"
	authPath = "bitmart.WebSocket"
)

// Sign returns hex(HMAC-SHA256(secret, payload))
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate logs the private connection in. Concurrent and repeated calls
// share one login request; after a rejection the next call logs in again.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

func (c *Client) authenticate(ctx context.Context) (*stream.Connection, error) {
	creds := c.cfg.Credentials
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: %s requires apiKey, secret and uid", exchange.ErrAuthentication, c.cfg.Exchange.Name)
	}
	conn, err := c.connection(ctx, c.cfg.PrivateURL())
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	request := map[string]any{
		"op": loginHash,
		"args": []string{
			creds.APIKey,
			timestamp,
			Sign(creds.Secret, timestamp+"#"+creds.UID+"#"+authPath),
		},
	}
	f, err := conn.WatchOnce(ctx, authHash, request, loginHash)
	if err != nil {
		return nil, err
	}
	if _, err := f.Await(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// handleAuthenticate settles the login future from a login event
func (c *Client) handleAuthenticate(conn *stream.Connection, raw []byte) {
	if success, ok := safeValue(raw, "success"); ok && success == "false" {
		err := &exchange.FrameError{
			Class:    exchange.ErrAuthentication,
			Message:  "login rejected",
			Feedback: string(exchange.Bitmart) + " " + string(raw),
		}
		c.rejectAuthentication(conn, err)
		return
	}
	conn.Resolve(authHash, append([]byte(nil), raw...))
	c.entry.Info("authenticated")
}

// rejectAuthentication fails the login future and forgets the login request
// so the next Authenticate sends a fresh one
func (c *Client) rejectAuthentication(conn *stream.Connection, err error) {
	conn.Reject(authHash, err)
	conn.Unsubscribe(loginHash)
	c.entry.WithError(err).Warn("authentication failed")
}
