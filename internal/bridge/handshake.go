// ABOUTME: The signed connect handshake that registers this process as a node.
// ABOUTME: Waits for the challenge nonce, signs it, and awaits the connect response.

package bridge

import (
	"context"
	"fmt"
	"runtime"

	"github.com/YHlorra/clawpal/internal/identity"
)

// Protocol version bounds advertised in the connect request.
const (
	minProtocol = 3
	maxProtocol = 3
)

type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Auth        connectAuth   `json:"auth"`
	Role        string        `json:"role"`
	Scopes      []string      `json:"scopes"`
	Caps        []string      `json:"caps"`
	Commands    []string      `json:"commands"`
	Device      connectDevice `json:"device"`
	Client      connectClient `json:"client"`
}

type connectAuth struct {
	Token string `json:"token"`
}

type connectDevice struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce,omitempty"`
}

type connectClient struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
	Version     string `json:"version"`
	InstanceID  string `json:"instanceId"`
}

// handshake performs the node-role connect sequence on sess. The connection
// is not usable until this returns nil. Failures carry the specific cause:
// key material problems are caught before dialing, so here it is transport
// failure, a non-ok connect response, or the bounded await expiring.
func (c *Client) handshake(ctx context.Context, sess *Session, creds identity.Credentials) error {
	// The gateway sends connect.challenge right after the socket opens, but
	// is allowed to issue no challenge at all; proceed with an empty nonce
	// after the bounded wait.
	nonce := sess.awaitChallenge(ctx, c.cfg.ChallengeWait)

	signedAt := c.now().UnixMilli()
	signature := identity.SignConnectPayload(creds.Key, creds.DeviceID, signedAt, creds.Token, nonce)

	params := connectParams{
		MinProtocol: minProtocol,
		MaxProtocol: maxProtocol,
		Auth:        connectAuth{Token: creds.Token},
		Role:        "node",
		Scopes:      []string{},
		Caps:        []string{"system"},
		Commands:    c.cfg.Commands,
		Device: connectDevice{
			ID:        creds.DeviceID,
			PublicKey: creds.PublicKeyB64,
			Signature: signature,
			SignedAt:  signedAt,
			Nonce:     nonce,
		},
		Client: connectClient{
			ID:          "node-host",
			DisplayName: "ClawPal",
			Platform:    runtime.GOOS,
			Mode:        "node",
			Version:     c.cfg.Version,
			InstanceID:  sess.nodeID,
		},
	}

	payload, err := c.sendAndAwait(ctx, methodConnect, params)
	if err != nil {
		return fmt.Errorf("node handshake: %w", err)
	}

	// Not interpreted yet; kept for future protocol evolution.
	sess.hello = payload
	return nil
}
