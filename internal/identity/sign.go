// ABOUTME: Challenge signing for the node-role connect handshake.
// ABOUTME: Signs the canonical v2 payload and encodes the signature base64-url.

package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// SignConnectPayload signs the canonical node-role handshake payload:
//
//	v2|<deviceId>|node-host|node|node||<signedAt>|<token>|<nonce>
//
// The role/mode literals and the empty scope slot are fixed by the gateway's
// device-auth scheme. Returns the base64-url (no padding) signature.
func SignConnectPayload(key ed25519.PrivateKey, deviceID string, signedAt int64, token, nonce string) string {
	payload := fmt.Sprintf("v2|%s|node-host|node|node||%d|%s|%s", deviceID, signedAt, token, nonce)
	sig := ed25519.Sign(key, []byte(payload))
	return base64.RawURLEncoding.EncodeToString(sig)
}
