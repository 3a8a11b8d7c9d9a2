// ABOUTME: Tests for device identity persistence and credential resolution.
// ABOUTME: Covers key generation, PEM parsing failures, and token lookup.

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YHlorra/clawpal/internal/config"
)

func pemKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestEnsureDevice_GeneratesOnce(t *testing.T) {
	dir := t.TempDir()

	dev1, err := EnsureDevice(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, dev1.DeviceID)
	assert.NotEmpty(t, dev1.PublicKey)

	// Second call loads the same identity instead of regenerating.
	dev2, err := EnsureDevice(dir)
	require.NoError(t, err)
	assert.Equal(t, dev1.DeviceID, dev2.DeviceID)
	assert.Equal(t, dev1.PrivateKeyPEM, dev2.PrivateKeyPEM)
}

func TestParseSigningKey(t *testing.T) {
	priv, pemText := pemKey(t)

	key, err := ParseSigningKey(pemText)
	require.NoError(t, err)
	assert.True(t, priv.Equal(key))
}

func TestParseSigningKey_Errors(t *testing.T) {
	_, err := ParseSigningKey("")
	assert.ErrorIs(t, err, ErrNoSigningKey)

	_, err = ParseSigningKey("not pem at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not PEM")
}

func TestStatic_Resolve(t *testing.T) {
	_, pemText := pemKey(t)

	creds, err := Static{Bundle: RemoteBundle{
		Token:         "tok-1",
		DeviceID:      "dev-1",
		PrivateKeyPEM: pemText,
	}}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "tok-1", creds.Token)
	assert.Equal(t, "dev-1", creds.DeviceID)
	assert.NotEmpty(t, creds.PublicKeyB64)
}

func TestStatic_Resolve_BadKey(t *testing.T) {
	_, err := Static{Bundle: RemoteBundle{PrivateKeyPEM: "garbage"}}.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing remote Ed25519 private key")
}

func TestLocal_Resolve_ReadsToken(t *testing.T) {
	openclaw := t.TempDir()
	p := config.Paths{
		OpenClawDir: openclaw,
		ConfigPath:  filepath.Join(openclaw, "openclaw.json"),
	}
	require.NoError(t, config.WriteJSON(p.ConfigPath, map[string]any{
		"gateway": map[string]any{"auth": map[string]any{"token": "local-token"}},
	}))

	creds, err := Local{Paths: p}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "local-token", creds.Token)
	assert.NotEmpty(t, creds.DeviceID)
	assert.NotNil(t, creds.Key)
}

func TestSignConnectPayload_VerifiesAgainstCanonicalString(t *testing.T) {
	priv, _ := pemKey(t)

	sigB64 := SignConnectPayload(priv, "dev-42", 1700000000123, "tok", "nonce-abc")

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(sigB64, "="), "signature must be unpadded")

	payload := "v2|dev-42|node-host|node|node||1700000000123|tok|nonce-abc"
	pub := priv.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, []byte(payload), sig))
}
