// ABOUTME: Device identity and credential resolution for the node bridge.
// ABOUTME: Loads or generates the Ed25519 device key and reads the gateway token.

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/YHlorra/clawpal/internal/config"
)

// ErrNoSigningKey indicates the key material was empty.
var ErrNoSigningKey = errors.New("no signing key material")

// Credentials is the opaque bundle the handshake consumes.
type Credentials struct {
	Token        string
	DeviceID     string
	Key          ed25519.PrivateKey
	PublicKeyB64 string
}

// RemoteBundle carries credentials for a remote gateway session, typically
// obtained over an SSH tunnel. PrivateKeyPEM is a PKCS#8 Ed25519 key.
type RemoteBundle struct {
	Token         string `json:"token"`
	DeviceID      string `json:"deviceId"`
	PrivateKeyPEM string `json:"privateKeyPem"`
}

// Source resolves credentials for one connection attempt.
type Source interface {
	Resolve() (Credentials, error)
}

// Static wraps an already-resolved bundle as a Source.
type Static struct {
	Bundle RemoteBundle
}

// Resolve parses the bundle's key material.
func (s Static) Resolve() (Credentials, error) {
	key, err := ParseSigningKey(s.Bundle.PrivateKeyPEM)
	if err != nil {
		return Credentials{}, fmt.Errorf("parsing remote Ed25519 private key: %w", err)
	}
	return Credentials{
		Token:        s.Bundle.Token,
		DeviceID:     s.Bundle.DeviceID,
		Key:          key,
		PublicKeyB64: PublicKeyBase64(key),
	}, nil
}

// Local resolves credentials from the OpenClaw home: the device identity
// file and the token stored at gateway.auth.token in openclaw.json.
type Local struct {
	Paths config.Paths
}

// Resolve loads (or creates) the device identity and reads the token.
// A missing token is not an error; the gateway decides whether to accept
// an unauthenticated node.
func (l Local) Resolve() (Credentials, error) {
	dev, err := EnsureDevice(l.Paths.OpenClawDir)
	if err != nil {
		return Credentials{}, err
	}

	key, err := ParseSigningKey(dev.PrivateKeyPEM)
	if err != nil {
		return Credentials{}, fmt.Errorf("parsing device Ed25519 private key: %w", err)
	}

	return Credentials{
		Token:        tokenFromConfig(l.Paths),
		DeviceID:     dev.DeviceID,
		Key:          key,
		PublicKeyB64: PublicKeyBase64(key),
	}, nil
}

// tokenFromConfig digs gateway.auth.token out of openclaw.json.
func tokenFromConfig(p config.Paths) string {
	cfg := config.ReadOpenClawConfig(p)
	gateway, _ := cfg["gateway"].(map[string]any)
	auth, _ := gateway["auth"].(map[string]any)
	token, _ := auth["token"].(string)
	return token
}

// Device is the persisted device identity.
type Device struct {
	DeviceID      string `json:"deviceId"`
	PublicKey     string `json:"publicKey"`
	PrivateKeyPEM string `json:"privateKeyPem"`
}

// devicePath returns the identity file location under the OpenClaw home.
func devicePath(openclawDir string) string {
	return filepath.Join(openclawDir, "identity", "device.json")
}

// LoadDevice reads the device identity file.
func LoadDevice(openclawDir string) (Device, error) {
	var dev Device
	path := devicePath(openclawDir)
	if err := config.ReadJSON(path, &dev); err != nil {
		return Device{}, err
	}
	if dev.DeviceID == "" || dev.PrivateKeyPEM == "" {
		return Device{}, fmt.Errorf("device identity at %s is incomplete", path)
	}
	return dev, nil
}

// EnsureDevice loads the device identity, generating and persisting a new
// one when none exists yet.
func EnsureDevice(openclawDir string) (Device, error) {
	path := devicePath(openclawDir)
	if _, err := os.Stat(path); err == nil {
		return LoadDevice(openclawDir)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Device{}, fmt.Errorf("generating device key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return Device{}, fmt.Errorf("encoding device key: %w", err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	dev := Device{
		DeviceID:      uuid.New().String(),
		PublicKey:     base64.RawURLEncoding.EncodeToString(pub),
		PrivateKeyPEM: pemText,
	}
	if err := config.WriteJSON(path, &dev); err != nil {
		return Device{}, fmt.Errorf("persisting device identity: %w", err)
	}
	return dev, nil
}

// ParseSigningKey decodes a PKCS#8 PEM Ed25519 private key.
func ParseSigningKey(pemText string) (ed25519.PrivateKey, error) {
	if pemText == "" {
		return nil, ErrNoSigningKey
	}
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("key material is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#8 key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, expected Ed25519", parsed)
	}
	return key, nil
}

// PublicKeyBase64 returns the key's public half, base64-url encoded
// without padding, as the gateway expects it.
func PublicKeyBase64(key ed25519.PrivateKey) string {
	pub := key.Public().(ed25519.PublicKey)
	return base64.RawURLEncoding.EncodeToString(pub)
}
