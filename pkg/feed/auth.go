// Package feed streams recommendations from the analytics service and
// reports execution results back. Sessions are authenticated by signing a
// server challenge with the agent's wallet key; the server answers with a
// JWT session token.
package feed

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

// Authenticator proves wallet ownership to the feed server.
type Authenticator struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewAuthenticator derives the signer identity from a hex private key.
func NewAuthenticator(privateKeyHex string) (*Authenticator, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	publicKey := privateKey.Public().(*ecdsa.PublicKey)
	return &Authenticator{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the wallet address presented to the server.
func (a *Authenticator) Address() string {
	return a.address.Hex()
}

// SignChallenge signs a server challenge as an Ethereum personal message
// and returns the 65-byte signature hex-encoded with recovery id 27/28.
func (a *Authenticator) SignChallenge(challenge string) (string, error) {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(challenge), challenge)
	hash := crypto.Keccak256Hash([]byte(msg))
	sig, err := crypto.Sign(hash.Bytes(), a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SessionClaims is the payload of the feed's session token.
type SessionClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// ParseSessionToken decodes a session token without verifying its
// signature: the server signs with its own key and the client only needs
// the wallet binding and expiry for proactive re-authentication.
func ParseSessionToken(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	return claims, nil
}

// Expiring reports whether the session ends within the leeway window.
// Tokens without an expiry never expire.
func (c *SessionClaims) Expiring(leeway time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(c.ExpiresAt.Time) < leeway
}
