package feed

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	auth, err := NewAuthenticator(hex.EncodeToString(crypto.FromECDSA(key)))
	if err != nil {
		t.Fatalf("failed to build authenticator: %v", err)
	}
	return auth
}

func TestSignChallengeRecoversSigner(t *testing.T) {
	auth := newTestAuthenticator(t)

	challenge := "feed-login-7f3a"
	sigHex, err := auth.SignChallenge(challenge)
	if err != nil {
		t.Fatalf("SignChallenge: %v", err)
	}
	if !strings.HasPrefix(sigHex, "0x") {
		t.Fatalf("signature missing 0x prefix: %s", sigHex)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery id = %d, want 27 or 28", sig[64])
	}

	sig[64] -= 27
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(challenge), challenge)
	pub, err := crypto.SigToPub(crypto.Keccak256Hash([]byte(msg)).Bytes(), sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != auth.Address() {
		t.Fatalf("recovered %s, want %s", got, auth.Address())
	}
}

func TestNewAuthenticatorAccepts0xPrefix(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	raw := hex.EncodeToString(crypto.FromECDSA(key))

	plain, err := NewAuthenticator(raw)
	if err != nil {
		t.Fatalf("NewAuthenticator(raw): %v", err)
	}
	prefixed, err := NewAuthenticator("0x" + raw)
	if err != nil {
		t.Fatalf("NewAuthenticator(0x): %v", err)
	}
	if plain.Address() != prefixed.Address() {
		t.Fatalf("addresses differ: %s vs %s", plain.Address(), prefixed.Address())
	}
}

func TestNewAuthenticatorRejectsGarbage(t *testing.T) {
	if _, err := NewAuthenticator("not-a-key"); err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func mintSessionToken(t *testing.T, wallet string, expiresAt *time.Time) string {
	t.Helper()
	claims := &SessionClaims{Wallet: wallet}
	if expiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

func TestParseSessionToken(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	token := mintSessionToken(t, "0xAbCd", &exp)

	claims, err := ParseSessionToken(token)
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if claims.Wallet != "0xAbCd" {
		t.Fatalf("wallet = %q, want %q", claims.Wallet, "0xAbCd")
	}
	if claims.Expiring(time.Minute) {
		t.Fatal("token with an hour left should not be expiring within a minute")
	}
	if !claims.Expiring(2 * time.Hour) {
		t.Fatal("token with an hour left should be expiring within two hours")
	}
}

func TestParseSessionTokenNoExpiry(t *testing.T) {
	claims, err := ParseSessionToken(mintSessionToken(t, "0x1", nil))
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if claims.Expiring(24 * time.Hour) {
		t.Fatal("token without expiry should never report expiring")
	}
}

func TestParseSessionTokenRejectsMalformed(t *testing.T) {
	if _, err := ParseSessionToken("definitely.not.a.jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
