package feed

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/yieldex/onchain/pkg/types"
)

// feedServer is a minimal in-process stand-in for the analytics feed:
// it challenges the client, verifies the wallet signature, issues a
// session token, pushes one recommendation, and records whatever the
// client sends back.
type feedServer struct {
	t         *testing.T
	challenge string

	mu       sync.Mutex
	received []envelope
}

func (s *feedServer) handler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Type: msgAuthChallenge, Challenge: s.challenge}); err != nil {
		s.t.Errorf("failed to send challenge: %v", err)
		return
	}

	var auth envelope
	if err := conn.ReadJSON(&auth); err != nil {
		s.t.Errorf("failed to read auth: %v", err)
		return
	}
	if auth.Type != msgAuth {
		conn.WriteJSON(envelope{Type: "auth_failed", Error: "expected auth message"})
		return
	}
	if !s.verify(auth.Wallet, auth.Signature) {
		conn.WriteJSON(envelope{Type: "auth_failed", Error: "bad signature"})
		return
	}

	claims := &SessionClaims{Wallet: auth.Wallet}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		s.t.Errorf("failed to mint token: %v", err)
		return
	}
	if err := conn.WriteJSON(envelope{Type: msgAuthOK, Token: token}); err != nil {
		s.t.Errorf("failed to send auth_ok: %v", err)
		return
	}

	rec := types.Recommendation{
		ID:     "rec-42",
		Asset:  "USDC",
		Amount: 1000,
		SourcePool: types.PoolRef{
			Chain:    "Ethereum",
			Protocol: "aave-v3",
			Asset:    "USDC",
		},
		DestPool: types.PoolRef{
			Chain:    "Arbitrum",
			Protocol: "compound-v3",
			Asset:    "USDC",
		},
	}
	if err := conn.WriteJSON(envelope{Type: msgRecommendation, Recommendation: &rec}); err != nil {
		s.t.Errorf("failed to send recommendation: %v", err)
		return
	}

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
	}
}

func (s *feedServer) verify(wallet, sigHex string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return false
	}
	sig[64] -= 27
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(s.challenge), s.challenge)
	pub, err := crypto.SigToPub(crypto.Keccak256Hash([]byte(msg)).Bytes(), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub).Hex() == wallet
}

func (s *feedServer) results() []envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope, 0, len(s.received))
	for _, msg := range s.received {
		if msg.Type == msgResult {
			out = append(out, msg)
		}
	}
	return out
}

func TestClientHandshakeAndStream(t *testing.T) {
	server := &feedServer{t: t, challenge: "login-please-1234"}
	ts := httptest.NewServer(http.HandlerFunc(server.handler))
	defer ts.Close()

	auth := newTestAuthenticator(t)
	client := NewClient(Config{
		URL:  "ws" + strings.TrimPrefix(ts.URL, "http"),
		Auth: auth,
		OnError: func(err error) {
			t.Logf("feed error: %v", err)
		},
	})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("client should report connected")
	}

	session := client.Session()
	if session == nil {
		t.Fatal("expected session claims after handshake")
	}
	if session.Wallet != auth.Address() {
		t.Fatalf("session wallet = %s, want %s", session.Wallet, auth.Address())
	}

	select {
	case rec := <-client.Recommendations():
		if rec.ID != "rec-42" {
			t.Fatalf("recommendation ID = %s, want rec-42", rec.ID)
		}
		if rec.DestPool.Chain != "Arbitrum" {
			t.Fatalf("destination chain = %s, want Arbitrum", rec.DestPool.Chain)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recommendation")
	}

	result := &types.ExecutionResult{
		RecommendationID: "rec-42",
		FinalState:       types.StateDone,
		FailedStep:       -1,
	}
	if err := client.PublishResult(result); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if results := server.results(); len(results) == 1 {
			if results[0].Result.RecommendationID != "rec-42" {
				t.Fatalf("published ID = %s, want rec-42", results[0].Result.RecommendationID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never received the execution result")
}

func TestClientRejectedHandshake(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(envelope{Type: msgAuthChallenge, Challenge: "x"})
		var auth envelope
		conn.ReadJSON(&auth)
		conn.WriteJSON(envelope{Type: "auth_failed", Error: "wallet not allowed"})
	}))
	defer ts.Close()

	client := NewClient(Config{
		URL:  "ws" + strings.TrimPrefix(ts.URL, "http"),
		Auth: newTestAuthenticator(t),
	})
	defer client.Close()

	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if !strings.Contains(err.Error(), "wallet not allowed") {
		t.Fatalf("error should carry the server reason, got: %v", err)
	}
	if client.IsConnected() {
		t.Fatal("client should not report connected after rejection")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	auth := newTestAuthenticator(t)

	var mu sync.Mutex
	connections := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		conn.WriteJSON(envelope{Type: msgAuthChallenge, Challenge: "c"})
		var authMsg envelope
		if err := conn.ReadJSON(&authMsg); err != nil {
			return
		}
		conn.WriteJSON(envelope{Type: msgAuthOK})

		// First connection dies right after the handshake; the second
		// delivers a recommendation and stays up.
		if n == 1 {
			return
		}
		conn.WriteJSON(envelope{Type: msgRecommendation, Recommendation: &types.Recommendation{ID: "rec-after-drop"}})
		for {
			var msg envelope
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	client := NewClient(Config{
		URL:               "ws" + strings.TrimPrefix(ts.URL, "http"),
		Auth:              auth,
		ReconnectInterval: 10 * time.Millisecond,
		OnError: func(err error) {
			t.Logf("feed error: %v", err)
		},
	})
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case rec := <-client.Recommendations():
		if rec.ID != "rec-after-drop" {
			t.Fatalf("recommendation ID = %s, want rec-after-drop", rec.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recommendation after reconnect")
	}

	mu.Lock()
	n := connections
	mu.Unlock()
	if n < 2 {
		t.Fatalf("server saw %d connections, want at least 2", n)
	}
}

func TestPublishResultWhenDisconnected(t *testing.T) {
	client := NewClient(Config{Auth: newTestAuthenticator(t)})
	if err := client.PublishResult(&types.ExecutionResult{}); err == nil {
		t.Fatal("expected error when publishing without a connection")
	}
}
