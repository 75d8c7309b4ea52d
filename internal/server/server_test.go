package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"MatrixConnectionRelay/internal/config"
	"MatrixConnectionRelay/internal/relaylog"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testConfig(t *testing.T, upstreamURL string) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.UpstreamURL = upstreamURL
	cfg.LogPath = filepath.Join(t.TempDir(), "debug_log.txt")
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func newServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()

	s, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func regbutton(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/regbutton" {
			http.NotFound(w, r)
			return
		}
		var in struct {
			InputData string `json:"input_data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		if in.InputData == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"bad"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"hello"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.10:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// routes
// ---------------------------------------------------------------------------

func TestGetServesPage(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))

	rr := do(s.Handler(), http.MethodGet, "/", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `id="matrixForm"`)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestPostRelaysAndLogs(t *testing.T) {
	cfg := testConfig(t, regbutton(t).URL+"/regbutton")
	s := newServer(t, cfg)

	rr := do(s.Handler(), http.MethodPost, "/", `{"input_data":"hi"}`, map[string]string{"X-Request-ID": "e2e-1"})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"message":"hello"}`, rr.Body.String())

	entries, err := relaylog.ReadLastEntries(cfg.LogPath, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, relaylog.LabelReceived, entries[0].Label)
	require.Equal(t, `{"input_data":"hi"}`, entries[0].Payload)
	require.Equal(t, relaylog.LabelUpstream, entries[1].Label)
	require.Equal(t, `{"message":"hello"}`, entries[1].Payload)
	require.Equal(t, "e2e-1", entries[1].RequestID)
}

func TestUpstreamApplicationErrorPassesThrough(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))

	rr := do(s.Handler(), http.MethodPost, "/", `{"input_data":""}`, nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, `{"error":"bad"}`, rr.Body.String())
}

func TestOversizedAnswerKeepsLogReadable(t *testing.T) {
	big := `{"message":"` + strings.Repeat("m", 9<<20) + `"}`
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-Request-ID") == "big" {
			_, _ = io.WriteString(w, big)
			return
		}
		_, _ = io.WriteString(w, `{"message":"hello"}`)
	}))
	t.Cleanup(up.Close)

	cfg := testConfig(t, up.URL)
	s := newServer(t, cfg)
	h := s.Handler()

	rr := do(h, http.MethodPost, "/", `{"input_data":"hi"}`, map[string]string{"X-Request-ID": "big"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rr.Body.String(), len(big))
	do(h, http.MethodPost, "/", `{"input_data":"hi"}`, map[string]string{"X-Request-ID": "after-1"})
	do(h, http.MethodPost, "/", `{"input_data":"hi"}`, map[string]string{"X-Request-ID": "after-2"})

	entries, err := relaylog.ReadLastEntries(cfg.LogPath, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "after-2", entries[1].RequestID)
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := "http://" + ln.Addr().String() + "/regbutton"
	require.NoError(t, ln.Close())

	s := newServer(t, testConfig(t, dead))
	h := s.Handler()

	rr := do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	// The browser cannot decode this as JSON, so the page only logs to console.
	var v interface{}
	require.Error(t, json.Unmarshal(rr.Body.Bytes(), &v))

	stats := do(h, http.MethodGet, "/api/relay/stats", "", nil)
	require.Contains(t, stats.Body.String(), `"failed":1`)
}

func TestOtherMethodsNotAllowed(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))

	rr := do(s.Handler(), http.MethodPut, "/", `{"input_data":"hi"}`, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOversizedBodyRejectedBeforeForward(t *testing.T) {
	cfg := testConfig(t, regbutton(t).URL+"/regbutton")
	cfg.MaxBodyBytes = 16
	s := newServer(t, cfg)

	rr := do(s.Handler(), http.MethodPost, "/", `{"input_data":"far too long for the cap"}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	entries, err := relaylog.ReadLastEntries(cfg.LogPath, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHealthAndStats(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))
	h := s.Handler()

	require.JSONEq(t, `{"status":"ok"}`, do(h, http.MethodGet, "/healthz", "", nil).Body.String())

	do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil)
	rr := do(h, http.MethodGet, "/api/relay/stats", "", nil)
	require.Contains(t, rr.Body.String(), `"forwarded":1`)
}

func TestRelayLogHiddenWithoutAuth(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))
	h := s.Handler()

	do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil)

	rr := do(h, http.MethodGet, "/api/relay/log", "", map[string]string{"Origin": "https://elsewhere.example"})
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.NotContains(t, rr.Body.String(), "hi")
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))

	rr := do(s.Handler(), http.MethodOptions, "/", "", map[string]string{
		"Origin":                        "https://matrix.example",
		"Access-Control-Request-Method": http.MethodPost,
	})

	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

// ---------------------------------------------------------------------------
// optional guards
// ---------------------------------------------------------------------------

func TestRateLimitEnabled(t *testing.T) {
	cfg := testConfig(t, regbutton(t).URL+"/regbutton")
	cfg.RateLimit = config.RateConfig{PerSecond: 0.001, Burst: 1}
	s := newServer(t, cfg)
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil).Code)

	// The page itself is never limited.
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/", "", nil).Code)
}

func TestBearerGuardEnabled(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(t.TempDir(), "jwt.pub")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0644))

	cfg := testConfig(t, regbutton(t).URL+"/regbutton")
	cfg.Auth = config.AuthConfig{PublicKeyFile: pubPath, Issuer: "matrix-auth", Audience: "matrix-relay"}
	s := newServer(t, cfg)
	h := s.Handler()

	rr := do(h, http.MethodPost, "/", `{"input_data":"hi"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "cli",
		Issuer:    "matrix-auth",
		Audience:  jwt.ClaimStrings{"matrix-relay"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(key)
	require.NoError(t, err)

	bearer := map[string]string{"Authorization": "Bearer " + token}
	rr = do(h, http.MethodPost, "/", `{"input_data":"hi"}`, bearer)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/relay/log", "", nil).Code)
	rr = do(h, http.MethodGet, "/api/relay/log?limit=1", "", bearer)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `Upstream Response:`)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/", "", nil).Code)
}

func TestMissingPublicKeyFailsStartup(t *testing.T) {
	cfg := testConfig(t, regbutton(t).URL+"/regbutton")
	cfg.Auth = config.AuthConfig{PublicKeyFile: filepath.Join(t.TempDir(), "absent.pub"), Issuer: "i", Audience: "a"}

	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// lifecycle
// ---------------------------------------------------------------------------

func TestServeStopsOnCancel(t *testing.T) {
	s := newServer(t, testConfig(t, regbutton(t).URL+"/regbutton"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	res, err := http.Post("http://"+ln.Addr().String()+"/", "application/json", strings.NewReader(`{"input_data":"hi"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.Equal(t, `{"message":"hello"}`, string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
