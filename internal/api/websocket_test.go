package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/casement-core/internal/relay"
)

func wsURL(ts *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/relay"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dialRelay(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialling relay: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("writing %q: %v", text, err)
	}
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return string(frame)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelayRequiresCredential(t *testing.T) {
	_, ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %v, want 401", resp)
	}
	resp.Body.Close()

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, "garbage"), nil)
	if err == nil {
		t.Fatal("expected handshake to fail with a malformed token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %v, want 401", resp)
	}
	resp.Body.Close()
}

func TestRelayAcceptsAuthorizationHeader(t *testing.T) {
	srv, ts := newTestServer(t)
	tok := registerUser(t, ts.URL, "headeruser", "secret")

	header := http.Header{"Authorization": {"Bearer " + tok.AccessToken}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), header)
	if err != nil {
		t.Fatalf("dialling with header credential: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	sendText(t, conn, "ROLE:Observer")
	waitFor(t, "observer classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleObserver) == 1
	})
}

func TestRelayEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t)

	deviceTok := registerUser(t, ts.URL, "device", "secret")
	observerTok := registerUser(t, ts.URL, "watcher", "secret")

	device := dialRelay(t, wsURL(ts, deviceTok.AccessToken))
	sendText(t, device, "ROLE:Device")
	waitFor(t, "device classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleDevice) == 1
	})

	observer := dialRelay(t, wsURL(ts, observerTok.AccessToken))
	sendText(t, observer, "ROLE:Observer")
	sendText(t, observer, "USER:usr-watcher")
	waitFor(t, "observer classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleObserver) == 1
	})

	// A device report fans out to the observer as a state snapshot.
	sendText(t, device, `{"temperature":26.5,"light":120,"window":"Open","mode":"Auto"}`)
	snapshot := readText(t, observer)
	for _, want := range []string{`"temperature":26.5`, `"window":"Open"`, `"updated_at"`} {
		if !strings.Contains(snapshot, want) {
			t.Errorf("snapshot %s missing %s", snapshot, want)
		}
	}

	// An observer command reaches the device verbatim.
	sendText(t, observer, "Close")
	if got := readText(t, device); got != "Close" {
		t.Errorf("device received %q, want Close", got)
	}

	// Non-command observer chatter never reaches the device; a second
	// command proves the connection is still healthy and ordered.
	sendText(t, observer, "make it so")
	sendText(t, observer, "Auto")
	if got := readText(t, device); got != "Auto" {
		t.Errorf("device received %q, want Auto", got)
	}
}

func TestRelayProtocolViolationClosesConnection(t *testing.T) {
	srv, ts := newTestServer(t)
	tok := registerUser(t, ts.URL, "strict", "secret")

	conn := dialRelay(t, wsURL(ts, tok.AccessToken))
	sendText(t, conn, "ROLE:Device")
	waitFor(t, "classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleDevice) == 1
	})

	sendText(t, conn, "ROLE:Observer")

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after reclassification attempt")
	}

	waitFor(t, "unregistration", func() bool {
		return srv.engine.Registry().Count(relay.RoleDevice) == 0
	})
}

func TestRelayDegradedModeSkipsCredentialCheck(t *testing.T) {
	srv, ts := newDegradedServer(t)

	// No token at all: with the credential store down the relay still
	// brokers traffic.
	conn := dialRelay(t, wsURL(ts, ""))
	sendText(t, conn, "ROLE:Device")
	waitFor(t, "device classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleDevice) == 1
	})

	sendText(t, conn, `{"temperature":20,"light":5,"window":"Closed","mode":"Manual"}`)
	waitFor(t, "state applied", func() bool {
		return srv.engine.Store().Current().Mode == relay.ModeManual
	})
}

func TestRelayDisconnectUnregisters(t *testing.T) {
	srv, ts := newTestServer(t)
	tok := registerUser(t, ts.URL, "transient", "secret")

	conn := dialRelay(t, wsURL(ts, tok.AccessToken))
	sendText(t, conn, "ROLE:Observer")
	waitFor(t, "observer classification", func() bool {
		return srv.engine.Registry().Count(relay.RoleObserver) == 1
	})

	conn.Close()
	waitFor(t, "unregistration", func() bool {
		return srv.engine.Registry().Count(relay.RoleObserver) == 0
	})
}
