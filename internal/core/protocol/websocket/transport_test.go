package websocket

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() protocol.Config {
	cfg := protocol.DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.KeepAlive = 500 * time.Millisecond
	return cfg
}

func dialLoopback(t *testing.T, cfg protocol.Config) (client, server protocol.Conn) {
	t.Helper()

	tr := New(cfg, log.Nop())
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	ln, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	client, err = tr.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	server, err = ln.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	return client, server
}

func mustRequest(t *testing.T, action protocol.Action) *protocol.Message {
	t.Helper()
	m, err := protocol.NewRequest(action, "", nil)
	require.NoError(t, err)
	return m
}

func TestConnRoundTrip(t *testing.T) {
	client, server := dialLoopback(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := protocol.NewRequest(protocol.ActionGetReal, "inst-1",
		protocol.GetRealRequest{Names: []string{"h_m"}})
	require.NoError(t, err)
	require.NoError(t, client.Send(req))

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)
	require.Equal(t, protocol.ActionGetReal, got.Action)

	resp, err := protocol.NewResponse(got,
		protocol.GetRealResponse{Values: map[string]float64{"h_m": 2.5}})
	require.NoError(t, err)
	require.NoError(t, server.Send(resp))

	answer, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, req.ID, answer.ID)

	var payload protocol.GetRealResponse
	require.NoError(t, answer.Bind(&payload))
	require.Equal(t, 2.5, payload.Values["h_m"])
}

func TestSendRejectsOversized(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 64
	client, _ := dialLoopback(t, cfg)

	req, err := protocol.NewRequest(protocol.ActionSetReal, "inst-1",
		protocol.SetRealRequest{Values: map[string]float64{"a_rather_long_variable_name": 1}})
	require.NoError(t, err)
	require.ErrorIs(t, client.Send(req), protocol.ErrMessageTooLarge)
}

func TestPeerCloseSurfacesOnReceive(t *testing.T) {
	client, server := dialLoopback(t, testConfig())
	require.NoError(t, server.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Receive(ctx)
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel still open")
	}
	require.ErrorIs(t, client.Send(mustRequest(t, protocol.ActionPing)), protocol.ErrConnectionClosed)
}

func TestReceiveHonorsContext(t *testing.T) {
	client, _ := dialLoopback(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeepAliveOutlivesReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 300 * time.Millisecond
	cfg.KeepAlive = 100 * time.Millisecond
	client, server := dialLoopback(t, cfg)

	// Idle well past the read timeout; pings must keep both sides up.
	time.Sleep(900 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Send(mustRequest(t, protocol.ActionPing)))
	_, err := server.Receive(ctx)
	require.NoError(t, err)
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	tr := New(testConfig(), log.Nop())
	ln, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, acceptErr := ln.Accept(context.Background())
		done <- acceptErr
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case acceptErr := <-done:
		require.ErrorIs(t, acceptErr, protocol.ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not unblock")
	}
}

func TestHealthEndpoint(t *testing.T) {
	tr := New(testConfig(), log.Nop())
	t.Cleanup(func() { _ = tr.Close() })

	ln, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	httpClient := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestDialURL(t *testing.T) {
	u, err := dialURL("127.0.0.1:8080", false)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:8080/cosim", u)

	u, err = dialURL("example.com:443", true)
	require.NoError(t, err)
	require.Equal(t, "wss://example.com:443/cosim", u)

	u, err = dialURL("wss://example.com/custom", false)
	require.NoError(t, err)
	require.Equal(t, "wss://example.com/custom", u)

	_, err = dialURL("http://example.com", false)
	require.Error(t, err)
}
