package quic

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
)

func testConfig() protocol.Config {
	cfg := protocol.DefaultConfig()
	cfg.HandshakeTimeout = 5 * time.Second
	return cfg
}

func dialLoopback(t *testing.T, cfg protocol.Config) (client, server protocol.Conn) {
	t.Helper()

	tr := New(cfg, log.Nop())
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	ln, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	client, err = tr.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	// The listener adopts the connection once the first frame lands.
	hello, err := protocol.NewRequest(protocol.ActionPing, "", nil)
	require.NoError(t, err)
	require.NoError(t, client.Send(hello))

	server, err = ln.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	first, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, protocol.ActionPing, first.Action)

	return client, server
}

func TestConnRoundTrip(t *testing.T) {
	client, server := dialLoopback(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := protocol.NewRequest(protocol.ActionDoStep, "inst-1",
		protocol.DoStepRequest{CurrentTime: 0, StepSize: 0.1, NoRollbackPrior: true})
	require.NoError(t, err)
	require.NoError(t, client.Send(req))

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)

	var payload protocol.DoStepRequest
	require.NoError(t, got.Bind(&payload))
	require.Equal(t, 0.1, payload.StepSize)

	resp, err := protocol.NewResponse(got, protocol.DoStepResponse{Time: 0.1})
	require.NoError(t, err)
	require.NoError(t, server.Send(resp))

	answer, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, req.ID, answer.ID)
}

func TestSendRejectsOversized(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 256
	client, _ := dialLoopback(t, cfg)

	names := make([]string, 64)
	for i := range names {
		names[i] = "a_rather_long_variable_name"
	}
	req, err := protocol.NewRequest(protocol.ActionGetReal, "inst-1",
		protocol.GetRealRequest{Names: names})
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
}

func TestReceiveDrainsBufferedAfterClose(t *testing.T) {
	client, server := dialLoopback(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		m, err := protocol.NewRequest(protocol.ActionListModels, "", nil)
		require.NoError(t, err)
		require.NoError(t, client.Send(m))
	}
	// Let the frames land before the close races them.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, client.Close())

	for i := 0; i < 3; i++ {
		_, err := server.Receive(ctx)
		require.NoError(t, err, "message %d", i)
	}
	_, err := server.Receive(ctx)
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)
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

func TestClosedTransportRefusesWork(t *testing.T) {
	tr := New(testConfig(), log.Nop())
	require.NoError(t, tr.Close())

	_, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.ErrorIs(t, err, protocol.ErrTransportClosed)

	_, err = tr.Dial(context.Background(), "127.0.0.1:1")
	require.ErrorIs(t, err, protocol.ErrTransportClosed)
}

func TestSelfSignedTLSConfig(t *testing.T) {
	cfg, err := SelfSignedTLSConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	require.Equal(t, []string{alpnProtocol}, cfg.NextProtos)
	require.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	cert, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	require.Contains(t, cert.DNSNames, "localhost")
	require.True(t, cert.NotAfter.After(time.Now()))
}
