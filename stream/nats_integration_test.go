//go:build integration
// +build integration

package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/record"
)

func natsDescriptor(url, subject string) config.StreamDescriptor {
	return config.StreamDescriptor{
		Name:             "alerts",
		Transport:        config.TransportNATS,
		URI:              url,
		Subject:          subject,
		Category:         record.CategoryAlert,
		ConnectTimeoutMs: 5000,
		ReadTimeoutMs:    2000,
		ReconnectDelayMs: 10,
		MaxRetries:       3,
	}
}

func TestIntegrationNATSConnDeliversPublishedMessages(t *testing.T) {
	ctx := context.Background()
	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	conn := newNATSConn(natsDescriptor(url, "alerts.harbor"))
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	// Give the server a moment to register the subscription before
	// publishing; core NATS drops messages with no subscriber.
	time.Sleep(100 * time.Millisecond)

	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.Publish("alerts.harbor", []byte(fmt.Sprintf(`{"seq":%d}`, i))))
	}
	require.NoError(t, pub.Flush())

	for i := 1; i <= 3; i++ {
		payload, err := conn.Next(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, i), string(payload))
	}
}

func TestIntegrationNATSConnReadTimeout(t *testing.T) {
	ctx := context.Background()
	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	desc := natsDescriptor(url, "alerts.quiet")
	desc.ReadTimeoutMs = 100

	conn := newNATSConn(desc)
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	_, err := conn.Next(ctx)
	require.Error(t, err)

	var ce *ConnError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Terminal)
	assert.True(t, stderrors.Is(err, errors.ErrConnectionTimeout))
}

func TestIntegrationNATSConnReportsLostServer(t *testing.T) {
	ctx := context.Background()
	container, url := startNATSContainer(ctx, t)

	conn := newNATSConn(natsDescriptor(url, "alerts.harbor"))
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	require.NoError(t, container.Terminate(ctx))

	// Reconnects are disabled on the client; once the server is gone
	// every read must surface a terminal fault for the supervisor.
	require.Eventually(t, func() bool {
		_, err := conn.Next(ctx)
		if err == nil {
			return false
		}
		var ce *ConnError
		return stderrors.As(err, &ce) && ce.Terminal
	}, 10*time.Second, 100*time.Millisecond)
}

func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return container, fmt.Sprintf("nats://%s:%s", host, port.Port())
}
