package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	protocol "github.com/influxdata/line-protocol"

	"github.com/danweinerdev/monitorlib/logging"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second

	// mqttDisconnectQuiesce is the grace period for in-flight messages on
	// disconnect, in milliseconds.
	mqttDisconnectQuiesce = 250
)

// mqttBackend forwards points to an MQTT topic, each batch published as one
// newline-delimited line protocol payload.
type mqttBackend struct {
	server   string
	port     int64
	topic    string
	clientID string
	username string
	password string
	qos      byte
	ssl      bool

	log    *logging.Logger
	client pahomqtt.Client
}

// newMQTT validates the backend configuration and returns an uninitialised
// backend. Missing required connection values are fatal.
func newMQTT(cfg map[string]any, log *logging.Logger) (*mqttBackend, error) {
	if err := requireOptions(cfg, "server", "topic"); err != nil {
		return nil, err
	}

	b := &mqttBackend{
		port:     1883,
		clientID: "monitorlib",
		log:      log,
	}
	b.server, _ = stringOption(cfg, "server")
	b.topic, _ = stringOption(cfg, "topic")
	if port, ok := intOption(cfg, "port"); ok {
		b.port = port
	}
	if clientID, ok := stringOption(cfg, "client_id"); ok {
		b.clientID = clientID
	}
	b.username, _ = stringOption(cfg, "username")
	b.password, _ = stringOption(cfg, "password")
	if ssl, ok := boolOption(cfg, "ssl"); ok {
		b.ssl = ssl
	}
	if qos, ok := intOption(cfg, "qos"); ok {
		if qos < 0 || qos > 2 {
			return nil, fmt.Errorf("%w: qos must be 0, 1, or 2", ErrMissingConfig)
		}
		b.qos = byte(qos)
	}
	return b, nil
}

// brokerURL builds the broker address from the configured scheme, server,
// and port.
func (b *mqttBackend) brokerURL() string {
	scheme := "tcp"
	if b.ssl {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.server, b.port)
}

// Initialize connects to the broker. A failed or timed-out connection is
// recoverable; the backend stays uninitialised and can be retried.
func (b *mqttBackend) Initialize(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(b.brokerURL()).
		SetClientID(b.clientID).
		SetConnectTimeout(mqttConnectTimeout)
	if b.username != "" {
		opts.SetUsername(b.username)
		opts.SetPassword(b.password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !waitToken(ctx, token, mqttConnectTimeout) {
		client.Disconnect(0)
		b.log.Error("failed to connect to mqtt broker", "broker", b.brokerURL(),
			"error", "timeout")
		return fmt.Errorf("%w: connect timeout to %s", ErrUnavailable, b.brokerURL())
	}
	if err := token.Error(); err != nil {
		b.log.Error("failed to connect to mqtt broker", "broker", b.brokerURL(),
			"error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b.client = client
	return nil
}

// Write publishes the batch to the configured topic, initialising the
// connection first when needed.
func (b *mqttBackend) Write(ctx context.Context, points []Point) error {
	if b.client == nil {
		if err := b.Initialize(ctx); err != nil {
			return err
		}
	}
	if len(points) == 0 {
		return nil
	}
	if !b.client.IsConnected() {
		return fmt.Errorf("%w: not connected to %s", ErrUnavailable, b.brokerURL())
	}

	payload, err := encodeLineProtocol(points)
	if err != nil {
		return err
	}

	token := b.client.Publish(b.topic, b.qos, false, payload)
	if !waitToken(ctx, token, mqttPublishTimeout) {
		return fmt.Errorf("%w: publish timeout on %q", ErrUnavailable, b.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Flush is a no-op: publishes are synchronous.
func (b *mqttBackend) Flush(ctx context.Context) error {
	if b.client == nil {
		return b.Initialize(ctx)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (b *mqttBackend) Close() error {
	if b.client != nil {
		b.client.Disconnect(mqttDisconnectQuiesce)
		b.client = nil
	}
	return nil
}

// waitToken waits for a paho token, bounded by both the timeout and the
// caller's context.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return token.WaitTimeout(timeout)
}

// encodeLineProtocol serialises points as newline-delimited InfluxDB line
// protocol at millisecond precision.
func encodeLineProtocol(points []Point) ([]byte, error) {
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)
	enc.FailOnFieldErr(true)
	enc.SetPrecision(time.Millisecond)
	for _, p := range points {
		pt := write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time.Truncate(time.Millisecond))
		if _, err := enc.Encode(pt); err != nil {
			return nil, fmt.Errorf("%w: encoding %q: %v", ErrWriteFailed, p.Measurement, err)
		}
	}
	return buf.Bytes(), nil
}
