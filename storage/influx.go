package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/danweinerdev/monitorlib/logging"
)

const influxConnectTimeout = 10 * time.Second

// influxBackend writes points to an InfluxDB v2 server using the official
// client's blocking write API. Writes are synchronous so the caller can
// classify every failure before giving up its queue.
type influxBackend struct {
	server   string
	port     int64
	protocol string
	token    string
	org      string
	bucket   string
	verify   bool

	log    *logging.Logger
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// newInflux validates the backend configuration and returns an
// uninitialised backend. Missing required connection values are fatal.
func newInflux(cfg map[string]any, log *logging.Logger) (*influxBackend, error) {
	if err := requireOptions(cfg, "server", "token", "org", "bucket"); err != nil {
		return nil, err
	}

	b := &influxBackend{
		port:     443,
		protocol: "https",
		verify:   true,
		log:      log,
	}
	b.server, _ = stringOption(cfg, "server")
	b.token, _ = stringOption(cfg, "token")
	b.org, _ = stringOption(cfg, "org")
	b.bucket, _ = stringOption(cfg, "bucket")
	if port, ok := intOption(cfg, "port"); ok {
		b.port = port
	}
	if ssl, ok := boolOption(cfg, "ssl"); ok && !ssl {
		b.protocol = "http"
	}
	if protocol, ok := stringOption(cfg, "protocol"); ok {
		b.protocol = protocol
	}
	if verify, ok := boolOption(cfg, "verify"); ok {
		b.verify = verify
	}
	return b, nil
}

// Initialize creates the client and verifies connectivity. A failed ping is
// recoverable; the backend stays uninitialised and can be retried.
func (b *influxBackend) Initialize(ctx context.Context) error {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Millisecond)
	if !b.verify {
		opts = opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402 -- operator opt-out via verify=no
	}

	serverURL := fmt.Sprintf("%s://%s:%d", b.protocol, b.server, b.port)
	client := influxdb2.NewClientWithOptions(serverURL, b.token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, influxConnectTimeout)
	defer cancel()
	if ok, err := client.Ping(pingCtx); err != nil || !ok {
		client.Close()
		if err == nil {
			err = errors.New("server not ready")
		}
		b.log.Error("failed to initiate influxdb connection", "url", serverURL, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, serverURL, err)
	}

	b.client = client
	b.writer = client.WriteAPIBlocking(b.org, b.bucket)
	return nil
}

// Write sends points synchronously, initialising the connection first when
// needed.
func (b *influxBackend) Write(ctx context.Context, points []Point) error {
	if b.writer == nil {
		if err := b.Initialize(ctx); err != nil {
			return err
		}
	}
	if len(points) == 0 {
		return nil
	}

	encoded := make([]*write.Point, 0, len(points))
	for _, p := range points {
		encoded = append(encoded,
			write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time.Truncate(time.Millisecond)))
	}

	if err := b.writer.WritePoint(ctx, encoded...); err != nil {
		return classifyInfluxError(err)
	}
	return nil
}

// Flush is a no-op: the blocking write API has no buffered state.
func (b *influxBackend) Flush(ctx context.Context) error {
	if b.writer == nil {
		return b.Initialize(ctx)
	}
	return nil
}

// Close releases the client connection if one was established.
func (b *influxBackend) Close() error {
	if b.client != nil {
		b.client.Close()
		b.client = nil
		b.writer = nil
	}
	return nil
}

// classifyInfluxError sorts a write failure into the transient classes.
// Server-side HTTP errors and request-level failures are ErrWriteFailed,
// connectivity problems and timeouts are ErrUnavailable, and anything else
// passes through unclassified for the caller to treat as unexpected.
func classifyInfluxError(err error) error {
	var httpErr *ihttp.Error
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return fmt.Errorf("%w: server side HTTP error (%d)", ErrWriteFailed, httpErr.StatusCode)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}
