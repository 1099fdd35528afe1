// Package callback reports validation results to the Aruna hooks service.
package callback

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// HookCallbackMethod is the full gRPC method name of the hook callback.
const HookCallbackMethod = "/aruna.api.hooks.services.v2.HooksService/HookCallback"

// DefaultTimeout bounds connecting plus the callback call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrConnect marks failures to establish a connection to the hooks service.
	ErrConnect = errors.New("callback connect failed")
	// ErrCall marks failures of the HookCallback call itself.
	ErrCall = errors.New("callback call failed")
)

// Client dials the hooks service once per report.
type Client struct {
	target  string
	opts    []grpc.DialOption
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a hooks client for address. An http:// prefix (or none)
// selects a plaintext connection, https:// selects TLS. Extra dial options are
// appended after the transport credentials.
func NewClient(logger *slog.Logger, address string, timeout time.Duration, extra ...grpc.DialOption) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	target, creds := parseAddress(address)
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
	}, extra...)

	return &Client{
		target:  target,
		opts:    opts,
		timeout: timeout,
		logger:  logger.With("component", "callback"),
	}
}

// Report opens a connection, sends req and closes the connection again.
// Errors wrap ErrConnect or ErrCall.
func (c *Client) Report(ctx context.Context, req *HookCallbackRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp := new(HookCallbackResponse)
	if err := conn.Invoke(ctx, HookCallbackMethod, req, resp); err != nil {
		return fmt.Errorf("%w: %w", ErrCall, err)
	}

	c.logger.Debug("hook callback delivered", "hook_id", req.HookID, "object_id", req.ObjectID)
	return nil
}

// connect waits until the channel is ready. The first transient failure is
// reported as a connect error since nothing is retried.
func (c *Client) connect(ctx context.Context) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(c.target, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return conn, nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			conn.Close()
			return nil, fmt.Errorf("%w: %s is %s", ErrConnect, c.target, state)
		}
		if !conn.WaitForStateChange(ctx, state) {
			conn.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, c.target, ctx.Err())
		}
	}
}

func parseAddress(address string) (string, credentials.TransportCredentials) {
	switch {
	case strings.HasPrefix(address, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(address, "https://"), "/"), credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	case strings.HasPrefix(address, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(address, "http://"), "/"), insecure.NewCredentials()
	default:
		return address, insecure.NewCredentials()
	}
}

// wireMessage is implemented by the hand-encoded hook messages.
type wireMessage interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire([]byte) error
}

// wireCodec carries wireMessage values in protobuf binary form.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("callback codec: unsupported type %T", v)
	}
	return m.MarshalWire()
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("callback codec: unsupported type %T", v)
	}
	return m.UnmarshalWire(data)
}

// Name reports "proto" so the content type matches generated clients.
func (wireCodec) Name() string { return "proto" }
