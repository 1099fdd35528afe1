package callback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"
)

type hooksServer interface {
	HookCallback(context.Context, *HookCallbackRequest) (*HookCallbackResponse, error)
}

var hooksServiceDesc = grpc.ServiceDesc{
	ServiceName: "aruna.api.hooks.services.v2.HooksService",
	HandlerType: (*hooksServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "HookCallback",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(HookCallbackRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(hooksServer).HookCallback(ctx, in)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

type recordingHooks struct {
	mu       sync.Mutex
	requests []*HookCallbackRequest
	err      error
}

func (h *recordingHooks) HookCallback(_ context.Context, req *HookCallbackRequest) (*HookCallbackResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.err != nil {
		return nil, h.err
	}
	return &HookCallbackResponse{}, nil
}

func startHooksServer(t *testing.T, hooks *recordingHooks) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(wireCodec{}))
	srv.RegisterService(&hooksServiceDesc, hooks)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	return lis
}

func newBufconnClient(lis *bufconn.Listener) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(logger, "passthrough:///bufnet", 2*time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
}

func sampleRequest(label string) *HookCallbackRequest {
	return &HookCallbackRequest{
		Finished: &Finished{
			AddKeyValues: []KeyValue{{Key: "FASTA_VALIDATOR", Value: label, Variant: VariantLabel}},
		},
		Secret:       "s3cr3t",
		HookID:       "01HHOOK",
		ObjectID:     "01HOBJECT",
		PubkeySerial: 3,
	}
}

func TestReportDeliversRequest(t *testing.T) {
	hooks := &recordingHooks{}
	lis := startHooksServer(t, hooks)

	if err := newBufconnClient(lis).Report(context.Background(), sampleRequest("successful")); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.requests) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(hooks.requests))
	}

	got := hooks.requests[0]
	if got.Secret != "s3cr3t" || got.HookID != "01HHOOK" || got.ObjectID != "01HOBJECT" || got.PubkeySerial != 3 {
		t.Errorf("unexpected request fields: %+v", got)
	}
	if got.Finished == nil || len(got.Finished.AddKeyValues) != 1 {
		t.Fatalf("expected exactly one added key value, got %+v", got.Finished)
	}
	if len(got.Finished.RemoveKeyValues) != 0 {
		t.Errorf("expected no removed key values, got %+v", got.Finished.RemoveKeyValues)
	}
	kv := got.Finished.AddKeyValues[0]
	if kv.Key != "FASTA_VALIDATOR" || kv.Value != "successful" || kv.Variant != VariantLabel {
		t.Errorf("unexpected key value: %+v", kv)
	}
}

func TestReportCallRejected(t *testing.T) {
	hooks := &recordingHooks{err: status.Error(codes.PermissionDenied, "invalid secret")}
	lis := startHooksServer(t, hooks)

	err := newBufconnClient(lis).Report(context.Background(), sampleRequest("unsuccessful"))
	if !errors.Is(err, ErrCall) {
		t.Fatalf("expected ErrCall, got %v", err)
	}
	if errors.Is(err, ErrConnect) {
		t.Errorf("rejected call must not be reported as connect failure: %v", err)
	}
	if !strings.Contains(err.Error(), "invalid secret") {
		t.Errorf("expected server message in error, got %v", err)
	}
}

func TestReportConnectFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(logger, "passthrough:///unreachable", time.Second,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}))

	err := client.Report(context.Background(), sampleRequest("successful"))
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		address    string
		wantTarget string
		wantTLS    bool
	}{
		{address: "http://localhost:50051", wantTarget: "localhost:50051"},
		{address: "https://aruna.example.org:443/", wantTarget: "aruna.example.org:443", wantTLS: true},
		{address: "dns:///aruna:50051", wantTarget: "dns:///aruna:50051"},
		{address: "aruna:50051", wantTarget: "aruna:50051"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			target, creds := parseAddress(tt.address)
			if target != tt.wantTarget {
				t.Errorf("expected target %q, got %q", tt.wantTarget, target)
			}
			isTLS := creds.Info().SecurityProtocol == "tls"
			if isTLS != tt.wantTLS {
				t.Errorf("expected tls=%v, got protocol %q", tt.wantTLS, creds.Info().SecurityProtocol)
			}
		})
	}
}

func TestHookCallbackRequestWireEncoding(t *testing.T) {
	req := sampleRequest("successful")
	data, err := req.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire failed: %v", err)
	}

	// field 3 (secret), length 6
	if !bytes.Contains(data, append([]byte{0x1a, 0x06}, "s3cr3t"...)) {
		t.Errorf("secret field not encoded as expected: %x", data)
	}
	// field 6 (pubkey_serial), varint 3
	if !bytes.HasSuffix(data, []byte{0x30, 0x03}) {
		t.Errorf("pubkey_serial not encoded as expected: %x", data)
	}
	// field 1 (finished) comes first
	if data[0] != 0x0a {
		t.Errorf("expected finished status first, got tag %#x", data[0])
	}
}

func TestHookCallbackRequestNegativeSerial(t *testing.T) {
	req := &HookCallbackRequest{HookID: "h", PubkeySerial: -1}
	data, err := req.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire failed: %v", err)
	}

	var decoded HookCallbackRequest
	if err := decoded.UnmarshalWire(data); err != nil {
		t.Fatalf("UnmarshalWire failed: %v", err)
	}
	if decoded.PubkeySerial != -1 || decoded.HookID != "h" || decoded.Finished != nil {
		t.Errorf("unexpected decode: %+v", decoded)
	}
}

func TestUnmarshalWireSkipsErrorStatus(t *testing.T) {
	// Error{error: "boom"} as status field 2, followed by hook_id and serial.
	var errStatus []byte
	errStatus = protowire.AppendTag(errStatus, 1, protowire.BytesType)
	errStatus = protowire.AppendString(errStatus, "boom")

	var data []byte
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendBytes(data, errStatus)
	data = protowire.AppendTag(data, 4, protowire.BytesType)
	data = protowire.AppendString(data, "h1")
	data = protowire.AppendTag(data, 6, protowire.VarintType)
	data = protowire.AppendVarint(data, 9)

	var decoded HookCallbackRequest
	if err := decoded.UnmarshalWire(data); err != nil {
		t.Fatalf("UnmarshalWire failed: %v", err)
	}
	if decoded.Finished != nil || decoded.HookID != "h1" || decoded.PubkeySerial != 9 {
		t.Errorf("unexpected decode: %+v", decoded)
	}
}

func TestUnmarshalWireRejectsTruncated(t *testing.T) {
	data, _ := sampleRequest("successful").MarshalWire()

	var decoded HookCallbackRequest
	if err := decoded.UnmarshalWire(data[:len(data)-3]); err == nil {
		t.Fatal("expected error for truncated message")
	}
}
