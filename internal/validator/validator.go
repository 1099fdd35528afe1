// Package validator runs the fetch, classify and report workflow for a single
// validation request.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tionis/fasta-validator/internal/callback"
	"github.com/tionis/fasta-validator/internal/fasta"
	"github.com/tionis/fasta-validator/internal/fetch"
	"github.com/tionis/fasta-validator/internal/types"
)

var (
	// ErrMissingDownloadURL is returned when the request carries no download link.
	ErrMissingDownloadURL = errors.New("no download url provided")
	// ErrCallbackConnect matches callback errors raised while connecting.
	ErrCallbackConnect = errors.New("callback connect error")
	// ErrCallbackRPC matches callback errors raised by the call itself.
	ErrCallbackRPC = errors.New("callback rpc error")
)

// FetchError wraps a failed download. No callback is sent after it.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetch failed: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// CallbackError wraps a failed report to the hooks service. The wrapped
// callback error already names the failing stage.
type CallbackError struct {
	Connect bool
	Err     error
}

func (e *CallbackError) Error() string { return e.Err.Error() }

func (e *CallbackError) Unwrap() error { return e.Err }

// Is lets errors.Is distinguish connect from rpc failures.
func (e *CallbackError) Is(target error) bool {
	switch target {
	case ErrCallbackConnect:
		return e.Connect
	case ErrCallbackRPC:
		return !e.Connect
	}
	return false
}

// Fetcher downloads the content to classify.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (string, error)
}

// Reporter delivers the hook callback.
type Reporter interface {
	Report(ctx context.Context, req *callback.HookCallbackRequest) error
}

// Result describes a completed validation.
type Result struct {
	ObjectID string
	IsFasta  bool
	Bytes    int
}

// Message is the acknowledgement returned to the caller.
func (r Result) Message() string { return fasta.Describe(r.IsFasta) }

// Service validates requests. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	fetcher  Fetcher
	reporter Reporter
	logger   *slog.Logger
}

// New creates a validation service.
func New(logger *slog.Logger, fetcher Fetcher, reporter Reporter) *Service {
	return &Service{
		fetcher:  fetcher,
		reporter: reporter,
		logger:   logger.With("component", "validator"),
	}
}

// Validate fetches the referenced content, classifies it and reports the
// outcome. The report stage only runs after a successful fetch and a failed
// report is not retried.
func (s *Service) Validate(ctx context.Context, req *types.ValidationRequest) (Result, error) {
	if req.Download == nil {
		return Result{}, ErrMissingDownloadURL
	}

	objectID, err := req.Object.ID()
	if err != nil {
		return Result{}, fmt.Errorf("invalid object: %w", err)
	}

	logger := s.logger.With("hook_id", req.HookID, "object_id", objectID)
	start := time.Now()

	text, err := s.fetcher.Fetch(ctx, fetchRequest(req))
	if err != nil {
		logger.Warn("download failed", "error", err)
		return Result{ObjectID: objectID}, &FetchError{Err: err}
	}

	result := Result{
		ObjectID: objectID,
		IsFasta:  fasta.IsFasta(text),
		Bytes:    len(text),
	}
	logger.Info("content classified", "fasta", result.IsFasta, "bytes", result.Bytes)

	if err := s.reporter.Report(ctx, outcome(req, objectID, result.IsFasta)); err != nil {
		logger.Error("hook callback failed", "error", err)
		return result, &CallbackError{Connect: errors.Is(err, callback.ErrConnect), Err: err}
	}

	logger.Info("validation reported", "label", fasta.Label(result.IsFasta), "duration", time.Since(start))
	return result, nil
}

func fetchRequest(req *types.ValidationRequest) fetch.Request {
	fr := fetch.Request{URL: *req.Download}
	if req.AccessKey != nil {
		fr.AccessKey = *req.AccessKey
	}
	if req.SecretKey != nil {
		fr.SecretKey = *req.SecretKey
	}
	return fr
}

// outcome builds the callback carrying the single validation label.
func outcome(req *types.ValidationRequest, objectID string, isFasta bool) *callback.HookCallbackRequest {
	return &callback.HookCallbackRequest{
		Finished: &callback.Finished{
			AddKeyValues: []callback.KeyValue{{
				Key:     types.ValidationLabelKey,
				Value:   fasta.Label(isFasta),
				Variant: callback.VariantLabel,
			}},
		},
		Secret:       req.Secret,
		HookID:       req.HookID,
		ObjectID:     objectID,
		PubkeySerial: req.PubkeySerial,
	}
}
