package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/tionis/fasta-validator/internal/config"
	"github.com/tionis/fasta-validator/internal/metrics"
	"github.com/tionis/fasta-validator/internal/types"
	"github.com/tionis/fasta-validator/internal/utils"
	fastavalidator "github.com/tionis/fasta-validator/internal/validator"
)

// maxRequestBody caps the JSON body of a validation request.
const maxRequestBody = 1 << 20

// Validator runs the validation workflow for a decoded request.
type Validator interface {
	Validate(ctx context.Context, req *types.ValidationRequest) (fastavalidator.Result, error)
}

// Server provides the HTTP surface of the validation service.
type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	validator Validator
	structs   *validator.Validate
	metrics   *metrics.Metrics
	limiter   *clientLimiter
	trusted   []netip.Prefix
}

// New constructs a new API server.
func New(cfg config.Config, logger *slog.Logger, v Validator, m *metrics.Metrics) *Server {
	structs := validator.New()
	structs.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "httpserver"),
		validator: v,
		structs:   structs,
		metrics:   m,
	}
	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		s.logger.Warn("ignoring trusted proxies", "error", err)
	}
	s.trusted = trusted
	if cfg.RateLimitEnabled() {
		s.limiter = newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return s
}

// Handler returns the root HTTP handler with instrumentation middleware.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.Handle("/validate", s.rateLimit(http.HandlerFunc(s.handleValidate))).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	router.Use(s.instrument)
	return router
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := fmt.Fprintf(w, "I am a FASTA validation service registered under id %s", s.cfg.HookID); err != nil {
		s.logger.Error("Error writing identity to http.ResponseWriter", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	requestID := utils.RequestID(r)
	w.Header().Set(utils.RequestIDHeader, requestID)
	logger := s.logger.With("request_id", requestID)
	utils.LogRequest(r, "validation request", logger)

	req, status, err := s.decode(r, w)
	if err != nil {
		logger.Info("rejected validation request", "status", status, "error", err)
		s.metrics.RecordValidation(metrics.ResultInvalidRequest)
		writeJSON(w, status, err.Error())
		return
	}

	result, err := s.validator.Validate(r.Context(), req)
	if err != nil {
		s.metrics.RecordValidation(resultLabel(err))
		logger.Error("validation failed", "hook_id", req.HookID, "error", err)
		writeJSON(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.IsFasta {
		s.metrics.RecordValidation(metrics.ResultFasta)
	} else {
		s.metrics.RecordValidation(metrics.ResultNotFasta)
	}
	s.metrics.RecordDownload(float64(result.Bytes))

	logger.Info("validation finished", "hook_id", req.HookID, "object_id", result.ObjectID, "fasta", result.IsFasta)
	writeJSON(w, http.StatusOK, result.Message())
}

// decode reads and checks the request body. Malformed JSON yields 400,
// well-formed payloads with missing keys or bad values yield 422. Required
// keys must be present but may hold empty values.
func (s *Server) decode(r *http.Request, w http.ResponseWriter) (*types.ValidationRequest, int, error) {
	var payload types.ValidationPayload
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		var syntaxErr *json.SyntaxError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)
		default:
			return nil, http.StatusUnprocessableEntity, fmt.Errorf("invalid request: %w", err)
		}
	}

	if err := s.structs.Struct(payload); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
			return nil, http.StatusUnprocessableEntity, fmt.Errorf("invalid request: %s", strings.Join(fields, ", "))
		}
		return nil, http.StatusUnprocessableEntity, fmt.Errorf("invalid request: %w", err)
	}

	req := payload.Request()
	return &req, 0, nil
}

func resultLabel(err error) string {
	var fetchErr *fastavalidator.FetchError
	var callbackErr *fastavalidator.CallbackError
	switch {
	case errors.Is(err, fastavalidator.ErrMissingDownloadURL):
		return metrics.ResultMissingDownload
	case errors.As(err, &fetchErr):
		return metrics.ResultFetchError
	case errors.As(err, &callbackErr):
		return metrics.ResultCallbackError
	default:
		return metrics.ResultInvalidRequest
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(sw.statusCode))
		s.metrics.RecordHTTPDuration(r.Method, route, time.Since(started).Seconds())

		s.logger.Debug(
			"request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.statusCode,
			"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
