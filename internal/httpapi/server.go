package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modeld/internal/llamaproc"
	"modeld/pkg/types"
)

// Service defines the methods required by the HTTP API layer: a completion
// call routed through the registry and switcher, an on-demand detection
// run, and a readiness probe.
type Service interface {
	Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResponse, error)
	Detect(ctx context.Context, req types.DetectRequest) (types.DetectionResult, error)
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Post("/v1/completion", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}

		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if completionTimeout > 0 {
			var timeoutCancel context.CancelFunc
			joinedCtx, timeoutCancel = context.WithTimeout(joinedCtx, time.Duration(completionTimeout)*time.Second)
			defer timeoutCancel()
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		res, err := svc.Complete(joinedCtx, req)
		if err != nil {
			status := statusForError(err)
			writeJSONError(w, status, err.Error())
			logRequestOutcome(r, lvl, status, start, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.CompletionResponse{
			PromptPerSecond:    res.PromptPerSecond,
			PredictedPerSecond: res.PredictedPerSecond,
		}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		logRequestOutcome(r, lvl, http.StatusOK, start, nil)
	})

	r.Post("/v1/detect", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.DetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.ModelPath) == "" {
			writeJSONError(w, http.StatusBadRequest, "modelPath is required")
			return
		}

		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		result, err := svc.Detect(joinedCtx, req)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// statusForError maps an error's llamaproc.Kind (or an HTTPError override)
// to an HTTP status code.
func statusForError(err error) int {
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	switch llamaproc.KindOf(err) {
	case llamaproc.KindNotFound:
		return http.StatusNotFound
	case llamaproc.KindInvalidArgument:
		return http.StatusBadRequest
	case llamaproc.KindStartFailed:
		return http.StatusServiceUnavailable
	case llamaproc.KindTimeout:
		return http.StatusGatewayTimeout
	case llamaproc.KindProtocolError:
		return http.StatusBadGateway
	case llamaproc.KindVersionMismatch:
		return http.StatusConflict
	case llamaproc.KindParse:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func logRequestOutcome(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("completion end")
	}
}
