package serving

import (
	"bytes"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	HeaderRequestID = "X-Request-Id"

	maxRequestBytes = 32 << 20
)

// HTTPServer implements the SageMaker hosting contract: GET /ping and
// POST /invocations.
type HTTPServer struct {
	predictor Predictor
}

func NewHTTPServer(predictor Predictor) *HTTPServer {
	return &HTTPServer{predictor: predictor}
}

// Handler returns the routes, each request carrying a request id in its
// logger and in the X-Request-Id response header.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.servePing)
	mux.HandleFunc("POST /invocations", s.serveInvocations)
	return withRequestID(mux)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		log := klog.FromContext(r.Context()).WithValues("requestID", id)
		next.ServeHTTP(w, r.WithContext(klog.NewContext(r.Context(), log)))
	})
}

func (s *HTTPServer) servePing(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) serveInvocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := klog.FromContext(ctx)

	if s.predictor == nil {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		return
	}

	accept := r.Header.Get("Accept")
	if !AcceptsJSON(accept) {
		s.writeError(w, r, errors.Wrapf(ErrNotAcceptable, "accept %q", accept))
		return
	}

	startedAt := time.Now()
	x, err := DecodeRequest(r.Header.Get("Content-Type"), http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.predictor.Infer(ctx, x)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := EncodeResponse(accept, &buf, out); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error(err, "writing response")
		return
	}
	log.V(2).Info("served invocation", "input", x.Dims(), "duration", time.Since(startedAt))
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := klog.FromContext(r.Context())

	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		log.Error(err, "scoring request")
		http.Error(w, "internal server error", code)
		return
	}
	log.Info("rejected request", "status", code, "err", err.Error())
	http.Error(w, err.Error(), code)
}

func httpStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrNotAcceptable):
		return http.StatusNotAcceptable
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case isClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
