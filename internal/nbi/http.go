package nbi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/nbi/types"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/internal/render"
	"github.com/signalsfoundry/avue/kb"
)

// progressHeartbeat keeps idle progress streams alive through proxies.
const progressHeartbeat = 15 * time.Second

// NewHTTPHandler exposes the visibility service as JSON over HTTP:
//
//	GET /search?lat=&lon=[&height=][&radius=][&wait=true][&detail=true]
//	GET /snapshot[?detail=true]
//	GET /snapshot.geojson
//	GET /progress            (text/event-stream when requested)
//	GET /health
//
// metrics may be nil.
func NewHTTPHandler(svc *VisibilityService, metrics *observability.NBICollector, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Noop()
	}
	h := &httpHandler{svc: svc}
	routes := map[string]http.HandlerFunc{
		"/search":           h.search,
		"/snapshot":         h.snapshot,
		"/snapshot.geojson": h.geojson,
		"/progress":         h.progress,
		"/health":           h.health,
	}

	mux := http.NewServeMux()
	for route, fn := range routes {
		var next http.Handler = fn
		next = TracingMiddleware(route, next)
		next = metrics.HTTPMiddleware(route, next)
		mux.Handle("GET "+route, next)
	}
	return RequestIDMiddleware(log, mux)
}

type httpHandler struct {
	svc *VisibilityService
}

func (h *httpHandler) search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.svc.search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if _, started := out.(types.SearchStarted); started {
		code = http.StatusAccepted
	}
	writeJSON(w, code, out)
}

func (h *httpHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	detail, err := boolParam(r, "detail")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.snapshot(detail))
}

func (h *httpHandler) geojson(w http.ResponseWriter, r *http.Request) {
	fc := render.FeatureCollection(h.svc.orch.Board().Snapshot())
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

func (h *httpHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// progress returns the progress of the displayed search, or streams it as
// server-sent events until the search reaches a terminal status when the
// client accepts text/event-stream.
func (h *httpHandler) progress(w http.ResponseWriter, r *http.Request) {
	board := h.svc.orch.Board()
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeJSON(w, http.StatusOK, types.ProgressFromSnapshot(board.Snapshot()))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	// Subscribers run under board and orchestrator locks: never block.
	changed := make(chan struct{}, 1)
	unsubscribe := board.Subscribe(func(kb.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(progressHeartbeat)
	defer heartbeat.Stop()

	var last types.ProgressView
	for first := true; ; first = false {
		view := types.ProgressFromSnapshot(board.Snapshot())
		if first || view != last {
			data, _ := json.Marshal(view)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
			last = view
		}
		if kb.Status(view.Status).Terminal() {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func parseSearchQuery(r *http.Request) (types.SearchRequest, error) {
	var req types.SearchRequest
	var err error
	if req.Lat, err = floatParam(r, "lat"); err != nil {
		return req, err
	}
	if req.Lon, err = floatParam(r, "lon"); err != nil {
		return req, err
	}
	if req.HeightM, err = floatParam(r, "height"); err != nil {
		return req, err
	}
	if req.RadiusKm, err = floatParam(r, "radius"); err != nil {
		return req, err
	}
	if req.Wait, err = boolParam(r, "wait"); err != nil {
		return req, err
	}
	if req.Detail, err = boolParam(r, "detail"); err != nil {
		return req, err
	}
	return req, nil
}

func floatParam(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidRequest, name, raw)
	}
	return &v, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidRequest, name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		logging.LoggerFromContext(r.Context(), nil).Error(r.Context(), "request failed", logging.Err(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
