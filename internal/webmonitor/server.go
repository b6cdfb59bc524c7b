package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/chiliwax/QrCodeReader-v2/internal/effect"
	"github.com/chiliwax/QrCodeReader-v2/internal/history"
	"github.com/chiliwax/QrCodeReader-v2/internal/imagescan"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/internal/settings"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// Deps are the collaborators the server exposes over HTTP. Monitor must be
// the one whose callbacks were given to Processor.
type Deps struct {
	Processor *stream.Processor
	Monitor   *Monitor
	History   *history.Store
	Settings  *settings.Store
	Recorder  *recorder.Recorder
	Metrics   *metrics.Metrics
}

// Server serves the scanner monitor endpoints.
type Server struct {
	cfg      Config
	deps     Deps
	images   *imagescan.Scanner
	status   *StatusBroadcaster
	upgrader websocket.Upgrader
}

// NewServer returns a configured monitor server.
func NewServer(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.HandlerSchemes == nil {
		cfg.HandlerSchemes = def.HandlerSchemes
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Monitor == nil {
		deps.Monitor = NewMonitor(deps.Metrics)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		images: imagescan.New(deps.Processor, deps.Metrics),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.status = NewStatusBroadcaster(cfg.StatusInterval, func() any { return s.snapshot() }, deps.Metrics)
	return s
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/status/stream", s.handleStatusStream).Methods(http.MethodGet)

	r.HandleFunc("/api/detections", s.handleDetections).Methods(http.MethodPost)
	r.HandleFunc("/ws/detections", s.handleDetectionsWS).Methods(http.MethodGet)
	r.HandleFunc("/api/candidates", s.handleCandidates).Methods(http.MethodGet)
	r.HandleFunc("/api/candidates/stream", s.handleCandidatesStream).Methods(http.MethodGet)
	r.HandleFunc("/api/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)

	r.HandleFunc("/api/classify", s.handleClassify).Methods(http.MethodPost)
	r.HandleFunc("/api/actions/run", s.handleRunAction).Methods(http.MethodPost)
	r.HandleFunc("/api/scan/image", s.handleScanImage).Methods(http.MethodPost)

	r.HandleFunc("/api/history", s.handleHistoryList).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistoryClear).Methods(http.MethodDelete)
	r.HandleFunc("/api/history/{id}", s.handleHistoryRemove).Methods(http.MethodDelete)

	r.HandleFunc("/api/settings", s.handleSettingsGet).Methods(http.MethodGet)
	r.HandleFunc("/api/settings/{key}", s.handleSettingPut).Methods(http.MethodPut)

	r.HandleFunc("/api/recording/start", s.handleRecordingStart).Methods(http.MethodPost)
	r.HandleFunc("/api/recording/stop", s.handleRecordingStop).Methods(http.MethodPost)
	r.HandleFunc("/api/recording/status", s.handleRecordingStatus).Methods(http.MethodGet)

	return r
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.status.Start()
	defer s.status.Stop()

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming handlers end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Monitor", "Listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP", "%s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) snapshot() StatusEvent {
	latest, recent, stats := s.deps.Monitor.Snapshot()
	ev := StatusEvent{
		State:            s.deps.Processor.State(),
		Monitor:          stats,
		Candidates:       latest,
		RecentSelections: recent,
		Timestamp:        float64(time.Now().UnixMilli()) / 1000,
	}
	if sel, ok := s.deps.Processor.Current(); ok {
		ev.Selection = &sel
	}
	if s.deps.Recorder != nil {
		ev.Recording = s.deps.Recorder.GetStatus()
	}
	return ev
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, wantsProtobuf(r))
}

// decodeDetections accepts one detection object or an array of them.
func decodeDetections(body []byte) ([]types.Detection, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var ds []types.Detection
		if err := json.Unmarshal(body, &ds); err != nil {
			return nil, err
		}
		return ds, nil
	}
	var d types.Detection
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return []types.Detection{d}, nil
}

type ingestResult struct {
	Accepted int              `json:"accepted"`
	Dropped  int              `json:"dropped"`
	State    stream.LockState `json:"state"`
}

func (s *Server) ingest(ds []types.Detection) ingestResult {
	var res ingestResult
	for _, d := range ds {
		if s.deps.Processor.HandleDetection(d) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	res.State = s.deps.Processor.State()
	return res
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ds, err := decodeDetections(body)
	if err != nil {
		writeError(w, "invalid detection: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.ingest(ds))
}

// handleDetectionsWS reads one detection (or array) per text message and
// answers each with an ingestResult.
func (s *Server) handleDetectionsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket", "Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)
	logger.Info("WebSocket", "Scanner connected from %s", r.RemoteAddr)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("WebSocket", "Read failed: %v", err)
			}
			logger.Info("WebSocket", "Scanner disconnected from %s", r.RemoteAddr)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		ds, err := decodeDetections(msg)
		if err != nil {
			if werr := conn.WriteJSON(map[string]string{"error": "invalid detection: " + err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(s.ingest(ds)); err != nil {
			return
		}
	}
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Processor.Candidates(r.Context()))
}

func (s *Server) handleCandidatesStream(w http.ResponseWriter, r *http.Request) {
	frames := s.deps.Monitor.Frames()
	id, eventCh := frames.Subscribe()
	defer frames.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, wantsProtobuf(r))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		writeError(w, "body must be {\"payload\": \"...\"}", http.StatusBadRequest)
		return
	}
	sel, ok := s.deps.Processor.SelectPayload(r.Context(), req.Payload)
	if !ok {
		writeError(w, "not selectable: no such candidate or a selection is already locked", http.StatusConflict)
		return
	}
	writeJSON(w, sel)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.deps.Processor.Reset(r.Context())
	writeJSON(w, s.deps.Processor.Candidates(r.Context()))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "body must be {\"data\": \"...\"}", http.StatusBadRequest)
		return
	}
	parsed, err := payload.Classify(req.Data)
	if err != nil {
		s.deps.Metrics.ClassifyErrors.Add(1)
		writeJSONWithStatus(w, ClassifyResponse{Parsed: parsed, Error: err.Error()}, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, ClassifyResponse{Parsed: parsed})
}

// handleRunAction executes an action against a CommandHost and returns the
// recorded platform commands for the browser to perform.
func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid action: "+err.Error(), http.StatusBadRequest)
		return
	}
	host := effect.NewCommandHost(s.cfg.HandlerSchemes...)
	res, err := effect.NewDispatcher(host).Run(r.Context(), req.Action)
	resp := ActionResponse{Result: res, Commands: host.Drain()}
	if resp.Commands == nil {
		resp.Commands = []effect.Command{}
	}
	switch {
	case errors.Is(err, effect.ErrUnsupportedEffect):
		resp.Unsupported = true
		resp.Notice = err.Error()
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	default:
		resp.Notice = res.Notice
	}
	writeJSON(w, resp)
}

// handleScanImage takes a multipart form with an "image" file and a
// "detections" field holding the codes found in it as a JSON array.
func (s *Server) handleScanImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxImageBytes); err != nil {
		writeError(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, "missing image file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, "read image: "+err.Error(), http.StatusBadRequest)
		return
	}

	var found imagescan.Static
	if raw := r.FormValue("detections"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &found); err != nil {
			writeError(w, "invalid detections: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := s.images.Scan(r.Context(), data, found)
	switch {
	case errors.Is(err, imagescan.ErrEmptyScanResult):
		writeJSONWithStatus(w, map[string]any{"notice": "No QR code found in image", "result": res}, http.StatusNotFound)
	case errors.Is(err, imagescan.ErrBusy):
		writeError(w, "a selection is locked; reset before scanning an image", http.StatusConflict)
	case err != nil:
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, res)
	}
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.History.List(r.Context())
	if err != nil {
		logger.Warn("Monitor", "Loading history failed: %v", err)
		items = nil
	}
	if items == nil {
		items = []history.Item{}
	}
	writeJSON(w, items)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(r.Context()); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "cleared"})
}

func (s *Server) handleHistoryRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.deps.History.Remove(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		writeError(w, "no history item "+id, http.StatusNotFound)
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, map[string]string{"status": "removed", "id": id})
	}
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.Load(r.Context())
	if err != nil {
		logger.Warn("Monitor", "Loading settings failed, serving safe values: %v", err)
	}
	writeJSON(w, st)
}

func (s *Server) handleSettingPut(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["key"]
	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "body must be {\"value\": ...}", http.StatusBadRequest)
		return
	}
	var value string
	switch v := req.Value.(type) {
	case string:
		value = v
	case bool:
		value = strconv.FormatBool(v)
	default:
		writeError(w, "value must be a string or boolean", http.StatusBadRequest)
		return
	}

	err := s.deps.Settings.Set(r.Context(), name, value)
	switch {
	case errors.Is(err, settings.ErrUnknownKey):
		writeError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, settings.ErrInvalidValue):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.handleSettingsGet(w, r)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSONWithStatus(w, map[string]string{"error": msg}, status)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Monitor", "Encode response: %v", err)
	}
}
