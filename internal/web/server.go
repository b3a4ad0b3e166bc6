package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"imgfidelity/internal/config"
	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/histogram"
	"imgfidelity/internal/logger"
	"imgfidelity/internal/pipeline"
	"imgfidelity/internal/raster"
	"imgfidelity/internal/report"
	"imgfidelity/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	pipeline *pipeline.Pipeline
	stats    *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

type LoadRequest struct {
	Path string `json:"path"`
}

type CompressRequest struct {
	Quality *int `json:"quality,omitempty"`
}

type RunRequest struct {
	Path    string `json:"path"`
	Quality *int   `json:"quality,omitempty"`
}

type ImageInfo struct {
	Path     string            `json:"path"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Channels int               `json:"channels"`
	Format   string            `json:"format"`
	SizeKB   string            `json:"size_kb"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type HistogramInfo struct {
	Source string `json:"source"`
	Bins   []int  `json:"bins"`
	Total  int    `json:"total"`
	Max    int    `json:"max"`
	Mode   int    `json:"mode"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type LogMessage struct {
	Level   string        `json:"level"`
	Message string        `json:"message"`
	Fields  logrus.Fields `json:"fields,omitempty"`
}

func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		stats: statistics.NewStatistics(),
	}
	s.pipeline = pipeline.NewFromConfig(cfg, log, s.stats, s.onPipelineEvent)

	// Warnings and errors reach websocket clients alongside pipeline events.
	log.AddHook(&logger.FuncHook{
		MinLevel: logrus.WarnLevel,
		Fn:       s.onLogEntry,
	})

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/load", s.handleLoad).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/run", s.handleRun).Methods("POST")
	api.HandleFunc("/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/result", s.handleResult).Methods("GET")
	api.HandleFunc("/histogram", s.handleHistogram).Methods("GET")
	api.HandleFunc("/histogram.png", s.handleHistogramChart).Methods("GET")
	api.HandleFunc("/thumbnail/{which:original|compressed}", s.handleThumbnail).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.stats.Finalize()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.pipeline.Status(),
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	img, err := s.pipeline.Load(r.Context(), req.Path)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Image loaded",
		Data:    newImageInfo(req.Path, img),
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	// An empty body selects the configured quality.
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	setting := pipeline.DefaultSetting(s.cfg)
	if req.Quality != nil {
		setting.Quality = *req.Quality
	}

	res, err := s.pipeline.Compress(r.Context(), setting)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Analysis complete",
		Data:    report.NewSummary(res),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	setting := pipeline.DefaultSetting(s.cfg)
	if req.Quality != nil {
		setting.Quality = *req.Quality
	}

	res, err := s.pipeline.Run(r.Context(), req.Path, setting)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Analysis complete",
		Data:    report.NewSummary(res),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Reset()
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Pipeline reset",
		Data:    s.pipeline.Status(),
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res := s.pipeline.Result()
	if res == nil {
		s.writeAppError(w, apperrors.NewInvalidStateError("no analysis result available", nil))
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    report.NewSummary(res),
	})
}

// currentHistogram prefers the published result and falls back to the loaded image.
func (s *Server) currentHistogram() (histogram.Histogram, string, error) {
	if res := s.pipeline.Result(); res != nil {
		return res.Histogram, "result", nil
	}
	h, err := s.pipeline.OriginalHistogram()
	return h, "original", err
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	h, src, err := s.currentHistogram()
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: HistogramInfo{
			Source: src,
			Bins:   h[:],
			Total:  h.Total(),
			Max:    h.Max(),
			Mode:   h.Mode(),
		},
	})
}

func (s *Server) handleHistogramChart(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.currentHistogram()
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	width := queryInt(r, "width", 512)
	height := queryInt(r, "height", 256)
	data, err := report.HistogramChart(&h, width, height)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writePNG(w, data)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	which := mux.Vars(r)["which"]

	var img *raster.Image
	switch which {
	case "original":
		img = s.pipeline.Original()
	case "compressed":
		if res := s.pipeline.Result(); res != nil {
			img = res.Compressed.Decoded
		}
	}
	if img == nil {
		s.writeAppError(w, apperrors.NewInvalidStateError(fmt.Sprintf("no %s image available", which), nil))
		return
	}

	data, err := report.Thumbnail(img, queryInt(r, "size", s.cfg.Server.ThumbnailSize))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writePNG(w, data)
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"summary":          s.stats.GetSummary(),
		"counters":         s.stats.Snapshot(),
		"format_breakdown": s.stats.GetFormatBreakdown(),
		"error_summary":    s.stats.GetErrorSummary(),
	}
	if cache, ok := s.pipeline.MetadataCacheStats(); ok {
		data["metadata_cache"] = cache
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wsLog().Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// onPipelineEvent forwards every pipeline stage to connected websocket clients.
func (s *Server) onPipelineEvent(ev pipeline.Event) {
	s.broadcastWSMessage(string(ev.Type), ev)
}

func (s *Server) onLogEntry(level, message string, fields logrus.Fields) {
	s.broadcastWSMessage("log", LogMessage{Level: level, Message: message, Fields: fields})
}

// wsLog tags entries so the websocket log hook does not echo its own failures.
func (s *Server) wsLog() *logrus.Entry {
	return s.log.WithField(logger.SkipHookField, true)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.wsLog().Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla connections allow one writer at a time
	var failed []*websocket.Conn
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.wsLog().Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			failed = append(failed, conn)
		}
	}
	s.wsMutex.Unlock()

	for _, conn := range failed {
		conn.Close()
	}
}

func newImageInfo(path string, img *raster.Image) ImageInfo {
	return ImageInfo{
		Path:     path,
		Width:    img.Width,
		Height:   img.Height,
		Channels: img.Channels,
		Format:   img.Format,
		SizeKB:   report.FormatKB(img.ByteSize),
		Metadata: img.Metadata,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.GetStatusCode(err))
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   err.Error(),
		Kind:    string(apperrors.KindOf(err)),
	})
}
