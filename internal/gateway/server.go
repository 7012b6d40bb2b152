package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/identity"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/store"
)

// Server is the worker RPC gateway: the only surface through which execution
// workers read task inputs and write task outputs. Workers hold no store
// credentials of their own; every operation here is one authenticated
// request/response call.
type Server struct {
	bind     string
	token    string
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger

	listener net.Listener
	server   *http.Server
}

// ServerOption adjusts gateway construction.
type ServerOption func(*Server)

// WithNotifier sets the service that announces terminal run transitions.
func WithNotifier(n notifications.Service) ServerOption {
	return func(s *Server) { s.notifier = n }
}

// NewServer wires the gateway over a store.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	bind := strings.TrimSpace(cfg.Gateway.Bind)
	if bind == "" {
		return nil, errors.New("gateway bind address required")
	}

	srv := &Server{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Gateway.Token),
		store:  st,
		logger: logging.NewComponentLogger(logger, "gateway"),
	}
	for _, opt := range opts {
		opt(srv)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/clips/", authMiddleware(srv.token, srv.handleClip))
	mux.HandleFunc("/api/media", authMiddleware(srv.token, srv.handleCreateMedia))
	mux.HandleFunc("/api/media/reuse", authMiddleware(srv.token, srv.handleReuseLookup))
	mux.HandleFunc("/api/media/", authMiddleware(srv.token, srv.handleGetMedia))
	mux.HandleFunc("/api/jobs", authMiddleware(srv.token, srv.handleCreateJob))
	mux.HandleFunc("/api/jobs/", authMiddleware(srv.token, srv.handleJob))
	mux.HandleFunc("/api/quota/", authMiddleware(srv.token, srv.handleQuota))
	mux.HandleFunc("/api/usage", authMiddleware(srv.token, srv.handleRecordUsage))
	mux.HandleFunc("/api/runs/", authMiddleware(srv.token, srv.handleRun))
	mux.HandleFunc("/api/workers/hello", authMiddleware(srv.token, srv.handleWorkerHello))
	mux.HandleFunc("/api/workers/claim", authMiddleware(srv.token, srv.handleClaimJob))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler exposes the routed handler for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving and shuts down when the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("gateway listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listener address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/clips/")
	if idStr, ok := strings.CutSuffix(rest, "/status"); ok {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.reportClipStatus(w, r, idStr)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := parseID(rest)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid clip id")
		return
	}
	clip, err := s.store.GetClip(r.Context(), id)
	if err != nil {
		s.internalError(w, "get clip", err)
		return
	}
	if clip == nil {
		s.writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	s.writeJSON(w, http.StatusOK, ClipDescriptor{
		ID:          clip.ID,
		RunID:       clip.RunID,
		OwnerID:     clip.OwnerID,
		SourceURL:   clip.SourceURL,
		Title:       clip.Title,
		Creator:     clip.Creator,
		IdentityKey: clip.IdentityKey,
		Downloaded:  clip.Downloaded,
	})
}

func (s *Server) reportClipStatus(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(idStr)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid clip id")
		return
	}
	var req ClipStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	updated, err := s.store.MarkClipAcquired(r.Context(), id, req.Acquired, req.MediaID, req.DurationSeconds)
	if err != nil {
		s.internalError(w, "mark clip acquired", err)
		return
	}
	if !updated {
		s.writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := parseID(strings.TrimPrefix(r.URL.Path, "/api/media/"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	media, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		s.internalError(w, "get media", err)
		return
	}
	if media == nil {
		s.writeError(w, http.StatusNotFound, "media not found")
		return
	}
	s.writeJSON(w, http.StatusOK, mediaDescriptor(media))
}

func (s *Server) handleCreateMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req CreateMediaRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.StoragePath) == "" {
		s.writeError(w, http.StatusBadRequest, "storage path required")
		return
	}
	media, err := s.store.CreateMedia(r.Context(), &store.Media{
		OwnerID:         req.OwnerID,
		Kind:            store.MediaKind(req.Kind),
		StoragePath:     req.StoragePath,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
		IdentityKey:     req.IdentityKey,
		SourceURL:       req.SourceURL,
	})
	if err != nil {
		s.internalError(w, "create media", err)
		return
	}
	s.writeJSON(w, http.StatusOK, CreateMediaResponse{ID: media.ID})
}

// handleReuseLookup reports a prior artifact for the same identity under the
// same owner. A record whose backing file has gone missing is never reported
// as found.
func (s *Server) handleReuseLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ReuseLookupRequest
	if !s.decode(w, r, &req) {
		return
	}
	key := strings.TrimSpace(req.IdentityKey)
	if key == "" {
		key = identity.Key(req.SourceURL)
	}
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "source url or identity key required")
		return
	}
	media, err := s.store.FindMediaByIdentity(r.Context(), req.OwnerID, key)
	if err != nil {
		s.internalError(w, "reuse lookup", err)
		return
	}
	if media == nil {
		s.writeJSON(w, http.StatusOK, ReuseLookupResponse{Found: false})
		return
	}
	if _, statErr := os.Stat(media.StoragePath); statErr != nil {
		s.writeJSON(w, http.StatusOK, ReuseLookupResponse{Found: false})
		return
	}
	descriptor := mediaDescriptor(media)
	s.writeJSON(w, http.StatusOK, ReuseLookupResponse{Found: true, Media: &descriptor})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req CreateJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.store.CreateJob(r.Context(), &store.Job{
		Handle:      req.Handle,
		Kind:        store.JobKind(req.Kind),
		RunID:       req.RunID,
		OwnerID:     req.OwnerID,
		Queue:       req.Queue,
		PayloadJSON: req.PayloadJSON,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, CreateJobResponse{ID: job.ID, Handle: job.Handle})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if handle == "" || strings.Contains(handle, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		job, err := s.store.GetJobByHandle(r.Context(), handle)
		if err != nil {
			s.internalError(w, "get job", err)
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, jobDescriptor(job))
	case http.MethodPost:
		s.updateJob(w, r, handle)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request, handle string) {
	var req UpdateJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	update := store.JobUpdate{
		Progress:       req.Progress,
		ResultFragment: req.ResultFragment,
		ErrorMessage:   req.ErrorMessage,
	}
	if req.Status != nil {
		status, ok := store.ParseJobStatus(*req.Status)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown job status")
			return
		}
		update.Status = &status
	}
	job, err := s.store.UpdateJob(r.Context(), handle, update)
	if err != nil {
		s.internalError(w, "update job", err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, jobDescriptor(job))
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ownerID, ok := parseID(strings.TrimPrefix(r.URL.Path, "/api/quota/"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}
	snapshot, err := s.quotaSnapshot(r.Context(), ownerID)
	if err != nil {
		s.internalError(w, "quota snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) quotaSnapshot(ctx context.Context, ownerID int64) (QuotaSnapshot, error) {
	limits, err := s.store.TierLimits(ctx, ownerID)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	storageUsed, err := s.store.StorageBytesUsed(ctx, ownerID)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	period := time.Now().UTC().Format("2006-01")
	renderUsed, err := s.store.RenderSecondsUsed(ctx, ownerID, period)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	schedules, err := s.store.CountEnabledSchedulesForOwner(ctx, ownerID)
	if err != nil {
		return QuotaSnapshot{}, err
	}
	return QuotaSnapshot{
		StorageBytesLimit:  limits.StorageBytes,
		StorageBytesUsed:   storageUsed,
		RenderSecondsLimit: limits.RenderSecondsPerM,
		RenderSecondsUsed:  renderUsed,
		MaxSchedules:       limits.MaxSchedules,
		SchedulesEnabled:   schedules,
	}, nil
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req RecordUsageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Seconds < 0 {
		s.writeError(w, http.StatusBadRequest, "seconds must not be negative")
		return
	}
	period := time.Now().UTC().Format("2006-01")
	if err := s.store.RecordRenderUsage(r.Context(), req.OwnerID, req.RunID, req.Seconds, period); err != nil {
		s.internalError(w, "record usage", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if idStr, ok := strings.CutSuffix(rest, "/media"); ok {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.runMedia(w, r, idStr)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := parseID(rest)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	var req UpdateRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.internalError(w, "get run", err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	status := run.Status
	if req.Status != nil {
		parsed, ok := store.ParseRunStatus(*req.Status)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown run status")
			return
		}
		status = parsed
	}
	outputPath := run.OutputPath
	if req.OutputPath != nil {
		outputPath = *req.OutputPath
	}
	outputBytes := run.OutputBytes
	if req.OutputBytes != nil {
		outputBytes = *req.OutputBytes
	}
	completedAt := run.CompletedAt
	if req.CompletedAt != nil {
		completedAt = req.CompletedAt
	}
	if err := s.store.UpdateRunOutput(r.Context(), id, status, outputPath, outputBytes, completedAt); err != nil {
		s.internalError(w, "update run", err)
		return
	}
	if status != run.Status {
		s.announceRunOutcome(r.Context(), run, status, outputPath)
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// announceRunOutcome pushes a notification when a run reaches a terminal
// status. The transition has already committed; a failed push is logged and
// otherwise ignored.
func (s *Server) announceRunOutcome(ctx context.Context, run *store.Run, status store.RunStatus, outputPath string) {
	if s.notifier == nil {
		return
	}
	if status != store.RunStatusCompleted && status != store.RunStatusFailed {
		return
	}
	name := fmt.Sprintf("recipe %d", run.RecipeID)
	if recipe, err := s.store.GetRecipe(ctx, run.RecipeID); err == nil && recipe != nil {
		name = recipe.Name
	}

	var err error
	if status == store.RunStatusCompleted {
		err = s.notifier.NotifyRunCompleted(ctx, name, run.ID, outputPath)
	} else {
		err = s.notifier.NotifyError(ctx, fmt.Errorf("run %d failed", run.ID), name)
	}
	if err != nil {
		s.logger.Warn("run outcome notification failed",
			logging.Int64(logging.FieldRunID, run.ID), logging.Error(err))
	}
}

// runMedia lists the run's acquired artifacts in clip order; it is what the
// encode worker stitches together.
func (s *Server) runMedia(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(idStr)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.internalError(w, "get run", err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	clips, err := s.store.ClipsByRun(r.Context(), id)
	if err != nil {
		s.internalError(w, "run clips", err)
		return
	}
	media := make([]MediaDescriptor, 0, len(clips))
	for _, clip := range clips {
		if !clip.Downloaded || clip.MediaID == nil {
			continue
		}
		record, err := s.store.GetMedia(r.Context(), *clip.MediaID)
		if err != nil {
			s.internalError(w, "run media", err)
			return
		}
		if record == nil {
			continue
		}
		media = append(media, mediaDescriptor(record))
	}
	s.writeJSON(w, http.StatusOK, RunMediaResponse{Media: media})
}

func (s *Server) handleWorkerHello(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req WorkerHelloRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.RecordWorkerHeartbeat(r.Context(), req.WorkerID, req.Queue); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleClaimJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ClaimJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.RecordWorkerHeartbeat(r.Context(), req.WorkerID, req.Queue); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.store.ClaimNextJob(r.Context(), req.Queue, req.WorkerID)
	if err != nil {
		s.internalError(w, "claim job", err)
		return
	}
	if job == nil {
		s.writeJSON(w, http.StatusOK, ClaimJobResponse{Claimed: false})
		return
	}
	descriptor := jobDescriptor(job)
	s.writeJSON(w, http.StatusOK, ClaimJobResponse{Claimed: true, Job: &descriptor})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// internalError logs the cause and returns a generic message so internals
// never leak to workers.
func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("gateway operation failed", logging.String("operation", op), logging.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func mediaDescriptor(media *store.Media) MediaDescriptor {
	return MediaDescriptor{
		ID:              media.ID,
		OwnerID:         media.OwnerID,
		Kind:            string(media.Kind),
		StoragePath:     media.StoragePath,
		SizeBytes:       media.SizeBytes,
		DurationSeconds: media.DurationSeconds,
		IdentityKey:     media.IdentityKey,
		SourceURL:       media.SourceURL,
		CreatedAt:       media.CreatedAt,
	}
}

func jobDescriptor(job *store.Job) JobDescriptor {
	return JobDescriptor{
		ID:          job.ID,
		Handle:      job.Handle,
		Kind:        string(job.Kind),
		RunID:       job.RunID,
		OwnerID:     job.OwnerID,
		Queue:       job.Queue,
		Status:      string(job.Status),
		Progress:    job.Progress,
		PayloadJSON: job.PayloadJSON,
		ResultJSON:  job.ResultJSON,
		CompletedAt: job.CompletedAt,
	}
}
