package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"zkdraw/draw-prover/draw"
	"zkdraw/draw-prover/logging"
	"zkdraw/draw-prover/prover"
	"zkdraw/draw-prover/setup"
)

type Config struct {
	ProverAddress  string
	MetricsAddress string
}

type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func malformedBodyError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "malformed_body", Message: err.Error()}
}

func validationError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "validation_error", Message: err.Error()}
}

func provingError(err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: "proving_error", Message: err.Error()}
}

func unknownCircuitError(name string) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       "unknown_circuit",
		Message:    fmt.Sprintf("no circuit named %q is loaded", name),
	}
}

func unexpectedError(err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: "unexpected_error", Message: err.Error()}
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"code":    e.Code,
		"message": e.Message,
	})
}

func (e *Error) send(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	jsonBytes, err := e.MarshalJSON()
	if err != nil {
		jsonBytes = []byte(`{"code": "unexpected_error", "message": "failed to marshal error"}`)
	}
	if _, err := w.Write(jsonBytes); err != nil {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}

type proveRequest struct {
	Circuit string      `json:"circuit"`
	Inputs  draw.Inputs `json:"inputs"`
}

type verifyRequest struct {
	Circuit string             `json:"circuit"`
	Bundle  prover.ProofBundle `json:"bundle"`
}

func lookupProver(provers map[string]Prover, name string) (Prover, error) {
	if name == "" {
		return nil, fmt.Errorf("circuit is required")
	}
	p, ok := provers[name]
	if !ok {
		return nil, fmt.Errorf("no circuit named %q is loaded", name)
	}
	return p, nil
}

func classifyProvingError(err error) string {
	var vErr *draw.ValidationError
	var mismatchErr *prover.VerificationMismatchError
	var toolErr *setup.ExternalToolError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &mismatchErr):
		return "verification_mismatch"
	case errors.As(err, &toolErr):
		return "external_tool"
	default:
		return "unexpected"
	}
}

type proveHandler struct {
	provers     map[string]Prover
	redisQueue  *RedisQueue
	enableQueue bool
}

func (h proveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		malformedBodyError(err).send(w)
		return
	}
	var req proveRequest
	if err := json.Unmarshal(buf, &req); err != nil {
		malformedBodyError(err).send(w)
		return
	}

	forceAsync := r.Header.Get("X-Async") == "true" || r.URL.Query().Get("async") == "true"
	if forceAsync && h.enableQueue && h.redisQueue != nil {
		h.handleAsync(w, buf, req)
		return
	}
	h.handleSync(w, req)
}

func (h proveHandler) handleSync(w http.ResponseWriter, req proveRequest) {
	p, err := lookupProver(h.provers, req.Circuit)
	if err != nil {
		unknownCircuitError(req.Circuit).send(w)
		return
	}

	timer := StartProofTimer(req.Circuit)
	bundle, err := p.GenerateProof(req.Inputs)
	if err != nil {
		timer.ObserveError(classifyProvingError(err))
		var vErr *draw.ValidationError
		if errors.As(err, &vErr) {
			validationError(err).send(w)
			return
		}
		logging.Logger().Error().
			Err(err).
			Str("circuit", req.Circuit).
			Msg("proof generation failed")
		provingError(err).send(w)
		return
	}
	timer.ObserveDuration()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(bundle); err != nil {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}

func (h proveHandler) handleAsync(w http.ResponseWriter, buf []byte, req proveRequest) {
	if _, err := lookupProver(h.provers, req.Circuit); err != nil {
		unknownCircuitError(req.Circuit).send(w)
		return
	}
	job := &ProofJob{
		ID:        uuid.New().String(),
		Type:      "draw_proof",
		Payload:   json.RawMessage(buf),
		CreatedAt: time.Now(),
	}
	if err := h.redisQueue.EnqueueProof(ProveQueueName, job); err != nil {
		unexpectedError(err).send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":  job.ID,
		"status":  "queued",
		"circuit": req.Circuit,
	})
}

type verifyHandler struct {
	provers map[string]Prover
}

func (h verifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		malformedBodyError(err).send(w)
		return
	}
	p, err := lookupProver(h.provers, req.Circuit)
	if err != nil {
		unknownCircuitError(req.Circuit).send(w)
		return
	}

	valid, err := p.VerifyProof(&req.Bundle)
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	RecordVerification(req.Circuit, valid)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"circuit": req.Circuit,
		"valid":   valid,
	})
}

type healthHandler struct {
	provers map[string]Prover
}

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	circuits := make(map[string]string, len(h.provers))
	ready := true
	for name, p := range h.provers {
		state := p.State()
		circuits[name] = string(state)
		if state != prover.StateReady {
			ready = false
		}
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ready":    ready,
		"circuits": circuits,
	})
}

type proofStatusHandler struct {
	redisQueue *RedisQueue
}

func (h proofStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		malformedBodyError(fmt.Errorf("job_id parameter required")).send(w)
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		(&Error{
			StatusCode: http.StatusBadRequest,
			Code:       "invalid_job_id",
			Message:    "job ID must be a valid UUID",
		}).send(w)
		return
	}

	result, err := h.redisQueue.GetResult(jobID)
	if err != nil && err != redis.Nil {
		unexpectedError(err).send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err == nil {
		json.NewEncoder(w).Encode(map[string]any{
			"job_id": jobID,
			"status": "completed",
			"result": result,
		})
		return
	}

	status, found := h.redisQueue.FindJob(jobID)
	if !found {
		(&Error{
			StatusCode: http.StatusNotFound,
			Code:       "job_not_found",
			Message:    fmt.Sprintf("job %s not found; it may have expired", jobID),
		}).send(w)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

type queueStatsHandler struct {
	redisQueue *RedisQueue
}

func (h queueStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.redisQueue.GetQueueStats()
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"queues":    stats,
		"timestamp": time.Now().Unix(),
	})
}

func spawnServerJob(server *http.Server, label string) RunningJob {
	start := func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("%s failed: %s", label, err))
		}
	}
	shutdown := func() {
		logging.Logger().Info().Msgf("shutting down %s", label)
		if err := server.Shutdown(context.Background()); err != nil {
			logging.Logger().Error().Err(err).Msgf("error when shutting down %s", label)
		}
		logging.Logger().Info().Msgf("%s shut down", label)
	}
	return SpawnJob(start, shutdown)
}

// Run starts the prover and metrics servers without queue support.
func Run(config *Config, provers map[string]Prover) RunningJob {
	return RunWithQueue(config, nil, provers)
}

// RunWithQueue starts the prover server, the metrics server and, when a
// queue is supplied, the async endpoints backed by it.
func RunWithQueue(config *Config, redisQueue *RedisQueue, provers map[string]Prover) RunningJob {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: config.MetricsAddress, Handler: metricsMux}
	metricsJob := spawnServerJob(metricsServer, "metrics server")
	logging.Logger().Info().Str("addr", config.MetricsAddress).Msg("metrics server started")

	proverMux := http.NewServeMux()
	proverMux.Handle("/prove", proveHandler{
		provers:     provers,
		redisQueue:  redisQueue,
		enableQueue: redisQueue != nil,
	})
	proverMux.Handle("/verify", verifyHandler{provers: provers})
	proverMux.Handle("/health", healthHandler{provers: provers})
	if redisQueue != nil {
		proverMux.Handle("/prove/status", proofStatusHandler{redisQueue: redisQueue})
		proverMux.Handle("/queue/stats", queueStatsHandler{redisQueue: redisQueue})
	}

	corsHandler := handlers.CORS(
		handlers.AllowedHeaders([]string{
			"X-Requested-With",
			"Content-Type",
			"Authorization",
			"X-Async",
		}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
	)

	proverServer := &http.Server{Addr: config.ProverAddress, Handler: corsHandler(proverMux)}
	proverJob := spawnServerJob(proverServer, "prover server")
	logging.Logger().Info().
		Str("addr", config.ProverAddress).
		Bool("queue_enabled", redisQueue != nil).
		Msg("prover server started")

	return CombineJobs(metricsJob, proverJob)
}
