package server

import (
	"encoding/json"
	"time"

	"zkdraw/draw-prover/draw"
	"zkdraw/draw-prover/logging"
	"zkdraw/draw-prover/prover"
)

// ProofJob is one queued prove request. Payload carries the raw request
// body so the worker parses it exactly like the synchronous path.
type ProofJob struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Prover is the slice of the orchestrator the server needs. Keeping it an
// interface lets handler and worker tests run without a key ceremony.
type Prover interface {
	GenerateProof(in draw.Inputs) (*prover.ProofBundle, error)
	VerifyProof(bundle *prover.ProofBundle) (bool, error)
	State() prover.State
}

type QueueWorker interface {
	Start()
	Stop()
}

// ProveQueueWorker drains the prove queue and runs each job through the
// matching circuit's prover.
type ProveQueueWorker struct {
	queue    *RedisQueue
	provers  map[string]Prover
	stopChan chan struct{}
}

func NewProveQueueWorker(queue *RedisQueue, provers map[string]Prover) *ProveQueueWorker {
	return &ProveQueueWorker{
		queue:    queue,
		provers:  provers,
		stopChan: make(chan struct{}),
	}
}

func (w *ProveQueueWorker) Start() {
	logging.Logger().Info().Str("queue", ProveQueueName).Msg("starting queue worker")
	for {
		select {
		case <-w.stopChan:
			logging.Logger().Info().Str("queue", ProveQueueName).Msg("queue worker stopping")
			return
		default:
			w.processJobs()
		}
	}
}

func (w *ProveQueueWorker) Stop() {
	close(w.stopChan)
}

func (w *ProveQueueWorker) processJobs() {
	job, err := w.queue.DequeueProof(ProveQueueName, 5*time.Second)
	if err != nil {
		logging.Logger().Error().Err(err).Str("queue", ProveQueueName).Msg("error dequeuing job")
		time.Sleep(2 * time.Second)
		return
	}
	if job == nil {
		return
	}

	logging.Logger().Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Msg("processing proof job")

	if err := w.processJob(job); err != nil {
		logging.Logger().Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("proof job failed")
		w.recordFailure(job, err)
		RecordJobComplete(false)
		return
	}
	RecordJobComplete(true)
}

func (w *ProveQueueWorker) processJob(job *ProofJob) error {
	var req proveRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return err
	}
	p, err := lookupProver(w.provers, req.Circuit)
	if err != nil {
		return err
	}

	timer := StartProofTimer(req.Circuit)
	bundle, err := p.GenerateProof(req.Inputs)
	if err != nil {
		timer.ObserveError(classifyProvingError(err))
		return err
	}
	timer.ObserveDuration()

	return w.queue.StoreResult(job.ID, bundle)
}

func (w *ProveQueueWorker) recordFailure(job *ProofJob, jobErr error) {
	failed := &ProofJob{
		ID:        job.ID,
		Type:      "failed",
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(map[string]any{
		"error":     jobErr.Error(),
		"failed_at": time.Now(),
	})
	if err == nil {
		failed.Payload = payload
	}
	if err := w.queue.EnqueueProof(FailedQueueName, failed); err != nil {
		logging.Logger().Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("could not record job failure")
	}
}
