package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"blendcloud/internal/metrics"
	"blendcloud/internal/tenant"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	QueueReportes = "jobs:reportes"
	QueueEmail    = "jobs:email"

	JobReporteCierre = "reporte_cierre"
	JobEmail         = "email"

	maxAttempts = 3
)

// Job is the generic envelope for all async tasks. Every job runs inside the
// tenant that enqueued it.
type Job struct {
	Type     string          `json:"type"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler processes one job type. Returning a Permanent error skips retries.
type Handler interface {
	Process(ctx context.Context, job Job) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return permanentError{err: err} }

// queueStore is the slice of Redis the pool needs.
type queueStore interface {
	push(ctx context.Context, queue string, data []byte) error
	pop(ctx context.Context, timeout time.Duration, queues ...string) (queue string, data []byte, err error)
	length(ctx context.Context, queue string) (int64, error)
}

type redisStore struct{ rdb *redis.Client }

func (s redisStore) push(ctx context.Context, queue string, data []byte) error {
	return s.rdb.LPush(ctx, queue, data).Err()
}

func (s redisStore) length(ctx context.Context, queue string) (int64, error) {
	return s.rdb.LLen(ctx, queue).Result()
}

func (s redisStore) pop(ctx context.Context, timeout time.Duration, queues ...string) (string, []byte, error) {
	res, err := s.rdb.BRPop(ctx, timeout, queues...).Result()
	if err != nil {
		return "", nil, err
	}
	if len(res) < 2 {
		return "", nil, redis.Nil
	}
	return res[0], []byte(res[1]), nil
}

// ── Dispatcher ────────────────────────────────────────────────────────────────

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	store queueStore
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{store: redisStore{rdb: rdb}}
}

// ReporteJobPayload asks for the closing report of a session.
type ReporteJobPayload struct {
	SesionCajaID uuid.UUID `json:"sesion_caja_id"`
}

// EnqueueReporteCierre schedules rendering and delivery of a closing report.
func (d *Dispatcher) EnqueueReporteCierre(ctx context.Context, tenantID, sesionCajaID uuid.UUID) error {
	return d.enqueue(ctx, QueueReportes, JobReporteCierre, tenantID, ReporteJobPayload{SesionCajaID: sesionCajaID})
}

// EnqueueEmail pushes an email job to Redis.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, tenantID uuid.UUID, payload EmailJobPayload) error {
	return d.enqueue(ctx, QueueEmail, JobEmail, tenantID, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, tenantID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, TenantID: tenantID, Payload: data})
	if err != nil {
		return err
	}
	return d.store.push(ctx, queue, encoded)
}

// ── Pool ──────────────────────────────────────────────────────────────────────

// Pool runs a fixed number of goroutines consuming every registered queue.
// Failed jobs are pushed back with Attempts+1; after maxAttempts, or on a
// Permanent error, they go to the DLQ.
type Pool struct {
	store    queueStore
	handlers map[string]Handler
	queues   map[string]string // job type -> queue
	wg       sync.WaitGroup
}

func NewPool(rdb *redis.Client) *Pool {
	return newPool(redisStore{rdb: rdb})
}

func newPool(store queueStore) *Pool {
	return &Pool{store: store, handlers: map[string]Handler{}, queues: map[string]string{}}
}

// Register binds a job type on queue to its handler.
func (p *Pool) Register(queue, jobType string, h Handler) {
	p.handlers[jobType] = h
	p.queues[jobType] = queue
}

// Start launches numWorkers goroutines. Each blocks on BRPOP, zero CPU when idle.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	seen := map[string]bool{}
	var queues []string
	for _, q := range p.queues {
		if !seen[q] {
			seen[q] = true
			queues = append(queues, q)
		}
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id, queues)
		}(i)
	}
	log.Info().Int("workers", numWorkers).Strs("queues", queues).Msg("worker pool started")
}

// Wait blocks until every worker has returned after ctx was cancelled.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int, queues []string) {
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("worker shutting down")
			return
		}
		// Blocking pop: waits up to 5s then loops to check ctx
		queue, raw, err := p.store.pop(ctx, 5*time.Second, queues...)
		if err != nil {
			continue
		}
		p.process(ctx, queue, raw)
	}
}

// process runs one raw job and decides between done, retry and DLQ.
func (p *Pool) process(ctx context.Context, queue string, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		quoted, _ := json.Marshal(string(raw))
		SendToDLQ(ctx, p.store, queue, Job{Payload: quoted}, "payload ilegible: "+err.Error())
		metrics.JobsTotal.WithLabelValues(queue, "dlq").Inc()
		return
	}
	job.Attempts++

	l := log.Logger.With().
		Str("queue", queue).
		Str("job_type", job.Type).
		Str("tenant_id", job.TenantID.String()).
		Int("attempt", job.Attempts).
		Logger()
	jobCtx := l.WithContext(ctx)

	err := p.dispatch(jobCtx, job)
	switch {
	case err == nil:
		metrics.JobsTotal.WithLabelValues(queue, "ok").Inc()
	case errors.As(err, new(permanentError)) || job.Attempts >= maxAttempts:
		SendToDLQ(ctx, p.store, queue, job, err.Error())
		metrics.JobsTotal.WithLabelValues(queue, "dlq").Inc()
	default:
		zerolog.Ctx(jobCtx).Warn().Err(err).Msg("job failed, requeueing")
		encoded, _ := json.Marshal(job)
		if perr := p.store.push(ctx, queue, encoded); perr != nil {
			zerolog.Ctx(jobCtx).Error().Err(perr).Msg("requeue failed")
		}
		metrics.JobsTotal.WithLabelValues(queue, "retry").Inc()
	}
}

func (p *Pool) dispatch(ctx context.Context, job Job) error {
	h, ok := p.handlers[job.Type]
	if !ok {
		return Permanent(errors.New("tipo de job desconocido: " + job.Type))
	}
	ctx, err := tenant.Bind(ctx, job.TenantID)
	if err != nil {
		return Permanent(err)
	}
	return h.Process(ctx, job)
}
