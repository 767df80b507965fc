package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"blendcloud/internal/apierror"
	"blendcloud/internal/dto"
	"blendcloud/internal/infra"
	"blendcloud/internal/model"
	"blendcloud/internal/tenant"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the Redis lists.
type memStore struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

func newMemStore() *memStore { return &memStore{lists: map[string][][]byte{}} }

func (s *memStore) push(_ context.Context, queue string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[queue] = append([][]byte{data}, s.lists[queue]...)
	return nil
}

func (s *memStore) pop(ctx context.Context, _ time.Duration, queues ...string) (string, []byte, error) {
	s.mu.Lock()
	for _, q := range queues {
		if l := s.lists[q]; len(l) > 0 {
			last := l[len(l)-1]
			s.lists[q] = l[:len(l)-1]
			s.mu.Unlock()
			return q, last, nil
		}
	}
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	time.Sleep(time.Millisecond)
	return "", nil, redis.Nil
}

func (s *memStore) take(t *testing.T, queue string) []byte {
	t.Helper()
	q, data, err := s.pop(context.Background(), 0, queue)
	require.NoError(t, err)
	require.Equal(t, queue, q)
	return data
}

func (s *memStore) length(_ context.Context, queue string) (int64, error) {
	return int64(s.len(queue)), nil
}

func (s *memStore) len(queue string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists[queue])
}

type handlerFunc func(ctx context.Context, job Job) error

func (f handlerFunc) Process(ctx context.Context, job Job) error { return f(ctx, job) }

func TestDispatcher_EnqueueReporteCierre(t *testing.T) {
	store := newMemStore()
	d := &Dispatcher{store: store}
	tid, sid := uuid.New(), uuid.New()

	require.NoError(t, d.EnqueueReporteCierre(context.Background(), tid, sid))

	var job Job
	require.NoError(t, json.Unmarshal(store.take(t, QueueReportes), &job))
	assert.Equal(t, JobReporteCierre, job.Type)
	assert.Equal(t, tid, job.TenantID)
	var p ReporteJobPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, sid, p.SesionCajaID)
}

func TestPool_BindsTenantAndSucceeds(t *testing.T) {
	store := newMemStore()
	d := &Dispatcher{store: store}
	pool := newPool(store)
	tid := uuid.New()

	var got uuid.UUID
	pool.Register(QueueReportes, JobReporteCierre, handlerFunc(func(ctx context.Context, _ Job) error {
		got, _ = tenant.FromContext(ctx)
		return nil
	}))
	require.NoError(t, d.EnqueueReporteCierre(context.Background(), tid, uuid.New()))

	pool.process(context.Background(), QueueReportes, store.take(t, QueueReportes))
	assert.Equal(t, tid, got)
	assert.Zero(t, store.len(QueueReportes))
	assert.Zero(t, store.len(DLQPrefix+QueueReportes))
}

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	store := newMemStore()
	d := &Dispatcher{store: store}
	pool := newPool(store)

	calls := 0
	pool.Register(QueueEmail, JobEmail, handlerFunc(func(context.Context, Job) error {
		calls++
		return errors.New("smtp caido")
	}))
	require.NoError(t, d.EnqueueEmail(context.Background(), uuid.New(), EmailJobPayload{ToEmail: "a@b.test"}))

	for i := 0; i < maxAttempts; i++ {
		pool.process(context.Background(), QueueEmail, store.take(t, QueueEmail))
	}
	assert.Equal(t, maxAttempts, calls)
	assert.Zero(t, store.len(QueueEmail))

	var entry DLQEntry
	require.NoError(t, json.Unmarshal(store.take(t, DLQPrefix+QueueEmail), &entry))
	assert.Equal(t, maxAttempts, entry.Attempts)
	assert.Equal(t, "smtp caido", entry.Reason)
	assert.Equal(t, JobEmail, entry.JobType)
}

func TestPool_PermanentAndUnknownSkipRetries(t *testing.T) {
	store := newMemStore()
	d := &Dispatcher{store: store}
	pool := newPool(store)
	pool.Register(QueueReportes, JobReporteCierre, handlerFunc(func(context.Context, Job) error {
		return Permanent(apierror.NotFound("sesion de caja no encontrada"))
	}))

	require.NoError(t, d.EnqueueReporteCierre(context.Background(), uuid.New(), uuid.New()))
	pool.process(context.Background(), QueueReportes, store.take(t, QueueReportes))
	assert.Equal(t, 1, store.len(DLQPrefix+QueueReportes))

	require.NoError(t, d.EnqueueEmail(context.Background(), uuid.New(), EmailJobPayload{}))
	pool.process(context.Background(), QueueEmail, store.take(t, QueueEmail))
	assert.Equal(t, 1, store.len(DLQPrefix+QueueEmail), "no handler registered for email")

	pool.process(context.Background(), QueueEmail, []byte("{no-json"))
	assert.Equal(t, 2, store.len(DLQPrefix+QueueEmail))

	depths, err := dlqDepths(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{QueueReportes: 1, QueueEmail: 2}, depths)
}

func TestPool_StartDrainsAndStops(t *testing.T) {
	store := newMemStore()
	d := &Dispatcher{store: store}
	pool := newPool(store)

	done := make(chan uuid.UUID, 1)
	pool.Register(QueueReportes, JobReporteCierre, handlerFunc(func(ctx context.Context, _ Job) error {
		id, _ := tenant.FromContext(ctx)
		done <- id
		return nil
	}))
	tid := uuid.New()
	require.NoError(t, d.EnqueueReporteCierre(context.Background(), tid, uuid.New()))

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 2)
	select {
	case got := <-done:
		assert.Equal(t, tid, got)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
	cancel()
	pool.Wait()
}

// ── Report worker ─────────────────────────────────────────────────────────────

type fakeReportes struct {
	rep *dto.ReporteCierre
	err error
}

func (f fakeReportes) ObtenerReporte(context.Context, uuid.UUID) (*dto.ReporteCierre, error) {
	return f.rep, f.err
}

type fakeTenants map[uuid.UUID]model.Tenant

func (f fakeTenants) FindByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	t, ok := f[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return &t, nil
}

type captureEmails struct{ payloads []EmailJobPayload }

func (c *captureEmails) EnqueueEmail(_ context.Context, _ uuid.UUID, p EmailJobPayload) error {
	c.payloads = append(c.payloads, p)
	return nil
}

func reporteJob(t *testing.T, tid uuid.UUID) Job {
	t.Helper()
	payload, err := json.Marshal(ReporteJobPayload{SesionCajaID: uuid.New()})
	require.NoError(t, err)
	return Job{Type: JobReporteCierre, TenantID: tid, Payload: payload}
}

func TestReporteWorker_RendersAndEnqueuesEmail(t *testing.T) {
	tid := uuid.New()
	destino := "duenio@tienda.test"
	rep := &dto.ReporteCierre{
		SesionCajaID:     uuid.NewString(),
		OpenedAt:         "2026-03-02T12:00:00Z",
		PaymentBreakdown: map[string]int64{"cash": 100},
		DifferenceCents:  -20,
		DifferencePct:    decimal.RequireFromString("-1.11"),
		Classification:   "advertencia",
	}
	emails := &captureEmails{}
	dir := t.TempDir()
	w := NewReporteWorker(fakeReportes{rep: rep}, fakeTenants{tid: {ID: tid, Nombre: "Almacen", EmailReportes: &destino}}, emails, dir)

	require.NoError(t, w.Process(context.Background(), reporteJob(t, tid)))
	require.Len(t, emails.payloads, 1)
	p := emails.payloads[0]
	assert.Equal(t, destino, p.ToEmail)
	assert.Equal(t, filepath.Join(dir, "cierre_"+rep.SesionCajaID+".pdf"), p.PDFPath)
	assert.FileExists(t, p.PDFPath)
	assert.Contains(t, p.Body, "advertencia")
}

func TestReporteWorker_NoAddressNoEmail(t *testing.T) {
	tid := uuid.New()
	rep := &dto.ReporteCierre{SesionCajaID: uuid.NewString(), OpenedAt: "2026-03-02T12:00:00Z"}
	emails := &captureEmails{}
	w := NewReporteWorker(fakeReportes{rep: rep}, fakeTenants{tid: {ID: tid, Nombre: "Kiosco"}}, emails, t.TempDir())

	require.NoError(t, w.Process(context.Background(), reporteJob(t, tid)))
	assert.Empty(t, emails.payloads)
}

func TestReporteWorker_MissingSessionIsPermanent(t *testing.T) {
	w := NewReporteWorker(fakeReportes{err: apierror.NotFound("sesion de caja no encontrada")}, fakeTenants{}, &captureEmails{}, t.TempDir())
	err := w.Process(context.Background(), reporteJob(t, uuid.New()))
	assert.ErrorAs(t, err, new(permanentError))

	w = NewReporteWorker(fakeReportes{err: apierror.Internal(errors.New("conn reset"))}, fakeTenants{}, &captureEmails{}, t.TempDir())
	err = w.Process(context.Background(), reporteJob(t, uuid.New()))
	require.Error(t, err)
	assert.False(t, errors.As(err, new(permanentError)), "storage failures are retried")
}

// ── Email worker ──────────────────────────────────────────────────────────────

type fakeSender struct {
	err  error
	sent []string
	pdfs [][]byte
}

func (f *fakeSender) SendReporte(to, _, _, _ string, pdf []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	f.pdfs = append(f.pdfs, pdf)
	return nil
}

func emailJob(t *testing.T, p EmailJobPayload) Job {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return Job{Type: JobEmail, TenantID: uuid.New(), Payload: raw}
}

func TestEmailWorker_SendsAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cierre.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3"), 0o644))
	sender := &fakeSender{}
	w := NewEmailWorker(sender, infra.NewCircuitBreaker(infra.DefaultCBConfig()))

	require.NoError(t, w.Process(context.Background(), emailJob(t, EmailJobPayload{ToEmail: "x@y.test", PDFPath: path})))
	assert.Equal(t, []string{"x@y.test"}, sender.sent)
	assert.Equal(t, []byte("%PDF-1.3"), sender.pdfs[0])
}

func TestEmailWorker_BreakerOpensOnRepeatedFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("dial tcp: i/o timeout")}
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour})
	w := NewEmailWorker(sender, cb)
	job := emailJob(t, EmailJobPayload{ToEmail: "x@y.test"})

	assert.Error(t, w.Process(context.Background(), job))
	assert.Error(t, w.Process(context.Background(), job))
	assert.ErrorIs(t, w.Process(context.Background(), job), infra.ErrCircuitOpen)
}

func TestEmailWorker_DisabledMailerSkips(t *testing.T) {
	w := NewEmailWorker(nil, infra.NewCircuitBreaker(infra.DefaultCBConfig()))
	assert.NoError(t, w.Process(context.Background(), emailJob(t, EmailJobPayload{ToEmail: "x@y.test"})))
}
