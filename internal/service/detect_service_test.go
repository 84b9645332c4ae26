package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"garage-monitor/internal/anpr"
	"garage-monitor/internal/domain/garage"
	"garage-monitor/internal/metrics"
	"garage-monitor/internal/occupancy"
	"garage-monitor/internal/repository"
)

type fakeFrames struct {
	err     error
	fetches int
}

func (f *fakeFrames) Fetch(ctx context.Context, endpoint string) (gocv.Mat, error) {
	f.fetches++
	if f.err != nil {
		return gocv.NewMat(), f.err
	}
	return gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3), nil
}

type fakePipeline struct {
	results []anpr.PlateResult
	calls   int
}

func (f *fakePipeline) Process(frame *gocv.Mat, persist bool, outputPath string) []anpr.PlateResult {
	f.calls++
	return f.results
}

type fakeRepo struct {
	mu        sync.Mutex
	createErr error
	events    []repository.CarEvent

	slots      []repository.Slot
	setErr     error
	setChanged bool
	setCalls   int
	total      int64
	occupied   int64
}

func (f *fakeRepo) CreateCarEvent(ctx context.Context, event *repository.CarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	event.ID = int64(len(f.events) + 1)
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeRepo) ListSlots(ctx context.Context) ([]repository.Slot, error) {
	return f.slots, nil
}

func (f *fakeRepo) SetSlotOccupied(ctx context.Context, slotID string, occupied bool, at time.Time) (bool, error) {
	f.setCalls++
	if f.setErr != nil {
		return false, f.setErr
	}
	return f.setChanged, nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, slotID *string, limit int) ([]repository.OccupancyHistory, error) {
	return nil, nil
}

func (f *fakeRepo) CountSlots(ctx context.Context) (int64, int64, error) {
	return f.total, f.occupied, nil
}
func (f *fakeRepo) ListCarEvents(ctx context.Context, plate *string, limit int) ([]repository.CarEvent, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteOldCarEvents(ctx context.Context, days int) (int64, error) { return 0, nil }

type fakeHub struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeHub) Broadcast(msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgType)
}

type detectFixture struct {
	svc      *DetectService
	frames   *fakeFrames
	pipeline *fakePipeline
	repo     *fakeRepo
	hub      *fakeHub
	counter  *occupancy.Counter
	metrics  *metrics.Metrics
}

func newDetectFixture(t *testing.T, queueSize int) *detectFixture {
	t.Helper()
	f := &detectFixture{
		frames:   &fakeFrames{},
		pipeline: &fakePipeline{},
		repo:     &fakeRepo{},
		hub:      &fakeHub{},
		counter:  occupancy.NewCounter(4),
		metrics:  metrics.New(),
	}
	f.svc = NewDetectService(
		f.frames, f.pipeline, f.repo, f.counter, f.metrics, f.hub,
		t.TempDir(), "http://camera.local", time.Second, queueSize,
		zerolog.Nop(),
	)
	return f
}

func TestTriggerRejectsInvalidEvent(t *testing.T) {
	f := newDetectFixture(t, 4)

	_, err := f.svc.Trigger("parked", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Trigger(parked) error = %v, want ErrInvalidInput", err)
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter after invalid trigger = %d, want 0", got)
	}
	if got := f.metrics.JobsQueued.Load(); got != 0 {
		t.Fatalf("jobs queued after invalid trigger = %d, want 0", got)
	}
}

func TestTriggerEnterReservesBeforeDispatch(t *testing.T) {
	f := newDetectFixture(t, 4)

	id, err := f.svc.Trigger(garage.EventEnter, "")
	if err != nil {
		t.Fatalf("Trigger(enter) error = %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("Trigger returned nil job id")
	}
	if got := f.counter.Value(); got != 1 {
		t.Fatalf("counter after enter trigger = %d, want 1 before any frame work", got)
	}
	if got := f.metrics.JobsQueued.Load(); got != 1 {
		t.Fatalf("jobs queued = %d, want 1", got)
	}
}

func TestTriggerQueueFullRollsBackReservation(t *testing.T) {
	f := newDetectFixture(t, 1)

	if _, err := f.svc.Trigger(garage.EventEnter, ""); err != nil {
		t.Fatalf("first Trigger error = %v", err)
	}
	_, err := f.svc.Trigger(garage.EventEnter, "")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Trigger error = %v, want ErrQueueFull", err)
	}
	if got := f.counter.Value(); got != 1 {
		t.Fatalf("counter after rejected trigger = %d, want 1 (only the queued job's reservation)", got)
	}
	if got := f.metrics.JobsRejected.Load(); got != 1 {
		t.Fatalf("jobs rejected = %d, want 1", got)
	}
}

func TestRunFetchFailureAbandonsAndKeepsReservation(t *testing.T) {
	f := newDetectFixture(t, 4)
	f.frames.err = errors.New("camera timeout")
	f.counter.Reserve()

	f.svc.run(context.Background(), detectJob{
		id: uuid.New(), event: garage.EventEnter, cameraURL: "http://camera.local", queuedAt: time.Now().UTC(),
	}, zerolog.Nop())

	if len(f.repo.events) != 0 {
		t.Fatalf("persisted %d events after fetch failure, want 0", len(f.repo.events))
	}
	if got := f.counter.Value(); got != 1 {
		t.Fatalf("counter after abandoned enter = %d, want reservation kept at 1", got)
	}
	if got := f.metrics.JobsAbandoned.Load(); got != 1 {
		t.Fatalf("jobs abandoned = %d, want 1", got)
	}
	if f.pipeline.calls != 0 {
		t.Fatalf("pipeline ran %d times after fetch failure, want 0", f.pipeline.calls)
	}
}

func TestRunNoPlateAbandons(t *testing.T) {
	f := newDetectFixture(t, 4)
	f.pipeline.results = nil

	f.svc.run(context.Background(), detectJob{
		id: uuid.New(), event: garage.EventExit, cameraURL: "http://camera.local", queuedAt: time.Now().UTC(),
	}, zerolog.Nop())

	if len(f.repo.events) != 0 {
		t.Fatalf("persisted %d events with no plate, want 0", len(f.repo.events))
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter = %d, want 0 (exit only releases on commit)", got)
	}
	if got := f.metrics.JobsAbandoned.Load(); got != 1 {
		t.Fatalf("jobs abandoned = %d, want 1", got)
	}
}

func TestRunCommitExitReleasesCounter(t *testing.T) {
	f := newDetectFixture(t, 4)
	f.counter.Reserve()
	f.pipeline.results = []anpr.PlateResult{
		{PlateNumber: "AB 1234 CD", Confidence: 0.91},
		{PlateNumber: "XY 9999 ZZ", Confidence: 0.40},
	}

	f.svc.run(context.Background(), detectJob{
		id: uuid.New(), event: garage.EventExit, cameraURL: "http://camera.local", queuedAt: time.Now().UTC(),
	}, zerolog.Nop())

	if len(f.repo.events) != 1 {
		t.Fatalf("persisted %d events, want 1", len(f.repo.events))
	}
	event := f.repo.events[0]
	if event.Plate != "AB 1234 CD" {
		t.Fatalf("persisted plate = %q, want first pipeline result", event.Plate)
	}
	if event.Event != garage.EventExit {
		t.Fatalf("persisted event = %q, want exit", event.Event)
	}
	if event.Confidence == nil || *event.Confidence != 0.91 {
		t.Fatalf("persisted confidence = %v, want 0.91", event.Confidence)
	}
	if event.ImagePath == nil || *event.ImagePath == "" {
		t.Fatal("persisted event has no image path")
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter after committed exit = %d, want 0", got)
	}
	if got := f.metrics.JobsCommitted.Load(); got != 1 {
		t.Fatalf("jobs committed = %d, want 1", got)
	}
	if len(f.hub.messages) != 1 || f.hub.messages[0] != "car_event" {
		t.Fatalf("broadcasts = %v, want one car_event", f.hub.messages)
	}
}

func TestRunPersistFailureAbandons(t *testing.T) {
	f := newDetectFixture(t, 4)
	f.counter.Reserve()
	f.repo.createErr = errors.New("db down")
	f.pipeline.results = []anpr.PlateResult{{PlateNumber: "AB 1234 CD", Confidence: 0.8}}

	f.svc.run(context.Background(), detectJob{
		id: uuid.New(), event: garage.EventExit, cameraURL: "http://camera.local", queuedAt: time.Now().UTC(),
	}, zerolog.Nop())

	if got := f.counter.Value(); got != 1 {
		t.Fatalf("counter after failed persist = %d, want 1 (exit not released)", got)
	}
	if got := f.metrics.JobsAbandoned.Load(); got != 1 {
		t.Fatalf("jobs abandoned = %d, want 1", got)
	}
}

func TestStartProcessesQueuedJobs(t *testing.T) {
	f := newDetectFixture(t, 4)
	f.pipeline.results = []anpr.PlateResult{{PlateNumber: "AB 1234 CD", Confidence: 0.9}}

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Start(ctx, 2)

	if _, err := f.svc.Trigger(garage.EventEnter, ""); err != nil {
		t.Fatalf("Trigger error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for f.metrics.JobsCommitted.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job was not committed within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	f.svc.Wait()

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	if len(f.repo.events) != 1 {
		t.Fatalf("persisted %d events, want 1", len(f.repo.events))
	}
}
