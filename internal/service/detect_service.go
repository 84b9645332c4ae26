package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"gorm.io/datatypes"

	"garage-monitor/internal/anpr"
	"garage-monitor/internal/domain/garage"
	"garage-monitor/internal/metrics"
	"garage-monitor/internal/occupancy"
	"garage-monitor/internal/repository"
)

// ErrQueueFull is returned by Trigger when the detection queue has no
// room for another job.
var ErrQueueFull = errors.New("detection queue is full")

// FrameSource grabs a single frame from a camera endpoint. The returned
// Mat is owned by the caller.
type FrameSource interface {
	Fetch(ctx context.Context, endpoint string) (gocv.Mat, error)
}

// PlateReader runs the recognition pipeline over one frame.
type PlateReader interface {
	Process(frame *gocv.Mat, persist bool, outputPath string) []anpr.PlateResult
}

type detectJob struct {
	id        uuid.UUID
	event     string
	cameraURL string
	queuedAt  time.Time
}

// DetectService runs gate-triggered plate recognition asynchronously.
// Trigger validates and enqueues; a fixed worker pool fetches the frame,
// recognizes plates and persists the result. The provisional counter is
// adjusted optimistically: an enter reserves before the job is queued and
// keeps the reservation even if the job is later abandoned, an exit
// releases only once the job commits.
type DetectService struct {
	frames   FrameSource
	pipeline PlateReader
	repo     repository.GarageRepository
	counter  *occupancy.Counter
	metrics  *metrics.Metrics
	hub      Broadcaster
	log      zerolog.Logger

	dataDir          string
	defaultCameraURL string
	fetchTimeout     time.Duration

	jobs chan detectJob
	wg   sync.WaitGroup
}

func NewDetectService(
	frames FrameSource,
	pipeline PlateReader,
	repo repository.GarageRepository,
	counter *occupancy.Counter,
	m *metrics.Metrics,
	hub Broadcaster,
	dataDir string,
	defaultCameraURL string,
	fetchTimeout time.Duration,
	queueSize int,
	log zerolog.Logger,
) *DetectService {
	if queueSize <= 0 {
		queueSize = 16
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &DetectService{
		frames:           frames,
		pipeline:         pipeline,
		repo:             repo,
		counter:          counter,
		metrics:          m,
		hub:              hub,
		log:              log,
		dataDir:          dataDir,
		defaultCameraURL: defaultCameraURL,
		fetchTimeout:     fetchTimeout,
		jobs:             make(chan detectJob, queueSize),
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled;
// jobs still queued at that point are dropped.
func (s *DetectService) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(worker int) {
			defer s.wg.Done()
			log := s.log.With().Int("worker", worker).Logger()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-s.jobs:
					s.run(ctx, job, log)
				}
			}
		}(i)
	}
	s.log.Info().Int("workers", workers).Int("queue_size", cap(s.jobs)).Msg("detection workers started")
}

// Wait blocks until all workers have exited after their context was
// cancelled.
func (s *DetectService) Wait() {
	s.wg.Wait()
}

// Trigger validates a gate signal and enqueues a detection job. The
// response carries the job id; the heavy work happens on a worker. An
// enter adjusts the provisional counter here, before any frame is
// fetched. When the queue is full the trigger is rejected outright and
// the reservation is rolled back, since the caller learns synchronously
// that nothing will run.
func (s *DetectService) Trigger(event, cameraURL string) (uuid.UUID, error) {
	if !garage.ValidEventType(event) {
		return uuid.Nil, fmt.Errorf("%w: event must be %q or %q", ErrInvalidInput, garage.EventEnter, garage.EventExit)
	}
	if cameraURL == "" {
		cameraURL = s.defaultCameraURL
	}

	if event == garage.EventEnter {
		s.metrics.ProvisionalOccupancy.Store(int64(s.counter.Reserve()))
	}

	job := detectJob{
		id:        uuid.New(),
		event:     event,
		cameraURL: cameraURL,
		queuedAt:  time.Now().UTC(),
	}

	select {
	case s.jobs <- job:
		s.metrics.JobsQueued.Add(1)
	default:
		if event == garage.EventEnter {
			s.metrics.ProvisionalOccupancy.Store(int64(s.counter.Release()))
		}
		s.metrics.JobsRejected.Add(1)
		s.log.Warn().Str("event", event).Msg("detection queue full, trigger rejected")
		return uuid.Nil, ErrQueueFull
	}

	s.log.Info().
		Str("job_id", job.id.String()).
		Str("event", event).
		Str("camera_url", cameraURL).
		Msg("detection job queued")
	return job.id, nil
}

func (s *DetectService) run(ctx context.Context, job detectJob, log zerolog.Logger) {
	log = log.With().Str("job_id", job.id.String()).Str("event", job.event).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	frame, err := s.frames.Fetch(fetchCtx, job.cameraURL)
	cancel()
	if err != nil {
		// Abandoned; an enter keeps its reservation. The camera is the
		// same device that raised the trigger, so the car is almost
		// certainly there even though we could not read its plate.
		s.metrics.JobsAbandoned.Add(1)
		log.Warn().Err(err).Msg("frame fetch failed, job abandoned")
		return
	}
	defer frame.Close()

	filename := fmt.Sprintf("capture_%s_%s.jpg",
		job.queuedAt.Format("20060102_150405"),
		job.id.String()[:8])
	outputPath := filepath.Join(s.dataDir, filename)

	results := s.pipeline.Process(&frame, true, outputPath)
	if len(results) == 0 {
		s.metrics.JobsAbandoned.Add(1)
		log.Warn().Msg("no valid plate recognized, job abandoned")
		return
	}

	best := results[0]
	confidence := best.Confidence
	imagePath := "/data/" + filename

	detection, err := json.Marshal(map[string]interface{}{
		"plates": plateNumbers(results),
		"count":  len(results),
	})
	if err != nil {
		detection = nil
	}

	event := &repository.CarEvent{
		Plate:      best.PlateNumber,
		Event:      job.event,
		Confidence: &confidence,
		ImagePath:  &imagePath,
		Detection:  datatypes.JSON(detection),
		Timestamp:  time.Now().UTC(),
	}
	if err := s.repo.CreateCarEvent(ctx, event); err != nil {
		s.metrics.JobsAbandoned.Add(1)
		log.Error().Err(err).Str("plate", best.PlateNumber).Msg("failed to persist car event, job abandoned")
		return
	}

	if job.event == garage.EventExit {
		s.metrics.ProvisionalOccupancy.Store(int64(s.counter.Release()))
	}
	s.metrics.JobsCommitted.Add(1)

	log.Info().
		Int64("event_id", event.ID).
		Str("plate", best.PlateNumber).
		Float64("confidence", confidence).
		Int("plates_found", len(results)).
		Msg("detection job committed")

	if s.hub != nil {
		s.hub.Broadcast("car_event", carEventInfo(event))
	}
}

func plateNumbers(results []anpr.PlateResult) []string {
	plates := make([]string, 0, len(results))
	for _, r := range results {
		plates = append(plates, r.PlateNumber)
	}
	return plates
}
