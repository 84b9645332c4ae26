package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"garage-monitor/internal/domain/garage"
	"garage-monitor/internal/metrics"
	"garage-monitor/internal/occupancy"
	"garage-monitor/internal/repository"
	"garage-monitor/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Broadcaster pushes live updates to connected dashboards.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

type GarageService struct {
	repo    repository.GarageRepository
	counter *occupancy.Counter
	metrics *metrics.Metrics
	hub     Broadcaster
	log     zerolog.Logger
}

func NewGarageService(repo repository.GarageRepository, counter *occupancy.Counter, m *metrics.Metrics, hub Broadcaster, log zerolog.Logger) *GarageService {
	return &GarageService{
		repo:    repo,
		counter: counter,
		metrics: m,
		hub:     hub,
		log:     log,
	}
}

// UpdateSlot applies a sensor occupancy report. Unchanged state writes
// nothing and emits no history row.
func (s *GarageService) UpdateSlot(ctx context.Context, payload garage.SlotUpdatePayload) error {
	if payload.SlotID == "" {
		return fmt.Errorf("%w: slot_id is required", ErrInvalidInput)
	}
	if payload.Occupied == nil {
		return fmt.Errorf("%w: occupied is required", ErrInvalidInput)
	}

	changed, err := s.repo.SetSlotOccupied(ctx, payload.SlotID, *payload.Occupied, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: slot %s", ErrNotFound, payload.SlotID)
		}
		s.log.Error().Err(err).Str("slot_id", payload.SlotID).Msg("failed to update slot")
		return fmt.Errorf("failed to update slot: %w", err)
	}

	if changed {
		s.log.Info().
			Str("slot_id", payload.SlotID).
			Bool("occupied", *payload.Occupied).
			Msg("slot occupancy changed")
		if s.hub != nil {
			s.hub.Broadcast("slot_update", map[string]interface{}{
				"slot_id":  payload.SlotID,
				"occupied": *payload.Occupied,
			})
		}
	}
	return nil
}

// ReportCarEvent persists a synchronous gate report and adjusts the
// provisional counter immediately: enters reserve, exits release.
func (s *GarageService) ReportCarEvent(ctx context.Context, payload garage.CarEventPayload) (*garage.CarEventInfo, error) {
	if payload.Plate == "" {
		return nil, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	if !garage.ValidEventType(payload.Event) {
		return nil, fmt.Errorf("%w: event must be %q or %q", ErrInvalidInput, garage.EventEnter, garage.EventExit)
	}

	normalized := utils.NormalizePlate(payload.Plate)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
	}

	event := &repository.CarEvent{
		Plate:     normalized,
		Event:     payload.Event,
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.CreateCarEvent(ctx, event); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", normalized).
			Str("event", payload.Event).
			Msg("failed to create car event")
		return nil, fmt.Errorf("failed to create car event: %w", err)
	}

	var provisional int
	if payload.Event == garage.EventEnter {
		provisional = s.counter.Reserve()
	} else {
		provisional = s.counter.Release()
	}
	s.metrics.ProvisionalOccupancy.Store(int64(provisional))

	s.log.Info().
		Int64("event_id", event.ID).
		Str("plate", normalized).
		Str("event", payload.Event).
		Int("provisional", provisional).
		Msg("saved car event")

	info := carEventInfo(event)
	if s.hub != nil {
		s.hub.Broadcast("car_event", info)
	}
	return &info, nil
}

func (s *GarageService) ListSlots(ctx context.Context) ([]garage.SlotInfo, error) {
	slots, err := s.repo.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	result := make([]garage.SlotInfo, 0, len(slots))
	for _, slot := range slots {
		updatedAt := slot.UpdatedAt
		result = append(result, garage.SlotInfo{
			ID:        slot.ID,
			SlotID:    slot.SlotID,
			Occupied:  slot.Occupied,
			X:         slot.X,
			Y:         slot.Y,
			UpdatedAt: &updatedAt,
		})
	}
	return result, nil
}

func (s *GarageService) Summary(ctx context.Context) (*garage.Summary, error) {
	total, occupied, err := s.repo.CountSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}

	summary := &garage.Summary{
		Total:       int(total),
		Occupied:    int(occupied),
		Available:   int(total - occupied),
		Provisional: s.counter.Value(),
	}
	if total > 0 {
		rate := float64(occupied) / float64(total) * 100
		summary.OccupancyRate = float64(int(rate*100+0.5)) / 100
	}
	return summary, nil
}

func (s *GarageService) History(ctx context.Context, slotID *string, limit int) ([]garage.HistoryEntry, error) {
	limit = clampLimit(limit, 50)
	history, err := s.repo.ListHistory(ctx, slotID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	result := make([]garage.HistoryEntry, 0, len(history))
	for _, h := range history {
		result = append(result, garage.HistoryEntry{
			ID:        h.ID,
			SlotID:    h.SlotID,
			Occupied:  h.Occupied,
			Timestamp: h.Timestamp,
		})
	}
	return result, nil
}

func (s *GarageService) CarLog(ctx context.Context, plate *string, limit int) ([]garage.CarEventInfo, error) {
	limit = clampLimit(limit, 20)

	var normalized *string
	if plate != nil {
		n := utils.NormalizePlate(*plate)
		if n != "" {
			normalized = &n
		}
	}

	events, err := s.repo.ListCarEvents(ctx, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list car events: %w", err)
	}
	result := make([]garage.CarEventInfo, 0, len(events))
	for i := range events {
		result = append(result, carEventInfo(&events[i]))
	}
	return result, nil
}

// CleanupOldEvents deletes car events older than the given number of days.
func (s *GarageService) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	deleted, err := s.repo.DeleteOldCarEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old car events")
	}
	return deleted, nil
}

func carEventInfo(event *repository.CarEvent) garage.CarEventInfo {
	return garage.CarEventInfo{
		ID:         event.ID,
		Plate:      event.Plate,
		Event:      event.Event,
		Confidence: event.Confidence,
		ImagePath:  event.ImagePath,
		Timestamp:  event.Timestamp,
	}
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}
