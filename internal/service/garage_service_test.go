package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"garage-monitor/internal/domain/garage"
	"garage-monitor/internal/metrics"
	"garage-monitor/internal/occupancy"
	"garage-monitor/internal/repository"
)

func newGarageFixture() (*GarageService, *fakeRepo, *fakeHub, *occupancy.Counter) {
	repo := &fakeRepo{}
	hub := &fakeHub{}
	counter := occupancy.NewCounter(4)
	svc := NewGarageService(repo, counter, metrics.New(), hub, zerolog.Nop())
	return svc, repo, hub, counter
}

func boolPtr(b bool) *bool { return &b }

func TestUpdateSlotValidation(t *testing.T) {
	svc, repo, _, _ := newGarageFixture()

	cases := []struct {
		name    string
		payload garage.SlotUpdatePayload
	}{
		{"missing slot_id", garage.SlotUpdatePayload{Occupied: boolPtr(true)}},
		{"missing occupied", garage.SlotUpdatePayload{SlotID: "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.UpdateSlot(context.Background(), tc.payload)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("UpdateSlot error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if repo.setCalls != 0 {
		t.Fatalf("repository reached %d times on invalid input, want 0", repo.setCalls)
	}
}

func TestUpdateSlotUnknownSlot(t *testing.T) {
	svc, repo, _, _ := newGarageFixture()
	repo.setErr = repository.ErrNotFound

	err := svc.UpdateSlot(context.Background(), garage.SlotUpdatePayload{SlotID: "99", Occupied: boolPtr(true)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateSlot error = %v, want ErrNotFound", err)
	}
}

func TestUpdateSlotBroadcastsOnlyOnChange(t *testing.T) {
	svc, repo, hub, _ := newGarageFixture()

	repo.setChanged = false
	if err := svc.UpdateSlot(context.Background(), garage.SlotUpdatePayload{SlotID: "1", Occupied: boolPtr(true)}); err != nil {
		t.Fatalf("UpdateSlot error = %v", err)
	}
	if len(hub.messages) != 0 {
		t.Fatalf("broadcasts after no-op update = %v, want none", hub.messages)
	}

	repo.setChanged = true
	if err := svc.UpdateSlot(context.Background(), garage.SlotUpdatePayload{SlotID: "1", Occupied: boolPtr(true)}); err != nil {
		t.Fatalf("UpdateSlot error = %v", err)
	}
	if len(hub.messages) != 1 || hub.messages[0] != "slot_update" {
		t.Fatalf("broadcasts after change = %v, want one slot_update", hub.messages)
	}
}

func TestReportCarEventValidation(t *testing.T) {
	svc, repo, _, counter := newGarageFixture()

	cases := []struct {
		name    string
		payload garage.CarEventPayload
	}{
		{"missing plate", garage.CarEventPayload{Event: garage.EventEnter}},
		{"bad event", garage.CarEventPayload{Plate: "AB 1234", Event: "parked"}},
		{"plate normalizes to empty", garage.CarEventPayload{Plate: "---", Event: garage.EventEnter}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ReportCarEvent(context.Background(), tc.payload)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("ReportCarEvent error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if len(repo.events) != 0 {
		t.Fatalf("persisted %d events on invalid input, want 0", len(repo.events))
	}
	if counter.Value() != 0 {
		t.Fatalf("counter = %d after invalid reports, want 0", counter.Value())
	}
}

func TestReportCarEventAdjustsCounter(t *testing.T) {
	svc, repo, hub, counter := newGarageFixture()

	info, err := svc.ReportCarEvent(context.Background(), garage.CarEventPayload{Plate: "  ab 1234 cd ", Event: garage.EventEnter})
	if err != nil {
		t.Fatalf("ReportCarEvent(enter) error = %v", err)
	}
	if info.Plate != "AB 1234 CD" {
		t.Fatalf("stored plate = %q, want normalized form", info.Plate)
	}
	if counter.Value() != 1 {
		t.Fatalf("counter after enter = %d, want 1", counter.Value())
	}

	if _, err := svc.ReportCarEvent(context.Background(), garage.CarEventPayload{Plate: "AB 1234 CD", Event: garage.EventExit}); err != nil {
		t.Fatalf("ReportCarEvent(exit) error = %v", err)
	}
	if counter.Value() != 0 {
		t.Fatalf("counter after exit = %d, want 0", counter.Value())
	}

	if len(repo.events) != 2 {
		t.Fatalf("persisted %d events, want 2", len(repo.events))
	}
	if len(hub.messages) != 2 {
		t.Fatalf("broadcasts = %v, want two car_event messages", hub.messages)
	}
}

func TestSummaryIncludesProvisional(t *testing.T) {
	svc, repo, _, counter := newGarageFixture()
	repo.total = 4
	repo.occupied = 3
	counter.Reserve()

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary error = %v", err)
	}
	if summary.Total != 4 || summary.Occupied != 3 || summary.Available != 1 {
		t.Fatalf("summary = %+v, want total 4 occupied 3 available 1", summary)
	}
	if summary.OccupancyRate != 75 {
		t.Fatalf("occupancy rate = %v, want 75", summary.OccupancyRate)
	}
	if summary.Provisional != 1 {
		t.Fatalf("provisional = %d, want 1", summary.Provisional)
	}
}

func TestCleanupOldEventsRejectsNonPositiveDays(t *testing.T) {
	svc, _, _, _ := newGarageFixture()

	if _, err := svc.CleanupOldEvents(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("CleanupOldEvents(0) error = %v, want ErrInvalidInput", err)
	}
}
