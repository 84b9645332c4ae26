package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

type Slot struct {
	ID        int64  `gorm:"primaryKey"`
	SlotID    string `gorm:"not null;uniqueIndex"`
	Occupied  bool   `gorm:"not null"`
	X         int
	Y         int
	UpdatedAt time.Time
}

type OccupancyHistory struct {
	ID        int64     `gorm:"primaryKey"`
	SlotID    string    `gorm:"not null"`
	Occupied  bool      `gorm:"not null"`
	Timestamp time.Time `gorm:"not null"`
}

func (OccupancyHistory) TableName() string { return "occupancy_history" }

type CarEvent struct {
	ID         int64  `gorm:"primaryKey"`
	Plate      string `gorm:"not null"`
	Event      string `gorm:"not null"`
	Confidence *float64
	ImagePath  *string
	// Detection carries pipeline metadata (all recognized plates,
	// candidate count) for committed detect jobs.
	Detection datatypes.JSON `gorm:"type:jsonb"`
	Timestamp time.Time      `gorm:"not null"`
	CreatedAt time.Time
}

// GarageRepository is the persistence surface the services depend on.
type GarageRepository interface {
	ListSlots(ctx context.Context) ([]Slot, error)
	// SetSlotOccupied updates a slot and appends a history row in one
	// transaction. It reports whether the stored state actually changed;
	// a no-op update writes nothing.
	SetSlotOccupied(ctx context.Context, slotID string, occupied bool, at time.Time) (bool, error)
	ListHistory(ctx context.Context, slotID *string, limit int) ([]OccupancyHistory, error)

	CountSlots(ctx context.Context) (total, occupied int64, err error)

	CreateCarEvent(ctx context.Context, event *CarEvent) error
	ListCarEvents(ctx context.Context, plate *string, limit int) ([]CarEvent, error)
	DeleteOldCarEvents(ctx context.Context, days int) (int64, error)
}

type gormGarageRepository struct {
	db *gorm.DB
}

func NewGarageRepository(db *gorm.DB) GarageRepository {
	return &gormGarageRepository{db: db}
}

func (r *gormGarageRepository) ListSlots(ctx context.Context) ([]Slot, error) {
	var slots []Slot
	err := r.db.WithContext(ctx).Order("slot_id").Find(&slots).Error
	return slots, err
}

func (r *gormGarageRepository) SetSlotOccupied(ctx context.Context, slotID string, occupied bool, at time.Time) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot Slot
		if err := tx.Where("slot_id = ?", slotID).First(&slot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if slot.Occupied == occupied {
			return nil
		}

		slot.Occupied = occupied
		slot.UpdatedAt = at
		if err := tx.Save(&slot).Error; err != nil {
			return err
		}

		history := OccupancyHistory{
			SlotID:    slotID,
			Occupied:  occupied,
			Timestamp: at,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (r *gormGarageRepository) ListHistory(ctx context.Context, slotID *string, limit int) ([]OccupancyHistory, error) {
	query := r.db.WithContext(ctx).Model(&OccupancyHistory{})
	if slotID != nil {
		query = query.Where("slot_id = ?", *slotID)
	}
	var history []OccupancyHistory
	err := query.Order("timestamp DESC").Limit(limit).Find(&history).Error
	return history, err
}

func (r *gormGarageRepository) CountSlots(ctx context.Context) (int64, int64, error) {
	var total, occupied int64
	if err := r.db.WithContext(ctx).Model(&Slot{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&Slot{}).Where("occupied = ?", true).Count(&occupied).Error; err != nil {
		return 0, 0, err
	}
	return total, occupied, nil
}

func (r *gormGarageRepository) CreateCarEvent(ctx context.Context, event *CarEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormGarageRepository) ListCarEvents(ctx context.Context, plate *string, limit int) ([]CarEvent, error) {
	query := r.db.WithContext(ctx).Model(&CarEvent{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	var events []CarEvent
	err := query.Order("timestamp DESC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *gormGarageRepository) DeleteOldCarEvents(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&CarEvent{})
	return result.RowsAffected, result.Error
}
