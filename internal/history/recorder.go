// Package history implements the window bookkeeping behind entity versioning.
// Every versioned entity and association is shadowed by append-only history
// records; closing the active window and opening the next one is the only
// mutation this package performs, always on the caller's transaction.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/OrgGraphLabs/orggraph/backend/internal/model"
	"gorm.io/gorm"
)

// Record is implemented by every history model. OpenWindow stamps the record
// with a fresh [start, null) window before insertion.
type Record interface {
	TableName() string
	OpenWindow(start time.Time)
}

// Key identifies the history rows belonging to one entity or association.
type Key struct {
	Query string
	Args  []any
}

// KeyFor builds the common single-column key.
func KeyFor(column string, id int64) Key {
	return Key{Query: column + " = ?", Args: []any{id}}
}

// Transition closes the active window for the key, if any, and inserts the
// supplied record as the new active window starting at effectiveAt. Finding
// more than one open window is a data-integrity violation and is reported,
// never repaired. Runs entirely on the provided transaction handle.
func Transition(tx *gorm.DB, key Key, record Record, effectiveAt time.Time) error {
	table := record.TableName()

	var activeCount int64
	if err := tx.Table(table).
		Where(key.Query, key.Args...).
		Where("end_date IS NULL").
		Count(&activeCount).Error; err != nil {
		return fmt.Errorf("history: count active windows in %s: %w", table, err)
	}
	if activeCount > 1 {
		return fmt.Errorf("%w: %d open history windows in %s for key %q",
			model.ErrIntegrityViolation, activeCount, table, key.Query)
	}

	if activeCount == 1 {
		if err := tx.Table(table).
			Where(key.Query, key.Args...).
			Where("end_date IS NULL").
			Update("end_date", effectiveAt).Error; err != nil {
			return fmt.Errorf("history: close active window in %s: %w", table, err)
		}
	}

	record.OpenWindow(effectiveAt)
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("history: open window in %s: %w", table, err)
	}
	return nil
}

// CloseActive ends the active window for the key without opening a successor.
// Used for soft-expiry, the only removal mechanism the ledger supports.
func CloseActive(tx *gorm.DB, table string, key Key, endDate time.Time) error {
	var activeCount int64
	if err := tx.Table(table).
		Where(key.Query, key.Args...).
		Where("end_date IS NULL").
		Count(&activeCount).Error; err != nil {
		return fmt.Errorf("history: count active windows in %s: %w", table, err)
	}
	if activeCount > 1 {
		return fmt.Errorf("%w: %d open history windows in %s for key %q",
			model.ErrIntegrityViolation, activeCount, table, key.Query)
	}
	if activeCount == 0 {
		return nil
	}
	if err := tx.Table(table).
		Where(key.Query, key.Args...).
		Where("end_date IS NULL").
		Update("end_date", endDate).Error; err != nil {
		return fmt.Errorf("history: close active window in %s: %w", table, err)
	}
	return nil
}

// FindAsOf loads the single history record whose window contains the given
// instant into out. Ordering by start_date descending and taking the first
// containing window yields the authoritative as-of state.
func FindAsOf(tx *gorm.DB, key Key, at time.Time, out any) error {
	err := tx.
		Where(key.Query, key.Args...).
		Where("start_date <= ? AND (end_date IS NULL OR end_date > ?)", at, at).
		Order("start_date DESC").
		First(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: no history window covers %s", model.ErrNotFound, at.UTC().Format(time.RFC3339))
	}
	return err
}

// Contains applies the window boundary rule: start-inclusive, end-exclusive.
func Contains(start time.Time, end *time.Time, at time.Time) bool {
	if start.After(at) {
		return false
	}
	return end == nil || end.After(at)
}
