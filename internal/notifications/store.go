package notifications

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
)

// Store persists notifications and is the synchronous Sink.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Notify inserts n. Re-delivery of the same ID is a no-op.
func (s *Store) Notify(ctx context.Context, n Notification) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&n).Error
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForCustomer returns the customer's own notifications, newest first.
func (s *Store) ListForCustomer(ctx context.Context, customerID string) ([]Notification, error) {
	var out []Notification
	err := s.db.WithContext(ctx).
		Where("audience = ? AND customer_id = ?", AudienceCustomer, customerID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list customer notifications: %w", err)
	}
	return out, nil
}

// ListStaff returns staff notifications, optionally restricted to types.
func (s *Store) ListStaff(ctx context.Context, types ...Type) ([]Notification, error) {
	q := s.db.WithContext(ctx).Where("audience = ?", AudienceStaff)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var out []Notification
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list staff notifications: %w", err)
	}
	return out, nil
}

// MarkRead flags a notification the caller can see as read.
func (s *Store) MarkRead(ctx context.Context, who accounts.Identity, id string) (*Notification, error) {
	n, err := s.visible(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(n).Update("is_read", true).Error; err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.IsRead = true
	return n, nil
}

// Delete removes a notification the caller can see.
func (s *Store) Delete(ctx context.Context, who accounts.Identity, id string) error {
	n, err := s.visible(ctx, who, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(n).Error; err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *Store) visible(ctx context.Context, who accounts.Identity, id string) (*Notification, error) {
	var n Notification
	err := s.db.WithContext(ctx).Scopes(visibleTo(who)).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Notification not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func visibleTo(who accounts.Identity) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if who.IsStaff() {
			return db.Where("(audience = ? OR (audience = ? AND customer_id = ?))",
				AudienceStaff, AudienceCustomer, who.AccountID)
		}
		return db.Where("audience = ? AND customer_id = ?", AudienceCustomer, who.AccountID)
	}
}
