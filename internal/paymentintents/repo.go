package paymentintents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	"gorm.io/gorm"
)

// ListFilter narrows List results.
type ListFilter struct {
	Status *enums.PaymentIntentStatus
	Limit  int
}

// Repository manages persistence for payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByBlockchainPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error)
	List(ctx context.Context, filter ListFilter) ([]models.PaymentIntent, error)
	ListStale(ctx context.Context, status enums.PaymentIntentStatus, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error)
	// UpdateStatus applies from -> to only if the row still holds from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, failureReason *string) (bool, error)
	// SetBlockchainPaymentID writes the id only while the column is NULL.
	SetBlockchainPaymentID(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment intent repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByBlockchainPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("blockchain_payment_id = ?", paymentID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentIntent{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var intents []models.PaymentIntent
	if err := query.Order("created_at DESC").Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) ListStale(ctx context.Context, status enums.PaymentIntentStatus, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, failureReason *string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetBlockchainPaymentID(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND blockchain_payment_id IS NULL", id).
		Updates(map[string]any{
			"blockchain_payment_id": paymentID,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
