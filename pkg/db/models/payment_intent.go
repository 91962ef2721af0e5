package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/unitpay/unitpay-gateway/pkg/enums"
)

// PaymentIntent tracks a payment from creation through on-chain settlement.
type PaymentIntent struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Status              enums.PaymentIntentStatus `gorm:"column:status;type:varchar(20);not null;default:'created'"`
	Amount              decimal.Decimal           `gorm:"column:amount;type:numeric(20,8);not null"`
	Currency            string                    `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	OrderID             string                    `gorm:"column:order_id;type:varchar(64);not null"`
	MerchantEmail       string                    `gorm:"column:merchant_email;type:varchar(255);not null"`
	CounterpartyEmail   string                    `gorm:"column:counterparty_email;type:varchar(255);not null"`
	BlockchainPaymentID *string                   `gorm:"column:blockchain_payment_id;type:varchar(66);uniqueIndex:idx_payment_intents_blockchain_payment_id"`
	FailureReason       *string                   `gorm:"column:failure_reason;type:text"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = enums.PaymentIntentStatusCreated
	}
	return nil
}
