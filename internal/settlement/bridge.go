package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/unitpay/unitpay-gateway/internal/merchant"
	"github.com/unitpay/unitpay-gateway/internal/paymentintents"
	"github.com/unitpay/unitpay-gateway/internal/verification"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/enums"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/oracle"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// RejectedReason is recorded on intents whose payment could not be verified.
const RejectedReason = "verification rejected"

// HeadReader reports the latest block number. ethclient.Client satisfies it.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Verifier produces the oracle word for a verification request.
type Verifier interface {
	Handle(ctx context.Context, req verification.Request) (types.Bytes32, error)
}

// Outcome describes a settlement attempt.
type Outcome struct {
	PaymentIntentID     uuid.UUID                 `json:"payment_intent_id"`
	Status              enums.PaymentIntentStatus `json:"status"`
	BlockchainPaymentID types.Bytes32             `json:"blockchain_payment_id"`
	Response            types.Bytes32             `json:"response"`
	Verified            bool                      `json:"verified"`
	// FromBlock is the chain head read just before the oracle callback. The
	// confirmation listener backfills from it.
	FromBlock           uint64                    `json:"from_block,omitempty"`
}

type BridgeParams struct {
	Intents   paymentintents.Service
	Merchant  merchant.Lookuper
	Verifier  Verifier
	Fulfiller Fulfiller
	Logger    *logger.Logger
	// Head is optional. Without it confirmations are only observed live.
	Head      HeadReader
}

// Bridge runs verification for a payment intent and hands the encoded
// verdict to the oracle fulfiller.
type Bridge struct {
	intents   paymentintents.Service
	merchant  merchant.Lookuper
	verifier  Verifier
	fulfiller Fulfiller
	logg      *logger.Logger
	head      HeadReader
}

func NewBridge(params BridgeParams) (*Bridge, error) {
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent service required")
	}
	if params.Merchant == nil {
		return nil, fmt.Errorf("merchant lookup required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("verifier required")
	}
	if params.Fulfiller == nil {
		return nil, fmt.Errorf("fulfiller required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Bridge{
		intents:   params.Intents,
		merchant:  params.Merchant,
		verifier:  params.Verifier,
		fulfiller: params.Fulfiller,
		logg:      params.Logger,
		head:      params.Head,
	}, nil
}

// Settle verifies the intent's payment and submits the result on-chain.
// Settling a completed intent is a no-op; failed and refunded intents are
// state conflicts.
func (b *Bridge) Settle(ctx context.Context, paymentIntentID uuid.UUID) (*Outcome, error) {
	intent, err := b.intents.Get(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	ctx = b.logg.WithPaymentIntentID(ctx, intent.ID.String())

	switch intent.Status {
	case enums.PaymentIntentStatusCompleted:
		b.logg.Info(ctx, "payment intent already settled")
		return alreadySettled(intent)
	case enums.PaymentIntentStatusFailed, enums.PaymentIntentStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent cannot be settled").
			WithDetails(map[string]any{"status": intent.Status})
	}

	email, err := b.merchant.Lookup(ctx, intent.ID.String())
	if err != nil {
		return nil, err
	}

	word, err := b.verifier.Handle(ctx, verification.Request{
		OrderID:           intent.OrderID,
		MerchantEmail:     email,
		Amount:            intent.Amount.String(),
		CounterpartyEmail: intent.CounterpartyEmail,
	})
	if err != nil {
		return nil, err
	}
	verified, err := oracle.DecodeResult(word[:])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode verification result")
	}

	outcome := &Outcome{PaymentIntentID: intent.ID, Response: word, Verified: verified}
	if !verified {
		if _, err := b.intents.Transition(ctx, intent.ID, enums.PaymentIntentStatusFailed, RejectedReason); err != nil {
			return nil, err
		}
		b.logg.Warn(ctx, "payment verification rejected")
		outcome.Status = enums.PaymentIntentStatusFailed
		return outcome, nil
	}

	intent, err = b.ensurePaymentID(ctx, intent)
	if err != nil {
		return nil, err
	}
	paymentID, err := types.ParseBytes32(*intent.BlockchainPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored blockchain payment id is malformed")
	}
	outcome.BlockchainPaymentID = paymentID

	if b.head != nil {
		head, err := b.head.BlockNumber(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read chain head")
		}
		outcome.FromBlock = head
	}

	if _, err := b.intents.Transition(ctx, intent.ID, enums.PaymentIntentStatusProcessing, ""); err != nil {
		return nil, err
	}
	outcome.Status = enums.PaymentIntentStatusProcessing
	if err := b.fulfiller.Fulfill(ctx, paymentID, word); err != nil {
		return nil, err
	}

	ctx = b.logg.WithField(ctx, "blockchain_payment_id", paymentID.Hex())
	b.logg.Info(ctx, "oracle callback fulfilled")
	return outcome, nil
}

// Abandon fails an intent whose settlement will not be attempted again.
// Completed and terminal intents are left untouched.
func (b *Bridge) Abandon(ctx context.Context, paymentIntentID uuid.UUID, reason string) error {
	intent, err := b.intents.Get(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if intent.Status == enums.PaymentIntentStatusCompleted || intent.Status.IsTerminal() {
		return nil
	}
	if _, err := b.intents.Transition(ctx, intent.ID, enums.PaymentIntentStatusFailed, reason); err != nil {
		return err
	}
	ctx = b.logg.WithPaymentIntentID(ctx, intent.ID.String())
	b.logg.Warn(b.logg.WithField(ctx, "reason", reason), "payment intent abandoned")
	return nil
}

// ensurePaymentID attaches a keccak256-derived id when the intent has none yet.
func (b *Bridge) ensurePaymentID(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	if intent.BlockchainPaymentID != nil {
		return intent, nil
	}
	return b.intents.AttachBlockchainPaymentID(ctx, intent.ID, DerivePaymentID(intent.ID).Hex())
}

// DerivePaymentID maps an intent id to the bytes32 id used on-chain.
func DerivePaymentID(id uuid.UUID) types.Bytes32 {
	return types.Bytes32(crypto.Keccak256Hash(id[:]))
}

func alreadySettled(intent *models.PaymentIntent) (*Outcome, error) {
	outcome := &Outcome{
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		Response:        oracle.EncodeResult(true),
		Verified:        true,
	}
	if intent.BlockchainPaymentID != nil {
		if paymentID, err := types.ParseBytes32(*intent.BlockchainPaymentID); err == nil {
			outcome.BlockchainPaymentID = paymentID
		}
	}
	return outcome, nil
}
