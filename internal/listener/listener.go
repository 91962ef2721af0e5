package listener

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// PaymentConfirmedEvent is the contract event emitted once a payment settles on-chain.
const PaymentConfirmedEvent = "PaymentConfirmed"

const paymentConfirmedABI = `[{"anonymous":false,"inputs":[` +
	`{"indexed":true,"internalType":"bytes32","name":"paymentId","type":"bytes32"},` +
	`{"indexed":false,"internalType":"bool","name":"isAuto","type":"bool"}` +
	`],"name":"PaymentConfirmed","type":"event"}]`

// LogSubscriber is the slice of ethclient.Client the listener needs.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
}

// Confirmation is a decoded PaymentConfirmed log.
type Confirmation struct {
	PaymentID   types.Bytes32 `json:"payment_id"`
	IsAuto      bool          `json:"is_auto"`
	TxHash      string        `json:"tx_hash"`
	BlockNumber uint64        `json:"block_number"`
}

// Listener waits for PaymentConfirmed events on the settlement contract.
type Listener struct {
	client   LogSubscriber
	contract common.Address
	event    abi.Event
	logg     *logger.Logger
}

func NewListener(client LogSubscriber, contractAddress string, logg *logger.Logger) (*Listener, error) {
	if client == nil {
		return nil, fmt.Errorf("log subscriber required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	contractAddress = strings.TrimSpace(contractAddress)
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(paymentConfirmedABI))
	if err != nil {
		return nil, fmt.Errorf("parse event abi: %w", err)
	}
	return &Listener{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		event:    parsed.Events[PaymentConfirmedEvent],
		logg:     logg,
	}, nil
}

// EventID returns the topic hash of PaymentConfirmed.
func (l *Listener) EventID() common.Hash {
	return l.event.ID
}

// AwaitConfirmation returns the first PaymentConfirmed log for paymentID.
// It subscribes first and then backfills from fromBlock, so an event mined
// before the subscription opened is still found. A zero fromBlock backfills
// only the latest block. The subscription is released before returning.
func (l *Listener) AwaitConfirmation(ctx context.Context, paymentID types.Bytes32, fromBlock uint64) (*Confirmation, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{l.event.ID}, {common.Hash(paymentID)}},
	}
	logs := make(chan gethtypes.Log, 1)
	sub, err := l.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to payment confirmations")
	}
	defer sub.Unsubscribe()

	ctx = l.logg.WithFields(ctx, map[string]any{
		"blockchain_payment_id": paymentID.Hex(),
		"from_block":            fromBlock,
	})
	l.logg.Debug(ctx, "awaiting payment confirmation")

	backfill := query
	if fromBlock > 0 {
		backfill.FromBlock = new(big.Int).SetUint64(fromBlock)
	}
	past, err := l.client.FilterLogs(ctx, backfill)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backfill payment confirmations")
	}
	for _, entry := range past {
		if confirmation, ok := l.decode(ctx, entry, paymentID); ok {
			l.logg.Info(l.logg.WithField(ctx, "backfilled", true), "payment confirmation observed")
			return confirmation, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, ctx.Err(), "payment confirmation not observed")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "payment confirmation wait canceled")
		case err := <-sub.Err():
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment confirmation subscription dropped")
		case entry := <-logs:
			confirmation, ok := l.decode(ctx, entry, paymentID)
			if !ok {
				continue
			}
			l.logg.Info(ctx, "payment confirmation observed")
			return confirmation, nil
		}
	}
}

func (l *Listener) decode(ctx context.Context, entry gethtypes.Log, paymentID types.Bytes32) (*Confirmation, bool) {
	if entry.Removed || len(entry.Topics) < 2 {
		return nil, false
	}
	if entry.Topics[0] != l.event.ID || entry.Topics[1] != common.Hash(paymentID) {
		return nil, false
	}
	values, err := l.event.Inputs.NonIndexed().Unpack(entry.Data)
	if err != nil || len(values) != 1 {
		l.logg.Warn(ctx, "skipping undecodable payment confirmation log")
		return nil, false
	}
	isAuto, ok := values[0].(bool)
	if !ok {
		return nil, false
	}
	return &Confirmation{
		PaymentID:   paymentID,
		IsAuto:      isAuto,
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
	}, true
}
