package logrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chainlistener "github.com/unitpay/unitpay-gateway/internal/listener"
	"github.com/unitpay/unitpay-gateway/pkg/db/models"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

// UIChannel is the pub/sub channel UI events travel on between processes.
const UIChannel = "ui"

const (
	EventLog              = "log"
	EventSpinnerShow      = "spinner.show"
	EventSpinnerHide      = "spinner.hide"
	EventError            = "error"
	EventPaymentConfirmed = "payment.confirmed"
	EventTaskPoolRefresh  = "task_pool.refresh"
	EventTaskUpdated      = "task.updated"
)

// Event is one UI notification frame.
type Event struct {
	Type            string    `json:"type"`
	Message         string    `json:"message,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	TaskID          string    `json:"task_id,omitempty"`
	Status          string    `json:"status,omitempty"`
	Data            any       `json:"data,omitempty"`
	At              time.Time `json:"at"`
}

// Sink delivers encoded events. The redis client and HubSink satisfy it.
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// HubSink publishes straight into an in-process hub.
type HubSink struct {
	Hub *Hub
}

func (s HubSink) Publish(_ context.Context, _ string, payload []byte) error {
	if s.Hub == nil {
		return errHubNotStarted
	}
	s.Hub.Broadcast(payload)
	return nil
}

// UIEvents turns spinner, error, confirmation and task updates into Event
// frames on a Sink.
type UIEvents struct {
	sink Sink
	logg *logger.Logger
	now  func() time.Time
}

func NewUIEvents(sink Sink, logg *logger.Logger) (*UIEvents, error) {
	if sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &UIEvents{sink: sink, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (u *UIEvents) ShowSpinner(ctx context.Context) {
	u.publish(ctx, Event{Type: EventSpinnerShow})
}

func (u *UIEvents) HideSpinner(ctx context.Context) {
	u.publish(ctx, Event{Type: EventSpinnerHide})
}

func (u *UIEvents) ShowError(ctx context.Context, message string) {
	u.publish(ctx, Event{Type: EventError, Message: message})
}

func (u *UIEvents) PaymentConfirmed(ctx context.Context, intent *models.PaymentIntent, confirmation chainlistener.Confirmation) {
	ev := Event{Type: EventPaymentConfirmed, Message: "Payment confirmed", Data: confirmation}
	if intent != nil {
		ev.PaymentIntentID = intent.ID.String()
		ev.Status = string(intent.Status)
	}
	u.publish(ctx, ev)
}

func (u *UIEvents) RefreshTaskPool(ctx context.Context) {
	u.publish(ctx, Event{Type: EventTaskPoolRefresh})
}

func (u *UIEvents) TaskUpdated(ctx context.Context, task *models.Task) {
	if task == nil {
		return
	}
	u.publish(ctx, Event{Type: EventTaskUpdated, TaskID: task.ID.String(), Status: string(task.Status)})
	if task.Status.IsTerminal() {
		u.RefreshTaskPool(ctx)
	}
}

func (u *UIEvents) publish(ctx context.Context, ev Event) {
	ev.At = u.now()
	payload, err := json.Marshal(ev)
	if err != nil {
		u.logg.Error(ctx, "encode ui event", err)
		return
	}
	if err := u.sink.Publish(ctx, UIChannel, payload); err != nil {
		u.logg.Warn(u.logg.WithField(ctx, "ui_event", ev.Type), "publish ui event failed")
	}
}

// Forward copies payloads from source into hub until source closes or ctx ends.
func Forward(ctx context.Context, source <-chan []byte, hub *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-source:
			if !ok {
				return
			}
			hub.Broadcast(payload)
		}
	}
}
