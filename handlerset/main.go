package handlerset

import (
	"context"
	"sort"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/collection-notifier/handlers"
	"github.com/cyverse-de/messaging/v9"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var log = common.Log.WithFields(logrus.Fields{"package": "handlerset"})

// HandlerSet represents a set of AMQP message handlers.
type HandlerSet struct {
	amqpClient   *messaging.Client
	amqpSettings *common.AMQPSettings
	handlerFor   map[string]handlers.MessageHandler
}

// New creates a new handler set.
func New(amqpSettings *common.AMQPSettings, handlerFor map[string]handlers.MessageHandler) (*HandlerSet, error) {
	wrapMsg := "unable to create the message handler set"

	// Create the AMQP client.
	amqpClient, err := messaging.NewClient(amqpSettings.URI, true)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Build and return the handler set.
	handlerSet := HandlerSet{
		amqpClient:   amqpClient,
		amqpSettings: amqpSettings,
		handlerFor:   handlerFor,
	}
	return &handlerSet, nil
}

// RoutingKeys returns the routing keys that the handler set listens for, in sorted order.
func (hs *HandlerSet) RoutingKeys() []string {
	keys := make([]string, 0, len(hs.handlerFor))
	for key := range hs.handlerFor {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Listen binds the queue to each of the routing keys in the handler set and begins processing
// messages. This function doesn't return until the AMQP client is closed.
func (hs *HandlerSet) Listen() {
	hs.amqpClient.AddConsumerMulti(
		hs.amqpSettings.ExchangeName,
		hs.amqpSettings.ExchangeType,
		hs.amqpSettings.QueueName,
		hs.RoutingKeys(),
		hs.handleDelivery,
		hs.amqpSettings.PrefetchCount,
	)
	hs.amqpClient.Listen()
}

// handleDelivery passes a delivery to the handler for its routing key. Messages are acknowledged if
// they're handled successfully and requeued only if the failure is recoverable.
func (hs *HandlerSet) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	deliveryLog := log.WithFields(logrus.Fields{"routing_key": delivery.RoutingKey})

	handler, ok := hs.handlerFor[delivery.RoutingKey]
	if !ok {
		deliveryLog.Error("no handler found for routing key")
		if err := delivery.Reject(false); err != nil {
			deliveryLog.Errorf("unable to reject message: %s", err)
		}
		return
	}

	err := handler.HandleMessage(ctx, delivery.RoutingKey, delivery)
	switch {
	case err == nil:
		if err := delivery.Ack(false); err != nil {
			deliveryLog.Errorf("unable to acknowledge message: %s", err)
		}
	case handlers.IsRecoverable(err):
		deliveryLog.Warnf("requeueing message: %s", err)
		if err := delivery.Reject(true); err != nil {
			deliveryLog.Errorf("unable to requeue message: %s", err)
		}
	default:
		deliveryLog.Errorf("discarding message: %s", err)
		if err := delivery.Reject(false); err != nil {
			deliveryLog.Errorf("unable to reject message: %s", err)
		}
	}
}

// Close closes a message handler set.
func (hs *HandlerSet) Close() {
	hs.amqpClient.Close()
}
