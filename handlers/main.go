package handlers

import (
	"context"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var log = common.Log.WithFields(logrus.Fields{"package": "handlers"})

// MessageHandler describes the interface used to handle AMQP messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, routingKey string, delivery amqp.Delivery) error
}

// InitMessageHandlers returns a map from routing key to message handler.
func InitMessageHandlers(routingKey string, parents ParentLocator, notifier Notifier) map[string]MessageHandler {
	return map[string]MessageHandler{
		routingKey: NewCollectionChange(parents, notifier),
	}
}
