package common

import (
	"github.com/mcnijman/go-emailaddress"
	"github.com/sirupsen/logrus"
)

// ServiceName is the name that the service uses to identify itself in logs and traces.
const ServiceName = "collection-notifier"

// Log is the base log entry used throughout the service.
var Log = logrus.WithFields(logrus.Fields{"service": ServiceName})

// AMQPSettings represents the settings that we require in order to connect to the AMQP exchange.
type AMQPSettings struct {
	URI           string
	ExchangeName  string
	ExchangeType  string
	QueueName     string
	RoutingKeys   []string
	PrefetchCount int
}

// ValidateEmailAddress returns an error if the format of an email address is invalid.
func ValidateEmailAddress(emailAddress string) error {
	_, err := emailaddress.Parse(emailAddress)
	return err
}
