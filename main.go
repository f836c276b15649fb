package main

import (
	"context"
	"fmt"
	"os"

	"github.com/DavidGamba/go-getoptions"
	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/collection-notifier/db"
	"github.com/cyverse-de/collection-notifier/handlers"
	"github.com/cyverse-de/collection-notifier/handlerset"
	"github.com/cyverse-de/collection-notifier/notifications"
	"github.com/cyverse-de/configurate"
	"github.com/cyverse-de/go-mod/otelutils"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

var log = common.Log

// commandLineOptionValues represents the values of the command-line options that were passed on the command line when
// this service was invoked.
type commandLineOptionValues struct {
	Config   string
	LogLevel string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	// Default option values.
	defaultConfigPath := "/etc/iplant/de/collection-notifier.yml"

	// Define the command-line options.
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", defaultConfigPath,
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.StringVar(&optionValues.LogLevel, "log-level", "info",
		opt.Alias("l"),
		opt.Description("the minimum level of log messages to display"))

	// Parse the command line, handling requests for help and usage errors.
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

func main() {
	// Parse the command-line.
	optionValues := parseCommandLine()

	// Initialize logging.
	level, err := logrus.ParseLevel(optionValues.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Read in the configuration file.
	cfg, err := configurate.InitDefaults(optionValues.Config, defaultConfig)
	if err != nil {
		log.Fatal(err)
	}
	s := loadSettings(cfg)

	// Initialize tracing.
	tracerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := otelutils.TracerProviderFromEnv(tracerCtx, s.serviceName, func(e error) { log.Fatal(e) })
	defer shutdown()

	// Establish the database connection.
	database, err := db.InitDatabase(s.dbDriver, s.dbURI)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	// Build the notification pipeline.
	store := db.NewStore(database)
	dispatcher := notifications.NewDispatcher(store, notifications.NewRecordStore(store), notifications.NewNamer())
	handlerFor := make(map[string]handlers.MessageHandler)
	for _, routingKey := range s.amqp.RoutingKeys {
		for key, handler := range handlers.InitMessageHandlers(routingKey, store, dispatcher) {
			handlerFor[key] = handler
		}
	}

	// Start listening for change events.
	handlerSet, err := handlerset.New(s.amqp, handlerFor)
	if err != nil {
		log.Fatal(err)
	}
	defer handlerSet.Close()

	log.Infof("listening for messages with routing keys %v on queue %s", handlerSet.RoutingKeys(), s.amqp.QueueName)
	handlerSet.Listen()
}
