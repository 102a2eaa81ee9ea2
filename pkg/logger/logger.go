package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup configures the process-wide logrus logger for the given environment.
// Production emits JSON for log aggregation, everything else uses text output.
func Setup(env string) {
	log.SetOutput(os.Stdout)

	if env == "production" {
		log.SetFormatter(&log.JSONFormatter{
			FieldMap: log.FieldMap{log.FieldKeyMsg: "message"},
		})
		log.SetLevel(log.InfoLevel)
		return
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.DebugLevel)
}
