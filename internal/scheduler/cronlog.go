package scheduler

import "github.com/rs/zerolog"

// cronLogger routes robfig/cron's logging onto zerolog. cron's info lines
// (wake, run, schedule) are chatty, so they go out at debug.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
