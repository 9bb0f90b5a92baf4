package reactionlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/attune/pkg/logger"
)

// badgerLogger routes badger's printf-style logging into the service logger.
// Badger's info output is chatty, so it is logged at debug.
type badgerLogger struct {
	log logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Error(context.Background(), trim(format, args))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warn(context.Background(), trim(format, args))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Debug(context.Background(), trim(format, args))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debug(context.Background(), trim(format, args))
}

func trim(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
