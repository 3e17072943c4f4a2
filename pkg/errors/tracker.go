package errors

import (
	"context"
)

// Tracker is the reporting backend behind the logger's Error mirror. The
// Sentry adapter is the production implementation, the noop adapter covers
// local runs and tests.
type Tracker interface {
	// CaptureError reports an error with contextual tags.
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// CaptureMessage reports a plain message at the given level.
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error

	// AddBreadcrumb records a step leading up to a potential error, such as
	// an operator approving an action.
	AddBreadcrumb(ctx context.Context, message string, category string, level Level, data map[string]interface{})

	// Flush drains pending events before shutdown.
	Flush(ctx context.Context) error
}

// Level is the severity attached to tracked messages and breadcrumbs.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

func (l Level) String() string {
	return string(l)
}
