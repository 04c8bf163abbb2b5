package registry

import "log/slog"

// Notifier is the channel registries use to report operation outcomes toward
// the UI layer. Presentation is the consumer's concern; registries only emit
// a level, a message and structured parameters.
type Notifier interface {
	Success(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogNotifier struct{}

// NewSlogNotifier returns a Notifier that writes notifications to the
// process log.
func NewSlogNotifier() Notifier {
	return slogNotifier{}
}

func (slogNotifier) Success(msg string, args ...any) { slog.Info(msg, args...) }
func (slogNotifier) Warning(msg string, args ...any) { slog.Warn(msg, args...) }
func (slogNotifier) Error(msg string, args ...any)   { slog.Error(msg, args...) }
