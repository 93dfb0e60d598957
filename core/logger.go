package core

// Logger is implemented by services/logger.
// args may hold errors, extra maps and an Actor (reported as the person).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
