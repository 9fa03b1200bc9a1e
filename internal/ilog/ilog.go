// Package ilog is the logging interface shared by the core collections.
// It is a subset of logrus.FieldLogger, kept small so a caller can adapt
// any structured logger to it. The package also ships the logrus
// adapter, so importing it brings logrus into the dependency graph.
package ilog

import "github.com/sirupsen/logrus"

type (
	// Logger is the logging interface used by this module.
	Logger interface {
		WithField(key string, value any) Logger
		WithFields(fields map[string]any) Logger
		WithError(err error) Logger
		Debug(args ...any)
		Info(args ...any)
		Warn(args ...any)
		Error(args ...any)
	}

	// Discard implements a Logger that does nothing. It is the default
	// for every constructor in this module so the hot path never pays
	// for logging unless a caller opts in.
	Discard struct{}

	// Logrus adapts a *logrus.Logger to Logger, holding it as a
	// *logrus.Entry. Build one with NewLogrus.
	Logrus struct{ entry *logrus.Entry }
)

var (
	_ Logger = Discard{}
	_ Logger = Logrus{}
)

func (Discard) WithField(string, any) Logger     { return Discard{} }
func (Discard) WithFields(map[string]any) Logger { return Discard{} }
func (Discard) WithError(error) Logger           { return Discard{} }
func (Discard) Debug(...any)                     {}
func (Discard) Info(...any)                      {}
func (Discard) Warn(...any)                      {}
func (Discard) Error(...any)                     {}

// NewLogrus wraps a *logrus.Logger as a Logger.
func NewLogrus(l *logrus.Logger) Logrus {
	return Logrus{entry: logrus.NewEntry(l)}
}

func (x Logrus) WithField(key string, value any) Logger {
	return Logrus{entry: x.entry.WithField(key, value)}
}

func (x Logrus) WithFields(fields map[string]any) Logger {
	return Logrus{entry: x.entry.WithFields(fields)}
}

func (x Logrus) WithError(err error) Logger {
	return Logrus{entry: x.entry.WithError(err)}
}

func (x Logrus) Debug(args ...any) { x.entry.Debug(args...) }
func (x Logrus) Info(args ...any)  { x.entry.Info(args...) }
func (x Logrus) Warn(args ...any)  { x.entry.Warn(args...) }
func (x Logrus) Error(args ...any) { x.entry.Error(args...) }
