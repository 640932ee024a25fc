// Package log wraps logrus with one *logrus.Entry per component, so call
// sites attach structured fields (height, peer, tx id) instead of
// interpolating them into a message string.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base = newBase()

	mu      sync.Mutex
	entries = map[string]*logrus.Entry{}
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the base logger's verbosity; intended for cmd/node's
// config-driven startup.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Component returns the shared *logrus.Entry for name, creating it on first
// use ("processor", "sync", "forger", "pool", "bft", "network", "rpc", ...).
func Component(name string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if e, ok := entries[name]; ok {
		return e
	}
	e := base.WithField("component", name)
	entries[name] = e
	return e
}
