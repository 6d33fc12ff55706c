package gologger

import (
	"github.com/goliatone/go-iap/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Loggers is one resolved logger in both the glog shape used by the bridge
// and the go-job shape used by queue workers carrying its events.
type Loggers struct {
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// Resolve picks provider over logger over nop, then adapts the winner for
// go-job.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	out := Loggers{Provider: resolvedProvider, Logger: resolvedLogger}
	if resolvedProvider != nil {
		out.JobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	if resolvedLogger != nil {
		out.JobLogger = job.GoLogger(resolvedLogger)
	}
	return out
}

// BridgeOptions installs the resolved glog pair on a bridge.
func (l Loggers) BridgeOptions() []core.Option {
	return []core.Option{
		core.WithLoggerProvider(l.Provider),
		core.WithLogger(l.Logger),
	}
}
