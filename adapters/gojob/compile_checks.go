package gojob

import (
	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-job/queue/worker"
)

var (
	_ core.TransactionObserver = (*EventPublisher)(nil)
	_ EventSink                = (*core.Bridge)(nil)
	_ worker.Hook              = (*WorkerHook)(nil)
)
