package batch

import (
	"context"
)

// Observer is notified as tasks move through the scheduler.
// Implementations must be safe for concurrent use.
type Observer interface {
	TaskStarted(Task)
	TaskRetried(task Task, err error)
	TaskFinished(Result)
}

// Observers fans every notification out to obs in order.
func Observers(obs ...Observer) Observer {
	return observers(obs)
}

type observers []Observer

func (o observers) TaskStarted(t Task) {
	for _, ob := range o {
		ob.TaskStarted(t)
	}
}

func (o observers) TaskRetried(t Task, err error) {
	for _, ob := range o {
		ob.TaskRetried(t, err)
	}
}

func (o observers) TaskFinished(r Result) {
	for _, ob := range o {
		ob.TaskFinished(r)
	}
}

// Publisher copies a completed file somewhere else and returns
// where it ended up.
type Publisher interface {
	Publish(ctx context.Context, key, path string) (string, error)
}
