package pipeline

import "runtime"

// Mode selects where a job's phase driver runs.
type Mode int

const (
	// ExecBackground runs the driver on its own goroutine and delivers
	// events asynchronously. This is the default.
	ExecBackground Mode = iota

	// ExecInline runs the driver on the caller's goroutine; Start returns
	// only once the job reached a terminal state and the event stream can
	// be drained afterwards.
	ExecInline
)

// ExecutionContext abstracts the host the phase driver runs on. Both
// implementations drive phases through the same code path so ordering and
// partial-result semantics are identical.
type ExecutionContext interface {
	// Launch starts the driver.
	Launch(run func())

	// Yield is called between processing chunks so the host stays
	// responsive.
	Yield()
}

type backgroundContext struct{}

func (backgroundContext) Launch(run func()) { go run() }
func (backgroundContext) Yield()            { runtime.Gosched() }

type inlineContext struct{}

func (inlineContext) Launch(run func()) { run() }
func (inlineContext) Yield()            { runtime.Gosched() }

func execFor(mode Mode) ExecutionContext {
	if mode == ExecInline {
		return inlineContext{}
	}
	return backgroundContext{}
}
