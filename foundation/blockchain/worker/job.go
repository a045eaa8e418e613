package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
)

// ErrJobStarted is returned when a job is started more than once.
var ErrJobStarted = errors.New("job already started")

// Status represents where a mining job is in its life.
type Status int32

// Set of job states. A job moves from idle to mining and finishes as either
// completed or cancelled.
const (
	StatusIdle Status = iota
	StatusMining
	StatusCompleted
	StatusCancelled
)

var statuses = map[Status]string{
	StatusIdle:      "idle",
	StatusMining:    "mining",
	StatusCompleted: "completed",
	StatusCancelled: "cancelled",
}

// String implements the Stringer interface.
func (s Status) String() string {
	if name, exists := statuses[s]; exists {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// =============================================================================

// Job searches for a nonce for one candidate block built on one head. A job
// is never restarted, a new job is constructed for every head.
type Job struct {
	args   database.POWArgs
	status atomic.Int32
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc

	block database.Block
	err   error
}

// NewJob constructs an idle job for the snapshot.
func NewJob(args database.POWArgs) *Job {
	return &Job{
		args: args,
		done: make(chan struct{}),
	}
}

// Start begins the search on its own goroutine.
func (j *Job) Start(ctx context.Context) error {
	if !j.status.CompareAndSwap(int32(StatusIdle), int32(StatusMining)) {
		return ErrJobStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	go func() {
		defer cancel()

		block, err := database.POW(ctx, j.args)

		j.block = block
		j.err = err

		switch err {
		case nil:
			j.status.Store(int32(StatusCompleted))
		default:
			j.status.Store(int32(StatusCancelled))
		}

		j.finish()
	}()

	return nil
}

// Interrupt asks the search to stop and returns without waiting for it.
// The search observes the request within a bounded number of attempts.
func (j *Job) Interrupt() {
	if j.status.CompareAndSwap(int32(StatusIdle), int32(StatusCancelled)) {
		j.err = context.Canceled
		j.finish()
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}
}

// Status returns the current state of the job.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Done returns a channel that is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result waits for the job to finish and returns the mined block.
func (j *Job) Result() (database.Block, error) {
	<-j.done
	return j.block, j.err
}

func (j *Job) finish() {
	j.once.Do(func() {
		close(j.done)
	})
}
