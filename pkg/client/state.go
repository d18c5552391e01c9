package client

// State is the run state of a job as reported by the service.
type State string

// Job states. StateNone is local only: a job that has not been submitted has
// no state on the service.
const (
	StateNone             State = ""
	StateWaiting          State = "Waiting"
	StateRunning          State = "Running"
	StateSuccess          State = "Success"
	StateCancelled        State = "Cancelled"
	StateTemporaryFailure State = "TemporaryFailure"
	StatePermanentFailure State = "PermanentFailure"
	StateSystemError      State = "SystemError"
)

// Terminal reports whether the job is done as far as this client is
// concerned. TemporaryFailure may still transition if the service retries,
// but the client treats it as not running.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateCancelled, StateTemporaryFailure, StatePermanentFailure, StateSystemError:
		return true
	}
	return false
}
