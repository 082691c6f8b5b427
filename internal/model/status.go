package model

// RunStatus is the terminal outcome of a pipeline run. The zero value is
// Success.
type RunStatus struct {
	err string
}

// Success is the status of a run that produced a schedule.
var Success = RunStatus{}

// Failure returns an error status carrying message.
func Failure(message string) RunStatus {
	if message == "" {
		message = "unknown error"
	}
	return RunStatus{err: message}
}

func (s RunStatus) OK() bool {
	return s.err == ""
}

// Message returns the failure message, empty on success.
func (s RunStatus) Message() string {
	return s.err
}

// Tag returns "success" or "error".
func (s RunStatus) Tag() string {
	if s.OK() {
		return "success"
	}
	return "error"
}

func (s RunStatus) String() string {
	if s.OK() {
		return "success"
	}
	return "error: " + s.err
}
