package bridge

import (
	"fmt"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
)

// Step names the stage of message handling that failed.
type Step string

const (
	StepSession Step = "session"
	StepEnsure  Step = "ensure"
	StepBuild   Step = "build"
	StepWrite   Step = "write"
)

// StepError reports a failed handling stage. Storage failures carry the
// client's Result; StepBuild and StepSession failures carry Err instead.
type StepError struct {
	Step   Step
	Path   string
	Result storage.Result
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Step, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: code %d: %s", e.Step, e.Path, e.Result.Code(), e.Result.Msg())
}

func (e *StepError) Unwrap() error { return e.Err }

// Msg returns the text reported to the user for this failure.
func (e *StepError) Msg() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Result.Msg()
}
