package calendar

import "fmt"

// ConfigError indicates invalid business-hours or holiday configuration. It is
// fatal at construction time and not recoverable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("calendar: invalid configuration: %s", e.Reason)
}

// CalcError indicates an invalid instant or an unanswerable working-time
// question (e.g. no business day exists within the search cap).
type CalcError struct {
	Reason string
}

func (e *CalcError) Error() string {
	return fmt.Sprintf("calendar: %s", e.Reason)
}
