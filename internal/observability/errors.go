package observability

import (
	"errors"
	"fmt"
	"strings"
)

// AggregateErrors joins multiple errors, emits a single structured log entry, and
// returns the aggregated error. Nil entries are skipped; nil is returned when
// nothing remains.
func AggregateErrors(operation string, errs []error, fields ...Field) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
	}
	if len(filtered) == 0 {
		return nil
	}
	logFields := append(fields,
		Field{Key: "operation", Value: operation},
		Field{Key: "error_count", Value: len(filtered)},
		Field{Key: "errors", Value: JoinMessages(filtered)},
	)
	Log().Error("operation errors", logFields...)
	joined := errors.Join(filtered...)
	return fmt.Errorf("%s failed: %w", operation, joined)
}

// JoinMessages concatenates error messages with "; " in the order supplied.
func JoinMessages(errs []error) string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}
