package tasks

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var taskOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "task_operations_total",
		Help: "Task service operations by outcome",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(taskOperations)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
