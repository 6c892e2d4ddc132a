package invoke

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbit",
		Subsystem: "invoke",
		Name:      "commands_total",
		Help:      "Commands dispatched, by command name.",
	}, []string{"cmd"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbit",
		Subsystem: "invoke",
		Name:      "failures_total",
		Help:      "Command failures, by command name and error code.",
	}, []string{"cmd", "code"})
)
