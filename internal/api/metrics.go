package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_requests_created_total",
		Help: "Modification requests created, by origin and type.",
	}, []string{"origin", "type"})

	requestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_request_transitions_total",
		Help: "Request status transitions committed, by resulting status.",
	}, []string{"status"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdesk_operation_errors_total",
		Help: "Workflow operations rejected, by error kind.",
	}, []string{"kind"})
)
