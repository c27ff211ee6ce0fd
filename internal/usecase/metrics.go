package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callcenter_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	contactsAssignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callcenter_contacts_assigned_total",
		Help: "Contacts claimed by an account",
	})

	contactsUnassignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callcenter_contacts_unassigned_total",
		Help: "Contacts released from an account",
	})

	callStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callcenter_call_status_changes_total",
			Help: "Phone status transitions by new value",
		},
		[]string{"called"},
	)

	partialFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callcenter_partial_assignment_failures_total",
			Help: "Batches where the contact side was written but the account side failed",
		},
		[]string{"op"},
	)

	reconcileCorrectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callcenter_reconcile_corrections_total",
			Help: "Repairs applied by reconciliation by kind",
		},
		[]string{"kind"},
	)
)
