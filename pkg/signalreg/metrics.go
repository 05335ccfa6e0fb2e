package signalreg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalreg_registrations_completed_total",
		Help: "Registrations that reached the registered state",
	}, []string{"mode"})
	registrationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalreg_registrations_failed_total",
		Help: "Registration attempts that failed and were surfaced for retry",
	}, []string{"mode"})
	preKeyUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalreg_prekey_uploads_total",
		Help: "Pre-key uploads performed during linked-device registration",
	}, []string{"identity"})
)

const (
	modePrimary = "primary"
	modeLinked  = "linked"
)
