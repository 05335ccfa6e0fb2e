// Package jobs is the thin adapter between the registration core and the
// external job manager: follow-up maintenance work is enqueued by name and
// runs fire-and-forget.
package jobs

import (
	"sync"
	"time"
)

type JobType string

const (
	JobDirectoryRefresh   JobType = "DirectoryRefresh"
	JobRotateCertificate  JobType = "RotateCertificate"
	JobAllDataSyncRequest JobType = "AllDataSyncRequest"
	JobRefreshOwnProfile  JobType = "RefreshOwnProfile"
	JobPreKeysSync        JobType = "PreKeysSync"
	// JobSignedPreKeyRotation only ever runs on a schedule; it is never
	// enqueued directly.
	JobSignedPreKeyRotation JobType = "SignedPreKeyRotation"
)

// Job is one enqueued unit of follow-up work.
type Job struct {
	Type JobType
	// Forced is only meaningful for directory refresh.
	Forced bool
}

// Manager enqueues jobs for later execution. Add must not block.
type Manager interface {
	Add(job Job)
}

// Scheduler is the facade the orchestrator talks to: one method per job,
// plus periodic schedules for the recurring maintenance tasks.
type Scheduler struct {
	manager Manager

	periodicLock sync.Mutex
	periodic     map[JobType]time.Duration
}

func NewScheduler(manager Manager) *Scheduler {
	return &Scheduler{
		manager:  manager,
		periodic: make(map[JobType]time.Duration),
	}
}

func (s *Scheduler) EnqueueDirectoryRefresh(forced bool) {
	s.manager.Add(Job{Type: JobDirectoryRefresh, Forced: forced})
}

func (s *Scheduler) EnqueueRotateCertificate() {
	s.manager.Add(Job{Type: JobRotateCertificate})
}

func (s *Scheduler) EnqueueAllDataSyncRequest() {
	s.manager.Add(Job{Type: JobAllDataSyncRequest})
}

func (s *Scheduler) EnqueueRefreshOwnProfile() {
	s.manager.Add(Job{Type: JobRefreshOwnProfile})
}

func (s *Scheduler) EnqueuePreKeysSync() {
	s.manager.Add(Job{Type: JobPreKeysSync})
}

const (
	directoryRefreshInterval = 12 * time.Hour
	signedPreKeyRotateAfter  = 48 * time.Hour
)

// SchedulePeriodicDirectoryRefresh registers the recurring directory refresh.
// Registration is idempotent; the external executor owns the actual timer.
func (s *Scheduler) SchedulePeriodicDirectoryRefresh() {
	s.periodicLock.Lock()
	s.periodic[JobDirectoryRefresh] = directoryRefreshInterval
	s.periodicLock.Unlock()
}

// SchedulePeriodicSignedPreKeyRotation registers the recurring signed
// pre-key rotation.
func (s *Scheduler) SchedulePeriodicSignedPreKeyRotation() {
	s.periodicLock.Lock()
	s.periodic[JobSignedPreKeyRotation] = signedPreKeyRotateAfter
	s.periodicLock.Unlock()
}

// PeriodicSchedules returns the registered recurring schedules.
func (s *Scheduler) PeriodicSchedules() map[JobType]time.Duration {
	s.periodicLock.Lock()
	defer s.periodicLock.Unlock()
	out := make(map[JobType]time.Duration, len(s.periodic))
	for job, interval := range s.periodic {
		out[job] = interval
	}
	return out
}

// MemoryManager is an in-process Manager that records enqueued jobs.
type MemoryManager struct {
	lock sync.Mutex
	jobs []Job
}

var _ Manager = (*MemoryManager)(nil)

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{}
}

func (m *MemoryManager) Add(job Job) {
	m.lock.Lock()
	m.jobs = append(m.jobs, job)
	m.lock.Unlock()
}

// Jobs returns a copy of everything enqueued so far, in order.
func (m *MemoryManager) Jobs() []Job {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Reset drops all recorded jobs.
func (m *MemoryManager) Reset() {
	m.lock.Lock()
	m.jobs = nil
	m.lock.Unlock()
}
