package observability

import (
	"sync"
	"time"
)

// Phase mirrors the engine's execution state machine for the dashboard.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
	PhaseAwaiting  Phase = "AWAITING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentPhase  Phase
	ActiveMission string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentPhase:  PhaseIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(phase Phase, mission string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentPhase = phase
	globalStatus.ActiveMission = mission
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentPhase, globalStatus.ActiveMission, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
