// Package models defines data structures for alerts, blocked IPs and dashboard state.
package models

import (
	"fmt"
	"time"
)

// Severity is the risk class of an alert. Critical is the most severe.
type Severity string

// Severity levels
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity, most severe first.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities by risk: low=0 ... critical=3. Unknown values rank -1.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// AlertStatus tracks triage progress: new -> investigating -> resolved.
// The order is conventional; transitions are not enforced.
type AlertStatus string

// Alert statuses
const (
	StatusNew           AlertStatus = "new"
	StatusInvestigating AlertStatus = "investigating"
	StatusResolved      AlertStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// Active reports whether an alert in this status still counts as an active alert.
func (s AlertStatus) Active() bool {
	return s != StatusResolved
}

// Alert is a detected (or simulated) security event.
type Alert struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  Severity    `json:"severity"`
	Type      string      `json:"type"`
	SourceIP  string      `json:"sourceIp"`
	DestPort  *int        `json:"destPort,omitempty"` // 0-65535
	Status    AlertStatus `json:"status"`
	Details   string      `json:"details,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt *time.Time  `json:"updatedAt,omitempty"`
}

// AlertStatusChange is the payload of an ALERT_UPDATE broadcast.
type AlertStatusChange struct {
	ID     string      `json:"id"`
	Status AlertStatus `json:"status"`
}

// AttackSource is a recent alert origin shown on the attack map.
type AttackSource struct {
	ID        string    `json:"id"`
	SourceIP  string    `json:"sourceIp"`
	Country   string    `json:"country"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
