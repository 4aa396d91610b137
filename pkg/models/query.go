package models

import "time"

// Sort columns accepted by AlertFilter.Sort.
const (
	SortTimestamp = "timestamp"
	SortSeverity  = "severity"
	SortType      = "type"
	SortSourceIP  = "sourceIp"
	SortStatus    = "status"
)

// SortColumns maps the public sort keys to store column names.
var SortColumns = map[string]string{
	SortTimestamp: "alert_timestamp",
	SortSeverity:  "severity",
	SortType:      "type",
	SortSourceIP:  "source_ip",
	SortStatus:    "status",
}

// AlertFilter selects alerts. Zero values mean "no constraint".
type AlertFilter struct {
	Severities      []Severity
	Status          AlertStatus
	ExcludeStatuses []AlertStatus
	Search          string // case-insensitive substring of source IP or type
	Since           time.Time
	Until           time.Time
}

// Page describes ordering and pagination for a listing.
type Page struct {
	Sort   string // one of the Sort* keys; defaults to timestamp
	Asc    bool
	Offset int
	Limit  int // 0 = unlimited
}

// DailyCount is the number of alerts recorded on one calendar day (UTC).
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}
