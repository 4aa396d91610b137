package models

// RiskLevel is the coarse dashboard risk indicator.
type RiskLevel string

// Risk levels
const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskFromCounts derives the risk level from recent critical and high alert counts.
func RiskFromCounts(critical, high int) RiskLevel {
	switch {
	case critical > 2 || high > 5:
		return RiskHigh
	case critical > 0 || high > 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DashboardStats is a derived snapshot; it is never persisted.
type DashboardStats struct {
	AttacksBlocked int       `json:"attacksBlocked"`
	ActiveAlerts   int       `json:"activeAlerts"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	DeviceCount    int       `json:"deviceCount"`
	BlockedIPCount int       `json:"blockedIpCount"`
}

// Device is an entry of the (static) device inventory.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Type     string `json:"type"`
	LastSeen string `json:"lastSeen"`
	Status   string `json:"status"`
}
