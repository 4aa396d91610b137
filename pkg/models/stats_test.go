package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRiskFromCounts(t *testing.T) {
	tests := []struct {
		name     string
		critical int
		high     int
		expected RiskLevel
	}{
		{"three critical", 3, 0, RiskHigh},
		{"six high", 0, 6, RiskHigh},
		{"one critical", 1, 0, RiskMedium},
		{"three high", 0, 3, RiskMedium},
		{"two high", 0, 2, RiskLow},
		{"nothing", 0, 0, RiskLow},
		{"two critical five high", 2, 5, RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RiskFromCounts(tt.critical, tt.high))
		})
	}
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityCritical.Rank() > SeverityHigh.Rank())
	assert.True(t, SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(t, SeverityMedium.Rank() > SeverityLow.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())

	s, err := ParseSeverity("high")
	assert.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}

func TestAlertStatus(t *testing.T) {
	assert.True(t, StatusNew.Valid())
	assert.True(t, StatusInvestigating.Active())
	assert.False(t, StatusResolved.Active())
	assert.False(t, AlertStatus("ignored").Valid())
}

func TestBlockedIP_ActiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, BlockedIP{}.ActiveAt(now), "no expiry is permanent")
	assert.True(t, BlockedIP{ExpiresAt: &future}.ActiveAt(now))
	assert.False(t, BlockedIP{ExpiresAt: &past}.ActiveAt(now))
}
