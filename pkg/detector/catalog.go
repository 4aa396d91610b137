// Package detector generates simulated detections and derives dashboard stats.
package detector

import "github.com/pishield/pishield/pkg/models"

// AttackTypes is the catalog of attack labels the simulator draws from.
var AttackTypes = []string{
	"SQL Injection Attempt",
	"Cross-Site Scripting (XSS)",
	"Port Scan",
	"Brute Force Attack",
	"DDoS Attempt",
	"Directory Traversal",
	"Command Injection",
	"Malware Communication",
	"Suspicious File Access",
}

// SeverityWeights are the relative draw weights. Critical is the rarest.
var SeverityWeights = []struct {
	Severity models.Severity
	Weight   int
}{
	{models.SeverityCritical, 1},
	{models.SeverityHigh, 3},
	{models.SeverityMedium, 5},
	{models.SeverityLow, 10},
}

const (
	// DefaultProbability is the chance that one tick produces an alert.
	DefaultProbability = 0.3

	simulatedDetails = "Auto-generated alert by detection simulation"
)

// Rand is the randomness used by the simulator. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// weightedSeverity draws a severity according to SeverityWeights.
func weightedSeverity(r Rand) models.Severity {
	total := 0
	for _, w := range SeverityWeights {
		total += w.Weight
	}
	x := r.Float64() * float64(total)
	for _, w := range SeverityWeights {
		if x < float64(w.Weight) {
			return w.Severity
		}
		x -= float64(w.Weight)
	}
	return SeverityWeights[len(SeverityWeights)-1].Severity
}
