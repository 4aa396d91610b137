package models

import "time"

// BlockedIP is an address dropped at the firewall.
type BlockedIP struct {
	ID        string     `json:"id"`
	IPAddress string     `json:"ipAddress"`
	BlockedBy string     `json:"blockedBy,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ActiveAt reports whether the block is still in force at t.
func (b BlockedIP) ActiveAt(t time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(t)
}
