package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pishield/pishield/pkg/models"
)

// MemoryStore implements Store in process memory. Rows are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	alerts  map[string]models.Alert
	blocked map[string]models.BlockedIP
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:  make(map[string]models.Alert),
		blocked: make(map[string]models.BlockedIP),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) InsertAlert(_ context.Context, alert models.Alert) (models.Alert, error) {
	now := s.now()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = now
	}
	if alert.Status == "" {
		alert.Status = models.StatusNew
	}
	alert.CreatedAt = now

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()
	return alert, nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) UpdateAlertStatus(_ context.Context, id string, status models.AlertStatus) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	now := s.now()
	a.Status = status
	a.UpdatedAt = &now
	s.alerts[id] = a
	return a, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, filter models.AlertFilter, page models.Page) ([]models.Alert, int, error) {
	s.mu.RLock()
	matched := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if matchAlert(a, filter) {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	sortAlerts(matched, page)

	total := len(matched)
	start := page.Offset
	if start > total {
		start = total
	}
	end := total
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) CountAlerts(_ context.Context, filter models.AlertFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if matchAlert(a, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AlertsPerDay(_ context.Context, since, until time.Time) ([]models.DailyCount, error) {
	counts := make(map[time.Time]int)
	s.mu.RLock()
	for _, a := range s.alerts {
		if a.Timestamp.Before(since) || !a.Timestamp.Before(until) {
			continue
		}
		ts := a.Timestamp.UTC()
		counts[time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)]++
	}
	s.mu.RUnlock()

	out := make([]models.DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *MemoryStore) InsertBlockedIP(_ context.Context, b models.BlockedIP) (models.BlockedIP, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.blocked[b.ID] = b
	s.mu.Unlock()
	return b, nil
}

func (s *MemoryStore) DeleteBlockedIP(_ context.Context, ip string) (models.BlockedIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		removed models.BlockedIP
		found   bool
	)
	for id, b := range s.blocked {
		if b.IPAddress != ip {
			continue
		}
		if !found {
			removed, found = b, true
		}
		delete(s.blocked, id)
	}
	if !found {
		return models.BlockedIP{}, ErrNotFound
	}
	return removed, nil
}

func (s *MemoryStore) ListBlockedIPs(context.Context) ([]models.BlockedIP, error) {
	s.mu.RLock()
	out := make([]models.BlockedIP, 0, len(s.blocked))
	for _, b := range s.blocked {
		out = append(out, b)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountActiveBlockedIPs(_ context.Context, at time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.blocked {
		if b.ActiveAt(at) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, ip string, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.blocked {
		if b.IPAddress == ip && b.ActiveAt(at) {
			return true, nil
		}
	}
	return false, nil
}

func matchAlert(a models.Alert, f models.AlertFilter) bool {
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, a.Severity) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	for _, st := range f.ExcludeStatuses {
		if a.Status == st {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.SourceIP), q) && !strings.Contains(strings.ToLower(a.Type), q) {
			return false
		}
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !a.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

func containsSeverity(list []models.Severity, s models.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortAlerts(alerts []models.Alert, page models.Page) {
	compare := func(a, b models.Alert) int {
		switch page.Sort {
		case models.SortSeverity:
			return a.Severity.Rank() - b.Severity.Rank()
		case models.SortType:
			return strings.Compare(a.Type, b.Type)
		case models.SortSourceIP:
			return strings.Compare(a.SourceIP, b.SourceIP)
		case models.SortStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		c := compare(alerts[i], alerts[j])
		if c == 0 {
			c = strings.Compare(alerts[i].ID, alerts[j].ID)
		}
		if page.Asc {
			return c < 0
		}
		return c > 0
	})
}
