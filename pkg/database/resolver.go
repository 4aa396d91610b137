package database

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	refreshInterval = 15 * time.Minute // Refresh prefix mapping every 15 minutes

	// UnknownCountry is reported when no prefix covers an address.
	UnknownCountry = "XX"
)

// CountryResolver maps source IPs to ISO country codes for the attack map.
type CountryResolver interface {
	// Resolve returns the country code for an IP, or "" if unknown.
	Resolve(ip string) string
	// Count returns the number of prefixes in the mapping.
	Count() int
	// Start begins any background refresh operations.
	Start()
	// Stop stops any background operations.
	Stop()
}

// NullResolver knows no prefixes.
type NullResolver struct{}

// NewNullResolver creates a new null resolver.
func NewNullResolver() *NullResolver {
	return &NullResolver{}
}

func (r *NullResolver) Resolve(string) string { return "" }
func (r *NullResolver) Count() int            { return 0 }
func (r *NullResolver) Start()                {}
func (r *NullResolver) Stop()                 {}

type prefixEntry struct {
	prefix  netip.Prefix
	country string
}

// prefixTable is a longest-prefix-first list of CIDR -> country entries.
type prefixTable []prefixEntry

func newPrefixTable(m map[netip.Prefix]string) prefixTable {
	t := make(prefixTable, 0, len(m))
	for p, c := range m {
		t = append(t, prefixEntry{prefix: p, country: c})
	}
	sort.Slice(t, func(i, j int) bool { return t[i].prefix.Bits() > t[j].prefix.Bits() })
	return t
}

func (t prefixTable) lookup(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	for _, e := range t {
		if e.prefix.Contains(addr) {
			return e.country
		}
	}
	return ""
}

// parsePrefix accepts "a.b.c.d/n" or a bare address (treated as a host route).
func parsePrefix(s string) (netip.Prefix, bool) {
	s = strings.TrimSpace(s)
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), true
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return netip.PrefixFrom(a, a.BitLen()), true
	}
	return netip.Prefix{}, false
}

// FileResolver loads prefix-to-country mappings from a CSV file.
// Expected format: cidr,country_code (e.g., "1.1.1.0/24,AU")
type FileResolver struct {
	filePath string
	table    prefixTable
	mu       sync.RWMutex
	log      *logrus.Entry
}

// NewFileResolver creates a resolver that loads mappings from a CSV file.
func NewFileResolver(filePath string, log *logrus.Logger) (*FileResolver, error) {
	r := &FileResolver{
		filePath: filePath,
		log:      log.WithField("component", "file-resolver"),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileResolver) load() error {
	file, err := os.Open(r.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	mapping := make(map[netip.Prefix]string)
	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 2 {
			continue
		}
		// A header row simply fails to parse as a prefix.
		prefix, ok := parsePrefix(record[0])
		if !ok {
			continue
		}
		country := strings.ToUpper(strings.TrimSpace(record[1]))
		if len(country) == 2 {
			mapping[prefix] = country
		}
	}

	r.mu.Lock()
	r.table = newPrefixTable(mapping)
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"prefixes": len(mapping), "path": r.filePath}).Info("Loaded prefix mappings")
	return nil
}

func (r *FileResolver) Resolve(ip string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.lookup(ip)
}

func (r *FileResolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

func (r *FileResolver) Start() {}
func (r *FileResolver) Stop()  {}

// DatabaseResolver loads prefix-to-country mappings from a database table.
// Uses a simple schema: SELECT network, country_code FROM ip_countries
type DatabaseResolver struct {
	db         *sql.DB
	tableName  string
	table      prefixTable
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
	lastUpdate time.Time
	log        *logrus.Entry
}

// NewDatabaseResolver creates a resolver that loads mappings from a database.
// tableName defaults to "ip_countries" if empty.
func NewDatabaseResolver(db *sql.DB, tableName string, log *logrus.Logger) *DatabaseResolver {
	if tableName == "" {
		tableName = "ip_countries"
	}
	return &DatabaseResolver{
		db:        db,
		tableName: tableName,
		done:      make(chan struct{}),
		log:       log.WithField("component", "db-resolver"),
	}
}

// Start begins periodic refresh of the prefix mapping.
func (r *DatabaseResolver) Start() {
	r.refresh()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.refresh()
			case <-r.done:
				return
			}
		}
	}()
}

// Stop stops the resolver.
func (r *DatabaseResolver) Stop() {
	close(r.done)
	r.wg.Wait()
}

// Resolve returns the country code for an IP, or "" if unknown.
func (r *DatabaseResolver) Resolve(ip string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.lookup(ip)
}

// Count returns the number of prefixes in the mapping.
func (r *DatabaseResolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

// refresh loads the mapping from the database. A failed refresh keeps the previous mapping.
func (r *DatabaseResolver) refresh() {
	start := time.Now()

	query := "SELECT network::text, country_code FROM " + r.tableName + " WHERE country_code IS NOT NULL AND country_code != ''"
	rows, err := r.db.Query(query)
	if err != nil {
		r.log.WithError(err).WithField("table", r.tableName).Warn("Failed to query prefix table")
		return
	}
	defer rows.Close()

	mapping := make(map[netip.Prefix]string)
	for rows.Next() {
		var network, country string
		if err := rows.Scan(&network, &country); err != nil {
			continue
		}
		if prefix, ok := parsePrefix(network); ok {
			mapping[prefix] = strings.ToUpper(country)
		}
	}

	if err := rows.Err(); err != nil {
		r.log.WithError(err).Warn("Row iteration error")
		return
	}

	r.mu.Lock()
	r.table = newPrefixTable(mapping)
	r.lastUpdate = time.Now()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"prefixes": len(mapping), "took": time.Since(start)}).Info("Loaded prefix mappings")
}

// ResolveOrUnknown resolves ip and falls back to UnknownCountry.
func ResolveOrUnknown(r CountryResolver, ip string) string {
	if c := r.Resolve(ip); c != "" {
		return c
	}
	return UnknownCountry
}
