// Package geo derives the foreign-IP signal from a client address using a
// MaxMind GeoLite2 database.
package geo

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnresolved is returned when an address has no country on record.
var ErrUnresolved = errors.New("geo: address not resolved")

// Resolver maps an IP address to an ISO 3166-1 alpha-2 country code.
type Resolver interface {
	CountryCode(ip net.IP) (string, error)
}

// MaxMind resolves countries from a GeoLite2 City or Country database.
type MaxMind struct {
	db *geoip2.Reader
}

// OpenMaxMind opens the .mmdb file at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{db: db}, nil
}

// CountryCode implements Resolver.
func (m *MaxMind) CountryCode(ip net.IP) (string, error) {
	rec, err := m.db.Country(ip)
	if err != nil {
		return "", err
	}
	if rec.Country.IsoCode == "" {
		return "", ErrUnresolved
	}
	return rec.Country.IsoCode, nil
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.db.Close()
}

// Classifier decides whether a client address is foreign relative to a home country.
type Classifier struct {
	resolver Resolver
	home     string
}

// NewClassifier returns a Classifier. A nil resolver classifies nothing.
func NewClassifier(r Resolver, homeCountry string) *Classifier {
	return &Classifier{resolver: r, home: strings.ToUpper(homeCountry)}
}

// IsForeign reports whether raw resolves to a country other than home.
// ok is false when the address cannot be classified (unparseable, private,
// loopback or unknown to the database); callers keep their own signal then.
func (c *Classifier) IsForeign(raw string) (foreign, ok bool) {
	if c == nil || c.resolver == nil {
		return false, false
	}
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return false, false
	}
	code, err := c.resolver.CountryCode(ip)
	if err != nil || code == "" {
		return false, false
	}
	return !strings.EqualFold(code, c.home), true
}
