// Package geo resolves IP addresses to coarse locations for session and
// rule enrichment. Lookups are best-effort: a nil location means the
// address could not be resolved and callers degrade gracefully.
package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Location is the resolved geolocation for an IP address.
type Location struct {
	City     string
	Country  string
	Region   string
	Timezone string
}

// Label renders a stable display label used for session comparison.
func (l *Location) Label() string {
	switch {
	case l == nil:
		return ""
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.Country != "":
		return l.Country
	default:
		return ""
	}
}

// Resolver maps an IP address to a location. Implementations must be
// safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
	Close() error
}

// MaxMindResolver resolves locations from a local MaxMind City database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Resolve(_ context.Context, ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip address %q", ip)
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup for %s: %w", ip, err)
	}

	loc := &Location{
		City:     record.City.Names["en"],
		Country:  record.Country.Names["en"],
		Timezone: record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if loc.Country == "" {
		// No data for the address, treat as unresolved
		return nil, nil
	}
	return loc, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

// NullResolver is used when no geolocation database is configured; every
// lookup is an explicit miss.
type NullResolver struct{}

func (NullResolver) Resolve(context.Context, string) (*Location, error) { return nil, nil }
func (NullResolver) Close() error                                      { return nil }
