package store

import (
	"errors"
	"fmt"
	"time"
)

// Protected alert types every entity tracks and that can never be removed
var DefaultAlerts = []string{"Tornado Warning", "Severe Thunderstorm Warning"}

// DefaultMonitoringInterval is how often an entity's location is checked unless configured otherwise
const DefaultMonitoringInterval = time.Hour

var (
	ErrProtectedAlert  = errors.New("default alert types cannot be removed")
	ErrAlreadyTracked  = errors.New("alert type is already tracked")
	ErrNotTracked      = errors.New("alert type is not tracked")
	ErrInvalidLocation = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrEmptyValue      = errors.New("value must not be empty")
)

// Location is a point the alert feed is queried for
type Location struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// Entity is one monitored community (a chat group) with its weather settings
type Entity struct {
	ID                  string        `yaml:"-" json:"id"`
	Location            *Location     `yaml:"location,omitempty" json:"location,omitempty"`
	Alerts              []string      `yaml:"alerts" json:"alerts"`
	Admins              []string      `yaml:"admins" json:"admins"`
	AnnouncementChannel string        `yaml:"announcement_channel,omitempty" json:"announcement_channel,omitempty"`
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	MonitoringInterval  time.Duration `yaml:"monitoring_interval" json:"monitoring_interval"`
	Servers             []string      `yaml:"servers,omitempty" json:"servers,omitempty"`
}

// NewEntity returns a fully populated entity with the protected alert types and default interval
func NewEntity(id string) Entity {
	alerts := make([]string, len(DefaultAlerts))
	copy(alerts, DefaultAlerts)
	return Entity{
		ID:                 id,
		Alerts:             alerts,
		Admins:             []string{},
		MonitoringInterval: DefaultMonitoringInterval,
	}
}

// normalize restores invariants on entities read from disk or config
func (e *Entity) normalize() {
	for i := len(DefaultAlerts) - 1; i >= 0; i-- {
		if !contains(e.Alerts, DefaultAlerts[i]) {
			e.Alerts = append([]string{DefaultAlerts[i]}, e.Alerts...)
		}
	}
	if e.Admins == nil {
		e.Admins = []string{}
	}
	if e.MonitoringInterval <= 0 {
		e.MonitoringInterval = DefaultMonitoringInterval
	}
}

func (e Entity) clone() Entity {
	out := e
	if e.Location != nil {
		loc := *e.Location
		out.Location = &loc
	}
	out.Alerts = append([]string(nil), e.Alerts...)
	out.Admins = append([]string{}, e.Admins...)
	out.Servers = append([]string(nil), e.Servers...)
	return out
}

// IsAdmin reports whether the member id is one of the entity's notification targets
func (e Entity) IsAdmin(id string) bool {
	return contains(e.Admins, id)
}

// IsProtectedAlert reports whether the alert type is one of the defaults
func IsProtectedAlert(alert string) bool {
	return contains(DefaultAlerts, alert)
}

// validLocation rejects out-of-range coordinates. Written so NaN fails too.
func validLocation(lat, lon float64) error {
	if !(lat >= -90 && lat <= 90) || !(lon >= -180 && lon <= 180) {
		return fmt.Errorf("%w: got (%v, %v)", ErrInvalidLocation, lat, lon)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
