package model

import "time"

type Service string

const (
	ServiceSSH    Service = "ssh"
	ServiceFTP    Service = "ftp"
	ServiceHTTP   Service = "http"
	ServiceMySQL  Service = "mysql"
	ServiceRDP    Service = "rdp"
	ServiceTelnet Service = "telnet"
	ServiceOther  Service = "other"
)

// AttackEvent is one captured interaction with a decoy. Rows are append-only:
// once written they are never updated or deleted, and ids strictly increase.
type AttackEvent struct {
	ID        int64   `json:"id,omitempty"`
	Timestamp string  `json:"timestamp"`
	IP        string  `json:"ip"`
	Service   Service `json:"service"`
	Username  string  `json:"username,omitempty"`
	Password  string  `json:"password,omitempty"`
	Command   string  `json:"command,omitempty"`
	Data      string  `json:"data,omitempty"`
}

// CaptureRecord is the crash-safe fallback log line written when the capture
// store is unreachable. One JSON object per line, appended per service.
type CaptureRecord struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	IP        string `json:"ip"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Event     string `json:"event"`
}

type GeoIPRecord struct {
	Country     string `json:"country"`
	City        string `json:"city"`
	Region      string `json:"region,omitempty"`
	ISP         string `json:"isp"`
	CountryCode string `json:"country_code"`
	Risk        string `json:"risk,omitempty"`
}

// CountryCodeLocal marks private/internal address space.
const CountryCodeLocal = "LOCAL"

type ThreatLevel string

const (
	LevelInfo     ThreatLevel = "INFO"
	LevelLow      ThreatLevel = "LOW"
	LevelMedium   ThreatLevel = "MEDIUM"
	LevelHigh     ThreatLevel = "HIGH"
	LevelCritical ThreatLevel = "CRITICAL"
	LevelUnknown  ThreatLevel = "UNKNOWN"
)

func LevelFromScore(score float64) ThreatLevel {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelInfo
	}
}

// ThreatAssessment is the cached verdict for one IP. One slot per IP, valid
// for TTL, then recomputed and overwritten.
type ThreatAssessment struct {
	IP         string         `json:"ip"`
	Score      float64        `json:"score"`
	Level      ThreatLevel    `json:"threat_level"`
	Reasons    []string       `json:"reasons"`
	Sources    map[string]any `json:"sources,omitempty"`
	ComputedAt time.Time      `json:"computed_at"`
	TTLSeconds int            `json:"ttl"`
}
