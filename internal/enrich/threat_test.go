package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

func threatTestConfig() config.ThreatConfig {
	return config.ThreatConfig{
		CacheTTL:          time.Hour,
		MaliciousPrefixes: []string{"45.95.147.", "185.220.101."},
		HighRiskCountries: []string{"RU", "KP"},
		TrustedProviders:  []string{"google", "cloudflare"},
	}
}

func publicGeo(country, code, isp string) model.GeoIPRecord {
	return model.GeoIPRecord{Country: country, CountryCode: code, ISP: isp}
}

func TestMaliciousPrefixOverridesEverything(t *testing.T) {
	// A fixture reporting the IP as clean must not matter: the static
	// blocklist wins before any provider runs.
	clean := NewFixtureProvider("fixture", map[string]ProviderResult{
		"45.95.147.200": {AbuseConfidence: 0},
	})
	a := NewAssessor(threatTestConfig(), []Provider{clean}, nil)

	out := a.Assess(context.Background(), "45.95.147.200", publicGeo("Netherlands", "NL", "Alsycon B.V."))
	if out.Level != model.LevelHigh || out.Score != 90 {
		t.Fatalf("assessment = %+v", out)
	}
	if len(out.Reasons) != 1 || !strings.Contains(out.Reasons[0], "45.95.147.") {
		t.Fatalf("reasons = %v", out.Reasons)
	}
}

func TestLocalAddressScoresLow(t *testing.T) {
	a := NewAssessor(threatTestConfig(), nil, nil)
	out := a.Assess(context.Background(), "192.168.1.5", model.GeoIPRecord{CountryCode: model.CountryCodeLocal})
	if out.Level != model.LevelLow || out.Score != 10 {
		t.Fatalf("assessment = %+v", out)
	}
}

func TestHighRiskCountry(t *testing.T) {
	a := NewAssessor(threatTestConfig(), nil, nil)
	out := a.Assess(context.Background(), "91.218.114.50", publicGeo("Russia", "ru", "Selectel"))
	if out.Level != model.LevelHigh || out.Score != 70 {
		t.Fatalf("country match should be case-insensitive: %+v", out)
	}
}

func TestTrustedProviderScoresLow(t *testing.T) {
	a := NewAssessor(threatTestConfig(), nil, nil)
	out := a.Assess(context.Background(), "8.8.8.8", publicGeo("United States", "US", "Google LLC"))
	if out.Level != model.LevelLow || out.Score != 10 {
		t.Fatalf("assessment = %+v", out)
	}
}

func TestWeightedProviderScoring(t *testing.T) {
	fixture := NewFixtureProvider("fixture", map[string]ProviderResult{
		"203.0.113.77": {AbuseConfidence: 80, MaliciousDetections: 3},
	})
	a := NewAssessor(threatTestConfig(), []Provider{fixture}, nil)

	out := a.Assess(context.Background(), "203.0.113.77", publicGeo("Germany", "DE", "Hetzner"))
	// 0.5 * 80 + min(3 * 10, 50) = 70
	if out.Score != 70 {
		t.Fatalf("score = %v, want 70", out.Score)
	}
	if out.Level != model.LevelHigh {
		t.Fatalf("level = %q, want HIGH", out.Level)
	}
}

func TestDetectionBonusClamped(t *testing.T) {
	fixture := NewFixtureProvider("fixture", map[string]ProviderResult{
		"203.0.113.88": {AbuseConfidence: 100, MaliciousDetections: 20},
	})
	a := NewAssessor(threatTestConfig(), []Provider{fixture}, nil)

	out := a.Assess(context.Background(), "203.0.113.88", publicGeo("Germany", "DE", "Hetzner"))
	// 0.5 * 100 + min(200, 50) caps at 100.
	if out.Score != 100 {
		t.Fatalf("score = %v, want clamped to 100", out.Score)
	}
	if out.Level != model.LevelCritical {
		t.Fatalf("level = %q, want CRITICAL", out.Level)
	}
}

func TestNoProvidersReportsUnknown(t *testing.T) {
	a := NewAssessor(threatTestConfig(), nil, nil)
	out := a.Assess(context.Background(), "203.0.113.99", publicGeo("Germany", "DE", "Hetzner"))
	if out.Level != model.LevelUnknown {
		t.Fatalf("level = %q, want UNKNOWN", out.Level)
	}
}

func TestProviderErrorRecordedNotFatal(t *testing.T) {
	broken := NewFixtureProvider("broken", nil)
	working := NewFixtureProvider("working", map[string]ProviderResult{
		"203.0.113.11": {AbuseConfidence: 40},
	})
	a := NewAssessor(threatTestConfig(), []Provider{broken, working}, nil)

	out := a.Assess(context.Background(), "203.0.113.11", publicGeo("Germany", "DE", "Hetzner"))
	if out.Score != 20 {
		t.Fatalf("score = %v, want 20 from the working provider", out.Score)
	}
	errSrc, ok := out.Sources["broken"].(map[string]any)
	if !ok || errSrc["error"] == nil {
		t.Fatalf("broken provider error not recorded: %v", out.Sources)
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	results := map[string]ProviderResult{
		"203.0.113.33": {AbuseConfidence: 60},
	}
	fixture := NewFixtureProvider("fixture", results)
	a := NewAssessor(threatTestConfig(), []Provider{fixture}, nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	first := a.Assess(context.Background(), "203.0.113.33", publicGeo("Germany", "DE", "Hetzner"))
	if first.Score != 30 {
		t.Fatalf("first score = %v, want 30", first.Score)
	}

	// A changed upstream signal must not show through while cached.
	results["203.0.113.33"] = ProviderResult{AbuseConfidence: 100, MaliciousDetections: 10}
	a.now = func() time.Time { return base.Add(30 * time.Minute) }

	second := a.Assess(context.Background(), "203.0.113.33", publicGeo("Germany", "DE", "Hetzner"))
	if second.Score != first.Score || !second.ComputedAt.Equal(first.ComputedAt) {
		t.Fatalf("cached assessment changed: first=%+v second=%+v", first, second)
	}
}

func TestCacheExpiryRecomputes(t *testing.T) {
	results := map[string]ProviderResult{
		"203.0.113.44": {AbuseConfidence: 20},
	}
	fixture := NewFixtureProvider("fixture", results)
	a := NewAssessor(threatTestConfig(), []Provider{fixture}, nil)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }
	first := a.Assess(context.Background(), "203.0.113.44", publicGeo("Germany", "DE", "Hetzner"))
	if first.Score != 10 {
		t.Fatalf("first score = %v, want 10", first.Score)
	}

	results["203.0.113.44"] = ProviderResult{AbuseConfidence: 90}
	a.now = func() time.Time { return base.Add(61 * time.Minute) }

	second := a.Assess(context.Background(), "203.0.113.44", publicGeo("Germany", "DE", "Hetzner"))
	if second.Score != 45 {
		t.Fatalf("expired slot not recomputed: %+v", second)
	}
	if !second.ComputedAt.After(first.ComputedAt) {
		t.Fatalf("computed_at not refreshed")
	}
}
