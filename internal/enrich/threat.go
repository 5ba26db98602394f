package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hivetrap/internal/config"
	"hivetrap/internal/metrics"
	"hivetrap/internal/model"
)

// Assessor scores IPs. Precedence rules run first and short-circuit; only
// when none match does the weighted provider formula apply. Results live in
// a one-slot-per-IP cache for the configured TTL.
type Assessor struct {
	cfg       config.ThreatConfig
	providers []Provider
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]model.ThreatAssessment
	now   func() time.Time
}

func NewAssessor(cfg config.ThreatConfig, providers []Provider, logger *slog.Logger) *Assessor {
	return &Assessor{
		cfg:       cfg,
		providers: providers,
		logger:    logger,
		cache:     make(map[string]model.ThreatAssessment),
		now:       time.Now,
	}
}

// Assess returns the cached assessment when inside the TTL window, otherwise
// recomputes and overwrites the slot.
func (a *Assessor) Assess(ctx context.Context, ip string, geo model.GeoIPRecord) model.ThreatAssessment {
	ttl := a.cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	a.mu.RLock()
	cached, ok := a.cache[ip]
	a.mu.RUnlock()
	if ok && a.now().Sub(cached.ComputedAt) < ttl {
		metrics.ThreatCacheHits.Inc()
		return cached
	}
	metrics.ThreatCacheMisses.Inc()

	assessment := a.compute(ctx, ip, geo)
	assessment.TTLSeconds = int(ttl.Seconds())

	a.mu.Lock()
	a.cache[ip] = assessment
	a.mu.Unlock()
	return assessment
}

func (a *Assessor) compute(ctx context.Context, ip string, geo model.GeoIPRecord) model.ThreatAssessment {
	out := model.ThreatAssessment{IP: ip, ComputedAt: a.now().UTC()}

	for _, prefix := range a.cfg.MaliciousPrefixes {
		if prefix != "" && strings.HasPrefix(ip, prefix) {
			out.Level = model.LevelHigh
			out.Score = 90
			out.Reasons = []string{fmt.Sprintf("Known malicious range: %s", prefix)}
			return out
		}
	}
	if geo.CountryCode == model.CountryCodeLocal {
		out.Level = model.LevelLow
		out.Score = 10
		out.Reasons = []string{"Internal network IP"}
		return out
	}
	for _, cc := range a.cfg.HighRiskCountries {
		if strings.EqualFold(cc, geo.CountryCode) {
			out.Level = model.LevelHigh
			out.Score = 70
			out.Reasons = []string{fmt.Sprintf("High-risk country: %s", geo.Country)}
			return out
		}
	}
	ispLower := strings.ToLower(geo.ISP)
	for _, keyword := range a.cfg.TrustedProviders {
		if keyword != "" && strings.Contains(ispLower, strings.ToLower(keyword)) {
			out.Level = model.LevelLow
			out.Score = 10
			out.Reasons = []string{fmt.Sprintf("Trusted cloud provider: %s", geo.ISP)}
			return out
		}
	}

	return a.scoreFromProviders(ctx, ip, out)
}

func (a *Assessor) scoreFromProviders(ctx context.Context, ip string, out model.ThreatAssessment) model.ThreatAssessment {
	score := 0.0
	gotData := false
	sources := make(map[string]any, len(a.providers))

	for _, p := range a.providers {
		res, err := p.Check(ctx, ip)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("threat provider check failed", "provider", p.Name(), "ip", ip, "err", err)
			}
			sources[p.Name()] = map[string]any{"error": err.Error()}
			continue
		}
		gotData = true
		sources[p.Name()] = res.Raw
		score += 0.5 * res.AbuseConfidence
		if res.MaliciousDetections > 0 {
			extra := float64(res.MaliciousDetections) * 10
			if extra > 50 {
				extra = 50
			}
			score += extra
		}
		if res.AbuseConfidence > 0 {
			out.Reasons = append(out.Reasons, fmt.Sprintf("%s abuse confidence %.0f", p.Name(), res.AbuseConfidence))
		}
		if res.MaliciousDetections > 0 {
			out.Reasons = append(out.Reasons, fmt.Sprintf("%s flagged malicious by %d engines", p.Name(), res.MaliciousDetections))
		}
	}
	if len(sources) > 0 {
		out.Sources = sources
	}

	if !gotData {
		out.Level = model.LevelUnknown
		out.Reasons = append(out.Reasons, "No threat data")
		return out
	}
	if score > 100 {
		score = 100
	}
	out.Score = score
	out.Level = model.LevelFromScore(score)
	if len(out.Reasons) == 0 {
		out.Reasons = []string{"No reputation signals"}
	}
	return out
}
