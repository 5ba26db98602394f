package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProviderResult carries the reputation signals a provider can contribute.
// Not every provider fills every field.
type ProviderResult struct {
	AbuseConfidence     float64        `json:"abuse_confidence,omitempty"`
	MaliciousDetections int            `json:"malicious_detections,omitempty"`
	Raw                 map[string]any `json:"raw,omitempty"`
}

// Provider is one external (or fixture) reputation source.
type Provider interface {
	Name() string
	Check(ctx context.Context, ip string) (ProviderResult, error)
}

type AbuseIPDB struct {
	key    string
	client *http.Client
}

func NewAbuseIPDB(key string, timeout time.Duration) *AbuseIPDB {
	return &AbuseIPDB{key: key, client: &http.Client{Timeout: timeout}}
}

func (a *AbuseIPDB) Name() string { return "abuseipdb" }

func (a *AbuseIPDB) Check(ctx context.Context, ip string) (ProviderResult, error) {
	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", "90")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.abuseipdb.com/api/v2/check?"+q.Encode(), nil)
	if err != nil {
		return ProviderResult{}, err
	}
	req.Header.Set("Key", a.key)
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return ProviderResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderResult{}, fmt.Errorf("abuseipdb status %d", resp.StatusCode)
	}
	var body struct {
		Data struct {
			AbuseConfidenceScore float64 `json:"abuseConfidenceScore"`
			TotalReports         int     `json:"totalReports"`
			CountryCode          string  `json:"countryCode"`
			ISP                  string  `json:"isp"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ProviderResult{}, err
	}
	return ProviderResult{
		AbuseConfidence: body.Data.AbuseConfidenceScore,
		Raw: map[string]any{
			"abuse_confidence": body.Data.AbuseConfidenceScore,
			"total_reports":    body.Data.TotalReports,
			"country":          body.Data.CountryCode,
			"isp":              body.Data.ISP,
		},
	}, nil
}

type VirusTotal struct {
	key    string
	client *http.Client
}

func NewVirusTotal(key string, timeout time.Duration) *VirusTotal {
	return &VirusTotal{key: key, client: &http.Client{Timeout: timeout}}
}

func (v *VirusTotal) Name() string { return "virustotal" }

func (v *VirusTotal) Check(ctx context.Context, ip string) (ProviderResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.virustotal.com/api/v3/ip_addresses/"+url.PathEscape(ip), nil)
	if err != nil {
		return ProviderResult{}, err
	}
	req.Header.Set("x-apikey", v.key)
	resp, err := v.client.Do(req)
	if err != nil {
		return ProviderResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderResult{}, fmt.Errorf("virustotal status %d", resp.StatusCode)
	}
	var body struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
					Undetected int `json:"undetected"`
				} `json:"last_analysis_stats"`
				Reputation int    `json:"reputation"`
				Country    string `json:"country"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ProviderResult{}, err
	}
	stats := body.Data.Attributes.LastAnalysisStats
	return ProviderResult{
		MaliciousDetections: stats.Malicious,
		Raw: map[string]any{
			"malicious":  stats.Malicious,
			"suspicious": stats.Suspicious,
			"harmless":   stats.Harmless,
			"undetected": stats.Undetected,
			"reputation": body.Data.Attributes.Reputation,
			"country":    body.Data.Attributes.Country,
		},
	}, nil
}

// FixtureProvider serves canned results, standing in for the live services
// in tests and offline deployments.
type FixtureProvider struct {
	name    string
	results map[string]ProviderResult
}

func NewFixtureProvider(name string, results map[string]ProviderResult) *FixtureProvider {
	return &FixtureProvider{name: name, results: results}
}

func (f *FixtureProvider) Name() string { return f.name }

func (f *FixtureProvider) Check(_ context.Context, ip string) (ProviderResult, error) {
	res, ok := f.results[ip]
	if !ok {
		return ProviderResult{}, fmt.Errorf("no fixture for %s", ip)
	}
	return res, nil
}
