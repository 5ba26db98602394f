package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"hivetrap/internal/config"
	"hivetrap/internal/model"
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
}

var privateRecord = model.GeoIPRecord{
	Country:     "Private",
	City:        "Local Network",
	ISP:         "Internal",
	CountryCode: model.CountryCodeLocal,
	Risk:        "LOW",
}

var unknownRecord = model.GeoIPRecord{
	Country:     "Unknown",
	City:        "Unknown",
	ISP:         "Unknown",
	CountryCode: "UNK",
}

// staticGeoIP holds curated records for addresses seen repeatedly in the
// wild. Exact matches win; the first three octets act as a range fallback.
var staticGeoIP = map[string]model.GeoIPRecord{
	"185.165.190.100": {Country: "Russia", City: "Moscow", ISP: "Unknown Hosting", CountryCode: "RU", Risk: "HIGH"},
	"45.95.147.200":   {Country: "Netherlands", City: "Amsterdam", ISP: "Alsycon B.V.", CountryCode: "NL", Risk: "HIGH"},
	"91.218.114.50":   {Country: "Russia", City: "Moscow", ISP: "Selectel", CountryCode: "RU", Risk: "HIGH"},
	"80.94.92.100":    {Country: "Bulgaria", City: "Sofia", ISP: "Vega BG", CountryCode: "BG", Risk: "HIGH"},
	"8.8.8.8":         {Country: "United States", City: "Mountain View", ISP: "Google LLC", CountryCode: "US", Risk: "LOW"},
	"1.1.1.1":         {Country: "United States", City: "Los Angeles", ISP: "Cloudflare", CountryCode: "US", Risk: "LOW"},
	"52.95.128.100":   {Country: "United States", City: "Ashburn", ISP: "Amazon AWS", CountryCode: "US", Risk: "LOW"},
	"13.107.246.100":  {Country: "United States", City: "Redmond", ISP: "Microsoft Azure", CountryCode: "US", Risk: "LOW"},
	"123.123.123.123": {Country: "China", City: "Beijing", ISP: "China Telecom", CountryCode: "CN", Risk: "HIGH"},
	"198.51.100.1":    {Country: "Germany", City: "Berlin", ISP: "Deutsche Telekom", CountryCode: "DE", Risk: "MEDIUM"},
	"203.0.113.1":     {Country: "Australia", City: "Sydney", ISP: "Telstra", CountryCode: "AU", Risk: "MEDIUM"},
}

// GeoIPResolver maps an address to geographic metadata. Resolution order:
// exact static match, private range, /24 prefix match, external lookup,
// unknown. Every step degrades; Resolve never fails.
type GeoIPResolver struct {
	static map[string]model.GeoIPRecord
	apiURL string
	client *http.Client
	logger *slog.Logger
}

func NewGeoIPResolver(cfg config.GeoIPConfig, logger *slog.Logger) *GeoIPResolver {
	return &GeoIPResolver{
		static: staticGeoIP,
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (g *GeoIPResolver) Resolve(ctx context.Context, ip string) model.GeoIPRecord {
	if rec, ok := g.static[ip]; ok {
		return rec
	}
	if addr, err := netip.ParseAddr(ip); err == nil {
		for _, p := range privateRanges {
			if p.Contains(addr) {
				return privateRecord
			}
		}
	}
	if rec, ok := g.prefixMatch(ip); ok {
		return rec
	}
	if rec, ok := g.external(ctx, ip); ok {
		return rec
	}
	return unknownRecord
}

func (g *GeoIPResolver) prefixMatch(ip string) (model.GeoIPRecord, bool) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return model.GeoIPRecord{}, false
	}
	prefix := strings.Join(parts[:3], ".") + "."
	for known, rec := range g.static {
		if strings.HasPrefix(known, prefix) {
			rec.City = "Unknown"
			rec.ISP = "Unknown"
			return rec, true
		}
	}
	return model.GeoIPRecord{}, false
}

func (g *GeoIPResolver) external(ctx context.Context, ip string) (model.GeoIPRecord, bool) {
	if g.apiURL == "" {
		return model.GeoIPRecord{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", g.apiURL, ip), nil)
	if err != nil {
		return model.GeoIPRecord{}, false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("geoip lookup failed", "ip", ip, "err", err)
		}
		return model.GeoIPRecord{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.GeoIPRecord{}, false
	}
	var body struct {
		CountryName string `json:"country_name"`
		City        string `json:"city"`
		Region      string `json:"region"`
		Org         string `json:"org"`
		CountryCode string `json:"country_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if g.logger != nil {
			g.logger.Warn("geoip response parse failed", "ip", ip, "err", err)
		}
		return model.GeoIPRecord{}, false
	}
	if body.CountryName == "" && body.CountryCode == "" {
		return model.GeoIPRecord{}, false
	}
	rec := model.GeoIPRecord{
		Country:     orUnknown(body.CountryName),
		City:        orUnknown(body.City),
		Region:      body.Region,
		ISP:         orUnknown(body.Org),
		CountryCode: orUnknown(body.CountryCode),
	}
	return rec, true
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
