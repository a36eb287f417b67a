package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// Jurisdictions the exchange will not accept members from. Kalshi is a
// CFTC-regulated US exchange, so the list is the sanctioned set rather
// than a US block.
var BlockedCountries = map[string]string{
	"BY": "Belarus",
	"CU": "Cuba",
	"IR": "Iran",
	"KP": "North Korea",
	"RU": "Russia",
	"SY": "Syria",
	"VE": "Venezuela",
	"MM": "Myanmar",
	"SD": "Sudan",
	"IQ": "Iraq",
	"LY": "Libya",
	"SO": "Somalia",
	"YE": "Yemen",
}

// GeoBlocker checks if trading is allowed based on jurisdiction.
type GeoBlocker struct {
	httpClient  *http.Client
	mu          sync.RWMutex
	cachedGeo   *GeoInfo
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// GeoInfo contains geographic information about an IP.
type GeoInfo struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"regionName"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
	Timezone    string `json:"timezone"`
}

// NewGeoBlocker creates a new geo blocker.
func NewGeoBlocker() *GeoBlocker {
	return &GeoBlocker{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cacheTTL: 5 * time.Minute,
	}
}

// CheckAllowed checks if trading is allowed from the current location.
func (g *GeoBlocker) CheckAllowed(ctx context.Context) error {
	geo, err := g.GetGeoInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get geo info: %w", err)
	}

	if name, blocked := BlockedCountries[geo.CountryCode]; blocked {
		return fmt.Errorf("trading not allowed from %s (%s)", name, geo.CountryCode)
	}

	return nil
}

// GetGeoInfo returns geographic information for the current IP.
func (g *GeoBlocker) GetGeoInfo(ctx context.Context) (*GeoInfo, error) {
	g.mu.RLock()
	if g.cachedGeo != nil && time.Now().Before(g.cacheExpiry) {
		geo := g.cachedGeo
		g.mu.RUnlock()
		return geo, nil
	}
	g.mu.RUnlock()

	geo, err := g.fetchGeoInfoForIP(ctx, "")
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cachedGeo = geo
	g.cacheExpiry = time.Now().Add(g.cacheTTL)
	g.mu.Unlock()

	return geo, nil
}

// CheckIP checks if a specific IP is allowed.
func (g *GeoBlocker) CheckIP(ctx context.Context, ip string) error {
	geo, err := g.fetchGeoInfoForIP(ctx, ip)
	if err != nil {
		return fmt.Errorf("failed to get geo info for IP: %w", err)
	}

	if name, blocked := BlockedCountries[geo.CountryCode]; blocked {
		return fmt.Errorf("IP %s is in blocked jurisdiction: %s (%s)", ip, name, geo.CountryCode)
	}

	return nil
}

// IsBlocked returns true if the country code is blocked.
func IsBlocked(countryCode string) bool {
	_, blocked := BlockedCountries[countryCode]
	return blocked
}

func (g *GeoBlocker) fetchGeoInfoForIP(ctx context.Context, ip string) (*GeoInfo, error) {
	// ip-api.com is free without a key at 45 requests/minute.
	url := "http://ip-api.com/json/"
	if ip != "" {
		url += ip
	}
	url += "?fields=status,message,country,countryCode,regionName,city,isp,timezone,query"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
		Query   string `json:"query"`
		GeoInfo
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("geo lookup failed: %s", result.Message)
	}

	geo := &result.GeoInfo
	if geo.IP == "" {
		geo.IP = result.Query
	}

	return geo, nil
}

// GetPublicIP returns the current public IP address.
func GetPublicIP(ctx context.Context) (string, error) {
	services := []string{
		"https://api.ipify.org",
		"https://icanhazip.com",
		"https://ifconfig.me/ip",
	}

	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		req, err := http.NewRequestWithContext(ctx, "GET", svc, nil)
		if err != nil {
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			continue
		}

		ip := string(body)
		if net.ParseIP(ip) != nil {
			return ip, nil
		}
	}

	return "", fmt.Errorf("failed to get public IP from all services")
}

// JurisdictionCheck is the result of a full jurisdiction check.
type JurisdictionCheck struct {
	Allowed     bool   `json:"allowed"`
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Reason      string `json:"reason,omitempty"`
	CheckedAt   string `json:"checked_at"`
}

// PerformJurisdictionCheck runs a full jurisdiction check.
func (g *GeoBlocker) PerformJurisdictionCheck(ctx context.Context) (*JurisdictionCheck, error) {
	check := &JurisdictionCheck{
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}

	geo, err := g.GetGeoInfo(ctx)
	if err != nil {
		check.Allowed = false
		check.Reason = fmt.Sprintf("Failed to determine location: %v", err)
		return check, nil
	}

	check.IP = geo.IP
	check.Country = geo.Country
	check.CountryCode = geo.CountryCode

	if name, blocked := BlockedCountries[geo.CountryCode]; blocked {
		check.Allowed = false
		check.Reason = fmt.Sprintf("Trading is not permitted from %s per exchange terms", name)
	} else {
		check.Allowed = true
	}

	return check, nil
}
