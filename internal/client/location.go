package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultLocationURL is the geo-IP lookup used for the marquee's top bar.
const DefaultLocationURL = "https://ipinfo.io/json"

// UnknownLocation is shown when the lookup fails or names nothing.
const UnknownLocation = "Location unknown"

type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// String renders "City, Country", either part alone, or UnknownLocation.
func (l Location) String() string {
	city, country := strings.TrimSpace(l.City), strings.TrimSpace(l.Country)
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	case country != "":
		return country
	}
	return UnknownLocation
}

// Locator looks up the visitor's approximate location from their public IP.
type Locator struct {
	endpoint string
	http     *http.Client
}

func NewLocator(endpoint string) (*Locator, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse location url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse location url: unsupported scheme %q", u.Scheme)
	}
	return &Locator{endpoint: u.String(), http: &http.Client{Timeout: 5 * time.Second}}, nil
}

func (l *Locator) Locate(ctx context.Context) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("locate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Location{}, fmt.Errorf("locate: %w", &APIError{Status: resp.StatusCode})
	}

	var loc Location
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&loc); err != nil {
		return Location{}, fmt.Errorf("locate: decode response: %w", err)
	}
	return loc, nil
}
