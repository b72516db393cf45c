package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	AddressComponents []googleComponent `json:"address_components"`
	FormattedAddress  string            `json:"formatted_address"`
	PartialMatch      bool              `json:"partial_match"`
	Geometry          struct {
		LocationType string `json:"location_type"`
	} `json:"geometry"`
}

type googleComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// geocodeGoogle runs a single query against Google and parses the address
// components into a Result.
func (g *geocoder) geocodeGoogle(ctx context.Context, query string) (*Result, error) {
	if g.apiKey == "" {
		return nil, resilience.NewPermanentError(eris.New("geocode: google api key not configured"))
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address": {query},
		"key":     {g.apiKey},
	}

	reqURL := g.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: google returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if googleResp.Status != "OK" || len(googleResp.Results) == 0 {
		return &Result{Matched: false}, nil
	}

	return parseGoogleResult(googleResp.Results[0]), nil
}

// parseGoogleResult flattens Google's component list into our Result.
func parseGoogleResult(r googleResult) *Result {
	var streetNumber, route, zipSuffix string
	out := &Result{
		Formatted:    r.FormattedAddress,
		LocationType: r.Geometry.LocationType,
		PartialMatch: r.PartialMatch,
		Matched:      true,
	}

	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "street_number":
				streetNumber = c.LongName
			case "route":
				route = c.LongName
			case "locality":
				out.City = c.LongName
			case "administrative_area_level_1":
				out.State = c.ShortName
			case "postal_code":
				out.Zip = c.LongName
			case "postal_code_suffix":
				zipSuffix = c.LongName
			}
		}
	}

	switch {
	case streetNumber != "" && route != "":
		out.StreetAddress = streetNumber + " " + route
	case route != "":
		out.StreetAddress = route
	}
	if out.Zip != "" && zipSuffix != "" {
		out.Zip = out.Zip + "-" + zipSuffix
	}

	// A match with neither a ZIP nor a city/state pair is useless downstream.
	if out.Zip == "" && (out.City == "" || out.State == "") {
		return &Result{Matched: false}
	}

	return out
}
