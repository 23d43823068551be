// Package ingest fetches NWS feeds and drives the record schedule. The
// parsing itself lives in internal/nws; this package owns the network,
// retry, and persistence policy around it.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ryanp54/forecastcheck/internal/httputil"
	"github.com/ryanp54/forecastcheck/internal/metrics"
	"github.com/ryanp54/forecastcheck/internal/nws"
)

const defaultBaseURL = "https://api.weather.gov"

// instantZLayout renders query-parameter instants the way the NWS API
// expects them: seconds precision with a Z suffix.
const instantZLayout = "2006-01-02T15:04:05Z"

// Client fetches forecast grids and station observations from the NWS API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an NWS API client. userAgent should identify the
// deployment and a contact address, e.g.
// "site:weather2019.appspot.com; contact-email:ryanp54@yahoo.com".
func NewClient(userAgent string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  httputil.NewClient(userAgent),
	}
}

type gridpointResponse struct {
	Properties nws.GridFeed `json:"properties"`
}

type observationsResponse struct {
	Features []nws.ObservationFeature `json:"features"`
}

// FetchResult carries transport-level details of a fetch for auditing.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
}

// FetchGridpoint retrieves the raw forecast grid for a WFO gridpoint such
// as "OAX/76,56". Returns the parsed properties and the raw body for
// archiving.
func (c *Client) FetchGridpoint(gridpoint string) (*nws.GridFeed, []byte, *FetchResult, error) {
	body, result, err := c.get(fmt.Sprintf("%s/gridpoints/%s", c.baseURL, gridpoint), "gridpoints")
	if err != nil {
		return nil, nil, result, err
	}

	var data gridpointResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, body, result, fmt.Errorf("unmarshal gridpoint: %w", err)
	}
	return &data.Properties, body, result, nil
}

// FetchObservations retrieves a station's observations in [start, end].
func (c *Client) FetchObservations(station string, start, end time.Time) ([]nws.ObservationFeature, []byte, *FetchResult, error) {
	url := fmt.Sprintf("%s/stations/%s/observations?start=%s&end=%s",
		c.baseURL, station,
		start.UTC().Format(instantZLayout),
		end.UTC().Format(instantZLayout))

	body, result, err := c.get(url, "observations")
	if err != nil {
		return nil, nil, result, err
	}

	var data observationsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, body, result, fmt.Errorf("unmarshal observations: %w", err)
	}
	return data.Features, body, result, nil
}

func (c *Client) get(url, endpoint string) ([]byte, *FetchResult, error) {
	var body []byte
	result := &FetchResult{}

	operation := func() error {
		started := time.Now()
		resp, err := c.client.Get(url)
		if err != nil {
			metrics.NWSAPICalls.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		metrics.NWSAPICalls.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.NWSAPILatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
		result.HTTPStatus = resp.StatusCode

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			result.ResponseSize = len(b)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		result.ResponseSize = len(body)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, result, err
	}
	return body, result, nil
}
