package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"resty.dev/v3"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

var peerLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "peer_request_latency",
		Help:    "Histogram of cross-account API request latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	},
	[]string{"method", "path", "status_code"},
)

// PeerClient appelle l'API de fédération d'une autre stack de compte.
type PeerClient struct {
	client *resty.Client
}

func NewPeerClient(timeout time.Duration) *PeerClient {
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         timeout,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	})
	client.SetTimeout(timeout)
	client.AddResponseMiddleware(metricMiddleware)
	return &PeerClient{client: client}
}

func (c *PeerClient) Close() error {
	return c.client.Close()
}

// Call renvoie le corps brut de la réponse. Un statut non-2xx est une TransportError,
// le corps n'est alors jamais interprété.
func (c *PeerClient) Call(ctx context.Context, originURL, path, bearerToken, method string, body []byte) ([]byte, error) {
	target := strings.TrimRight(originURL, "/") + path

	req := c.client.R().
		WithContext(ctx).
		SetAuthToken(bearerToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return nil, &domain.TransportError{Origin: originURL, Path: path, Err: err}
	}
	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, &domain.TransportError{Origin: originURL, Path: path, Status: res.StatusCode()}
	}
	return res.Bytes(), nil
}

func metricMiddleware(_ *resty.Client, response *resty.Response) error {
	reqURL, err := url.Parse(response.Request.URL)
	if err != nil {
		return err
	}

	peerLatency.WithLabelValues(
		response.Request.Method,
		reqURL.Path,
		fmt.Sprintf("%d", response.StatusCode()),
	).Observe(response.Duration().Seconds())

	return nil
}
