package anpr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"garage-monitor/internal/metrics"
)

// CameraClient fetches raw frames from an ESP32 camera node.
type CameraClient struct {
	client  *http.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewCameraClient(timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *CameraClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CameraClient{
		client:  &http.Client{Timeout: timeout},
		metrics: m,
		log:     log,
	}
}

// Fetch issues a bounded GET against {endpoint}/capture and decodes the
// payload as a color bitmap. The returned Mat is owned by the caller.
// Timeouts, network errors, non-200 responses and undecodable payloads
// all surface as an error; the caller logs and treats the frame as
// absent.
func (c *CameraClient) Fetch(ctx context.Context, endpoint string) (gocv.Mat, error) {
	url := endpoint + "/capture"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.metrics.FetchFailures.Add(1)
		return gocv.Mat{}, fmt.Errorf("build capture request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.FetchFailures.Add(1)
		return gocv.Mat{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchFailures.Add(1)
		return gocv.Mat{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.FetchFailures.Add(1)
		return gocv.Mat{}, fmt.Errorf("read capture body: %w", err)
	}

	frame, err := gocv.IMDecode(body, gocv.IMReadColor)
	if err != nil || frame.Empty() {
		c.metrics.FetchFailures.Add(1)
		if err == nil {
			err = fmt.Errorf("empty decode")
		}
		return gocv.Mat{}, fmt.Errorf("decode capture payload: %w", err)
	}

	c.metrics.FramesFetched.Add(1)
	c.log.Debug().
		Str("endpoint", endpoint).
		Int("width", frame.Cols()).
		Int("height", frame.Rows()).
		Msg("fetched camera frame")
	return frame, nil
}
