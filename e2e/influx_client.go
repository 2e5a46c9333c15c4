package e2e

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient is a small helper around the official InfluxDB v2 client
// used by the E2E tests to check what the solver wrote.
type InfluxClient struct {
	org    string
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

// NewInfluxClient creates a new client for the given parameters. It assumes
// the server is already running and reachable.
func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{org: org, bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// FieldValues returns the values of one field of a measurement written in
// the last window, keyed by run_id.
func (c *InfluxClient) FieldValues(ctx context.Context, measurement, field string, window time.Duration) (map[string]any, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-%s) |> filter(fn: (r) => r._measurement == %q and r._field == %q)`,
		c.bucket, window, measurement, field)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	out := map[string]any{}
	for res.Next() {
		rec := res.Record()
		id, _ := rec.ValueByKey("run_id").(string)
		out[id] = rec.Value()
	}
	return out, res.Err()
}

// WaitFor polls FieldValues until run_id appears or ctx ends.
func (c *InfluxClient) WaitFor(ctx context.Context, measurement, field, runID string) (any, error) {
	for {
		vals, err := c.FieldValues(ctx, measurement, field, 10*time.Minute)
		if err == nil {
			if v, ok := vals[runID]; ok {
				return v, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s.%s for %s: %w (last error: %v)", measurement, field, runID, ctx.Err(), err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Close releases the underlying client resources.
func (c *InfluxClient) Close() { c.client.Close() }
