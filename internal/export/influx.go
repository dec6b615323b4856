// Package export mirrors stored readings into external time-series stores.
package export

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/triaxial/triaxial/internal/database"
)

const measurementName = "reading"

type ReadingExporter interface {
	Export(ctx context.Context, readings ...*database.Reading) error
	Close()
}

type InfluxExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxExporter(url, token, org, bucket string) *InfluxExporter {
	client := influxdb2.NewClient(url, token)
	return &InfluxExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

func (e *InfluxExporter) Export(ctx context.Context, readings ...*database.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, readingPoint(r))
	}
	if err := e.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write %d points to influx: %w", len(points), err)
	}
	return nil
}

func (e *InfluxExporter) Close() {
	e.client.Close()
}

func readingPoint(r *database.Reading) *write.Point {
	return influxdb2.NewPoint(
		measurementName,
		map[string]string{"device_id": r.DeviceId},
		map[string]interface{}{"x": r.X, "y": r.Y, "z": r.Z},
		r.Timestamp,
	)
}
