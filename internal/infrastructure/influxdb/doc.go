// Package influxdb exports Tether topic telemetry to InfluxDB v2.
//
// The `tether topics` command can push a sample per topic at each refresh,
// so message rates across a installation can be graphed over time:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTopicSample(influxdb.TopicSample{
//	    Topic: "brain/studio/colours", Role: "brain", ID: "studio", Plug: "colours",
//	    Messages: 120, Rate: 2.0,
//	})
//
// Writes are batched (batch_size points or every flush_interval seconds).
package influxdb
