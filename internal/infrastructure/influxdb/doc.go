// Package influxdb exports Curtain Lights activity as time-series metrics.
//
// Two measurements are written:
//   - device_commands: one point per vendor command, tagged with outcome
//   - celebrations: one point per finished celebration, tagged with tier
//
// The integration is optional. Connect returns ErrDisabled when the
// influxdb section of config.yaml is switched off and callers carry on
// without time-series output.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand(influxdb.CommandSample{DeviceID: "H6199-01", Command: "color", Outcome: "ok"})
package influxdb
