// Package logging configures log/slog for Curtain Lights.
//
// Every entry carries service and version attributes. Components derive
// child loggers with Component:
//
//	log := logging.New(cfg.Logging, version)
//	engineLog := log.Component("engine")
//	engineLog.Info("celebration accepted", "tenant_id", req.TenantID, "tier", tier.Name)
//
// Attributes whose keys look like credentials (api_key, token, secret,
// password, authorization) are written as [REDACTED], so a vendor key or
// bearer token passed by mistake never reaches the log stream.
//
// Configuration:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr or a file path
package logging
