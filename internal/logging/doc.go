// Package logging provides the structured logger shared by the client, the
// session store and the transport.
//
// It wraps log/slog with a fixed set of default fields (service, version) and
// level/format selection from configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// Never log bearer tokens or passwords. Identify sessions by user id and role.
package logging
