// Package logger provides the structured logging interface used across igfeed.
//
// It wraps zerolog. Components receive a Logger at construction and fall back to
// GetLogger() when given nil:
//
//	log := logger.GetLogger().WithField("component", "establisher")
//	log.InfoWithFields("login submitted", map[string]interface{}{"user": name})
//
// Tests use NewTestLogger to assert on captured entries, or NewNopLogger to silence output.
package logger
