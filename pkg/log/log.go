// Package log provides the leveled, structured logger used across clusterflow. It wraps
// logrus so callers depend on a small interface rather than on logrus itself.
package log

// fallback serves code that was not handed a logger, such as a command built without options.
var fallback = New()

// Default returns the logger used when none was configured. Prefer passing a Logger explicitly;
// tests that share the default logger can interfere with each other.
func Default() Logger {
	return fallback
}
