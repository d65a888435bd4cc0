// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the two backend pools, the initial
// primary assignment, failover thresholds and timeouts, and the optional
// active probe settings.
package config
