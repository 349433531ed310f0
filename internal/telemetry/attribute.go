package telemetry

import "go.opentelemetry.io/otel/attribute"

// IdAttributes renders a node's logical UUID as tracing resource
// attributes under prefix.
func IdAttributes(prefix string, nodeID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".uuid", nodeID),
	}
}
