// Package geo provides the projection, centroid, containment and distance
// primitives used by the allocation and access pipelines.
package geo

// Access flag values.
const (
	NoAccess  = 0
	HasAccess = 1
)

// DefaultAccessThresholdMiles is the walking-distance threshold used when none
// is configured.
const DefaultAccessThresholdMiles = 1.0

// AccessFlag classifies a distance against a threshold.
// Rules:
//   - HasAccess: distance <= threshold (the boundary is inclusive)
//   - NoAccess: distance > threshold
func AccessFlag(distance, threshold float64) int {
	if distance <= threshold {
		return HasAccess
	}
	return NoAccess
}
