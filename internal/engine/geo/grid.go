package geo

import "math"

// metersPerLatDegree is the standard approximation of one degree of
// latitude. Longitude degrees shrink with cos(lat) and are corrected
// per sampled row, not once at the center.
const metersPerLatDegree = 111320.0

// Point is a geographic sample coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// GenerateGridPoints samples a circular area of radiusM meters around the
// center with stepM meters of spacing. The result is deterministic and
// order-stable: offsets scan i (latitude) then j (longitude), each in
// [-numSteps, numSteps], keeping only points whose planar offset distance
// is within the radius. Other components depend on the exact point count
// for a given input, so the accept/reject rule must not change.
func GenerateGridPoints(centerLat, centerLng float64, radiusM, stepM int) []Point {
	if radiusM <= 0 || stepM <= 0 {
		return nil
	}

	latStepDeg := float64(stepM) / metersPerLatDegree
	numSteps := int(math.Ceil(float64(radiusM) / float64(stepM)))

	var points []Point
	for i := -numSteps; i <= numSteps; i++ {
		for j := -numSteps; j <= numSteps; j++ {
			xOff := float64(i * stepM)
			yOff := float64(j * stepM)
			if math.Sqrt(xOff*xOff+yOff*yOff) > float64(radiusM) {
				continue
			}

			lat := centerLat + float64(i)*latStepDeg
			// Correct for Mercator distortion at the sampled row's
			// latitude so spacing stays metrically uniform.
			lngStepDeg := float64(stepM) / (metersPerLatDegree * math.Cos(lat*math.Pi/180.0))
			points = append(points, Point{
				Lat: lat,
				Lng: centerLng + float64(j)*lngStepDeg,
			})
		}
	}

	return points
}

// AssumedCallsPerPoint is the paging depth the scraper uses per sample
// point, used to preview upstream call volume before starting a run.
const AssumedCallsPerPoint = 3

// EstimateRequests returns the worst-case number of upstream search calls
// for a grid of pointCount points and the given number of keywords.
func EstimateRequests(pointCount, keywords int) int {
	if pointCount <= 0 || keywords <= 0 {
		return 0
	}
	return pointCount * keywords * AssumedCallsPerPoint
}
