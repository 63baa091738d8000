package geo

import (
	"regexp"
	"strconv"
)

// coordPairRe matches a strict "lat, lng" numeric pair. Anything looser
// (trailing text, missing comma) is treated as a place name and geocoded.
var coordPairRe = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParseCoordPair parses a literal coordinate pair, bypassing geocoding.
// ok is false when the input does not match the strict pattern or the
// values are outside valid geographic ranges.
func ParseCoordPair(s string) (lat, lng float64, ok bool) {
	m := coordPairRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}
