package entity

import "math"

const earthRadius = 6371000.0 // 米

// Distance 两点间球面距离（haversine），单位米
func Distance(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NearestIndex 返回路线上距loc最近的坐标序号，路线为空时返回-1
// 距离相同时取序号较小者
func NearestIndex(coords []Location, loc Location) int {
	best, bestD := -1, math.Inf(1)
	for i, c := range coords {
		if d := Distance(c, loc); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
