package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

func TestDistance(t *testing.T) {
	a := entity.Location{Latitude: 28.61, Longitude: 77.20}
	assert.Equal(t, 0.0, entity.Distance(a, a))
	// 纬度差0.01度约1112米
	b := entity.Location{Latitude: 28.62, Longitude: 77.20}
	assert.InDelta(t, 1112, entity.Distance(a, b), 2)
	assert.InDelta(t, entity.Distance(a, b), entity.Distance(b, a), 1e-9)
}

func TestNearestIndex(t *testing.T) {
	route := []entity.Location{
		{Latitude: 28.60, Longitude: 77.20},
		{Latitude: 28.61, Longitude: 77.20},
		{Latitude: 28.62, Longitude: 77.20},
	}
	assert.Equal(t, -1, entity.NearestIndex(nil, route[0]))
	assert.Equal(t, 0, entity.NearestIndex(route, entity.Location{Latitude: 28.59, Longitude: 77.20}))
	assert.Equal(t, 1, entity.NearestIndex(route, entity.Location{Latitude: 28.612, Longitude: 77.201}))
	assert.Equal(t, 2, entity.NearestIndex(route, entity.Location{Latitude: 28.70, Longitude: 77.20}))
}

func TestLightStateAndLocationValid(t *testing.T) {
	assert.True(t, entity.LightGreen.Valid())
	assert.False(t, entity.LightState("blue").Valid())
	assert.True(t, entity.Location{Latitude: 28.61, Longitude: 77.20}.Valid())
	assert.False(t, entity.Location{Latitude: 91, Longitude: 0}.Valid())
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := entity.Corridor{AffectedSignals: []string{"A", "B"}}
	cp := c.Clone()
	cp.AffectedSignals[0] = "X"
	assert.Equal(t, "A", c.AffectedSignals[0])

	s := entity.Signal{EmergencyVehicles: []string{"V1"}}
	sc := s.Clone()
	sc.EmergencyVehicles[0] = "V2"
	assert.Equal(t, "V1", s.EmergencyVehicles[0])
}

func TestLeaseExpiredBoundary(t *testing.T) {
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	l := entity.Lease{ExpiresAt: at}
	assert.False(t, l.Expired(at.Add(-time.Nanosecond)))
	assert.True(t, l.Expired(at))
	assert.True(t, l.Expired(at.Add(time.Second)))
}
