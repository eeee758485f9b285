package entity

import (
	"time"

	"github.com/google/uuid"
)

// EventType 实时事件类型
type EventType string

const (
	EventCorridorCreated EventType = "corridor.created"
	EventCorridorUpdated EventType = "corridor.updated"
	EventCorridorCleared EventType = "corridor.cleared"
	EventLeaseGranted    EventType = "lease.granted"
	EventLeaseReleased   EventType = "lease.released"
	EventLeaseExpired    EventType = "lease.expired"
)

// Event 推送给实时看板的状态变化
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	VehicleID string    `json:"vehicleId,omitempty"`
	SignalID  string    `json:"signalId,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent 创建带唯一ID的事件
func NewEvent(t EventType, vehicleID, signalID string, at time.Time, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		VehicleID: vehicleID,
		SignalID:  signalID,
		Time:      at,
		Data:      data,
	}
}

// 事件接收方，Publish不得阻塞
type IEventSink interface {
	Publish(e Event)
}

// NopSink 丢弃所有事件
type NopSink struct{}

func (NopSink) Publish(Event) {}
