// Package devices lists the devices on the protected network.
//
// There is no discovery subsystem yet. StaticInventory serves a fixed demo
// list so the dashboard has something to show.
package devices

import (
	"time"

	"github.com/pishield/pishield/pkg/models"
)

// Inventory returns the known devices.
type Inventory interface {
	List() []models.Device
	Count() int
}

type staticDevice struct {
	device  models.Device
	seenAgo time.Duration
}

var demoDevices = []staticDevice{
	{models.Device{ID: "1", Name: "Router", IP: "192.168.1.1", MAC: "00:1A:2B:3C:4D:5E", Type: "network", Status: "online"}, 0},
	{models.Device{ID: "2", Name: "Smart TV", IP: "192.168.1.101", MAC: "AA:BB:CC:DD:EE:FF", Type: "iot", Status: "online"}, 0},
	{models.Device{ID: "3", Name: "Laptop", IP: "192.168.1.102", MAC: "11:22:33:44:55:66", Type: "computer", Status: "online"}, 0},
	{models.Device{ID: "4", Name: "Smartphone", IP: "192.168.1.103", MAC: "AA:BB:CC:11:22:33", Type: "mobile", Status: "online"}, 0},
	{models.Device{ID: "5", Name: "Smart Speaker", IP: "192.168.1.104", MAC: "FF:EE:DD:CC:BB:AA", Type: "iot", Status: "offline"}, time.Hour},
}

// StaticInventory is a stub inventory with a fixed device list.
type StaticInventory struct {
	devices []staticDevice
	now     func() time.Time
}

// NewStaticInventory returns the demo inventory.
func NewStaticInventory() *StaticInventory {
	return &StaticInventory{devices: demoDevices, now: time.Now}
}

// List returns the devices with lastSeen relative to the current time.
func (s *StaticInventory) List() []models.Device {
	now := s.now().UTC()
	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		dev := d.device
		dev.LastSeen = now.Add(-d.seenAgo).Format(time.RFC3339)
		out = append(out, dev)
	}
	return out
}

func (s *StaticInventory) Count() int {
	return len(s.devices)
}
