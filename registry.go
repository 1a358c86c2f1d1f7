package depsync

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// DeviceRegistry is the in-memory mirror of enrolled devices keyed by serial
// number. Serial numbers are unique.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]*Device)}
}

// Find returns the device registered under serialNumber.
func (r *DeviceRegistry) Find(serialNumber string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[strings.TrimSpace(serialNumber)]
	return dev, ok
}

// InsertIfAbsent returns the existing device unchanged, or creates one from
// attrs. The second result reports whether a device was created.
func (r *DeviceRegistry) InsertIfAbsent(serialNumber string, attrs DeviceAttributes) (*Device, bool) {
	serialNumber = strings.TrimSpace(serialNumber)
	r.mu.Lock()
	defer r.mu.Unlock()
	if dev, ok := r.devices[serialNumber]; ok {
		return dev, false
	}
	dev := NewDevice(serialNumber, attrs)
	r.devices[serialNumber] = dev
	return dev, true
}

// Insert always creates a fresh device from attrs. An existing entry with the
// same serial number is replaced, which drops attributes only known locally.
func (r *DeviceRegistry) Insert(serialNumber string, attrs DeviceAttributes) *Device {
	serialNumber = strings.TrimSpace(serialNumber)
	dev := NewDevice(serialNumber, attrs)
	r.mu.Lock()
	_, existed := r.devices[serialNumber]
	r.devices[serialNumber] = dev
	r.mu.Unlock()
	if existed {
		log.Warn().Str("serial", serialNumber).Msg("depsync: added device already registered, replacing entry")
	}
	return dev
}

// Remove deletes the device and reports whether it was present.
func (r *DeviceRegistry) Remove(serialNumber string) bool {
	serialNumber = strings.TrimSpace(serialNumber)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[serialNumber]; !ok {
		return false
	}
	delete(r.devices, serialNumber)
	return true
}

// Update merges attrs into the registered device. It reports false when the
// serial number is unknown.
func (r *DeviceRegistry) Update(serialNumber string, attrs DeviceAttributes) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[strings.TrimSpace(serialNumber)]
	if !ok {
		return false
	}
	dev.Update(attrs)
	return true
}

// Snapshot returns a copy of the device, safe to use outside the registry.
func (r *DeviceRegistry) Snapshot(serialNumber string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[strings.TrimSpace(serialNumber)]
	if !ok {
		return Device{}, false
	}
	return *dev, true
}

// All returns copies of every device ordered by serial number.
func (r *DeviceRegistry) All() []Device {
	r.mu.RLock()
	result := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		result = append(result, *dev)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].SerialNumber < result[j].SerialNumber
	})
	return result
}

// Len returns the number of registered devices.
func (r *DeviceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
