package depsync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ProfileStatus is the enrollment profile state reported for a device.
// Values outside the known set are kept verbatim.
type ProfileStatus string

const (
	ProfileStatusEmpty    ProfileStatus = "empty"
	ProfileStatusAssigned ProfileStatus = "assigned"
	ProfileStatusPushed   ProfileStatus = "pushed"
	ProfileStatusRemoved  ProfileStatus = "removed"
)

// DeviceAttributes is the attribute set carried by listing and sync records.
// Empty strings and zero times mean "not present".
type DeviceAttributes struct {
	SerialNumber       string        `json:"serial_number"`
	Model              string        `json:"model,omitempty"`
	Description        string        `json:"description,omitempty"`
	Color              string        `json:"color,omitempty"`
	AssetTag           string        `json:"asset_tag,omitempty"`
	OS                 string        `json:"os,omitempty"`
	DeviceFamily       string        `json:"device_family,omitempty"`
	ProfileStatus      ProfileStatus `json:"profile_status,omitempty"`
	ProfileUUID        string        `json:"profile_uuid,omitempty"`
	ProfileAssignTime  time.Time     `json:"profile_assign_time,omitzero"`
	DeviceAssignedDate time.Time     `json:"device_assigned_date,omitzero"`
	DeviceAssignedBy   string        `json:"device_assigned_by,omitempty"`
}

// UnmarshalJSON decodes the wire record. Timestamps that do not parse are
// dropped with a warning instead of failing the whole page.
func (a *DeviceAttributes) UnmarshalJSON(data []byte) error {
	type plain DeviceAttributes
	var aux struct {
		plain
		ProfileAssignTime  string `json:"profile_assign_time"`
		DeviceAssignedDate string `json:"device_assigned_date"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = DeviceAttributes(aux.plain)
	a.SerialNumber = strings.TrimSpace(a.SerialNumber)
	a.ProfileAssignTime = parseTimestamp(a.SerialNumber, "profile_assign_time", aux.ProfileAssignTime)
	a.DeviceAssignedDate = parseTimestamp(a.SerialNumber, "device_assigned_date", aux.DeviceAssignedDate)
	return nil
}

func parseTimestamp(serial, field, raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	log.Warn().Str("serial", serial).Str("field", field).Str("value", raw).Msg("depsync: ignore unparsable timestamp")
	return time.Time{}
}

// Device is one enrolled unit. SerialNumber never changes after creation.
type Device struct {
	SerialNumber       string        `json:"serial_number"`
	Model              string        `json:"model,omitempty"`
	Description        string        `json:"description,omitempty"`
	Color              string        `json:"color,omitempty"`
	AssetTag           string        `json:"asset_tag,omitempty"`
	OS                 string        `json:"os,omitempty"`
	DeviceFamily       string        `json:"device_family,omitempty"`
	ProfileStatus      ProfileStatus `json:"profile_status,omitempty"`
	ProfileUUID        string        `json:"profile_uuid,omitempty"`
	ProfileAssignTime  time.Time     `json:"profile_assign_time,omitzero"`
	DeviceAssignedDate time.Time     `json:"device_assigned_date,omitzero"`
	DeviceAssignedBy   string        `json:"device_assigned_by,omitempty"`
}

// NewDevice creates a device and merges attrs into it.
func NewDevice(serialNumber string, attrs DeviceAttributes) *Device {
	d := &Device{SerialNumber: serialNumber}
	d.Update(attrs)
	return d
}

// Update merges attrs field by field. A field only overwrites the current
// value when it is present and non-empty; nothing is cleared by omission.
// The serial number is never changed.
func (d *Device) Update(attrs DeviceAttributes) {
	mergeString(&d.Model, attrs.Model)
	mergeString(&d.Description, attrs.Description)
	mergeString(&d.Color, attrs.Color)
	mergeString(&d.AssetTag, attrs.AssetTag)
	mergeString(&d.OS, attrs.OS)
	mergeString(&d.DeviceFamily, attrs.DeviceFamily)
	if strings.TrimSpace(string(attrs.ProfileStatus)) != "" {
		d.ProfileStatus = attrs.ProfileStatus
	}
	mergeString(&d.ProfileUUID, attrs.ProfileUUID)
	mergeTime(&d.ProfileAssignTime, attrs.ProfileAssignTime)
	mergeTime(&d.DeviceAssignedDate, attrs.DeviceAssignedDate)
	mergeString(&d.DeviceAssignedBy, attrs.DeviceAssignedBy)
}

// EmptyProfileStatus reports whether no profile is assigned to the device.
func (d *Device) EmptyProfileStatus() bool {
	return d.ProfileStatus == ProfileStatusEmpty
}

func mergeString(dst *string, val string) {
	if strings.TrimSpace(val) != "" {
		*dst = val
	}
}

func mergeTime(dst *time.Time, val time.Time) {
	if !val.IsZero() {
		*dst = val
	}
}
