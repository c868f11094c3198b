package model

import "strings"

// DevicePath identifies the physical sensor a Readout or StreamBlock
// originated from: its device type (e.g. "bme280") and instance (e.g.
// "outside"). The component a particular value represents (e.g.
// "temperature") is a separate key into the Readout's component map, not
// part of the path.
type DevicePath struct {
	DeviceType string
	Instance   string
}

// String renders the path as "type/instance", the form used in log
// messages and router match rules.
func (p DevicePath) String() string {
	var b strings.Builder
	b.WriteString(p.DeviceType)
	b.WriteByte('/')
	b.WriteString(p.Instance)
	return b.String()
}

// WithInstance returns a copy of p with Instance replaced.
func (p DevicePath) WithInstance(instance string) DevicePath {
	p.Instance = instance
	return p
}

// WithDeviceType returns a copy of p with DeviceType replaced.
func (p DevicePath) WithDeviceType(deviceType string) DevicePath {
	p.DeviceType = deviceType
	return p
}
