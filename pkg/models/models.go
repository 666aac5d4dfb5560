package models

import "time"

// Device is a registry entry for one device belonging to either partner of a
// couple. Only public material appears here; the struct is safe to persist
// or sync through the backend.
type Device struct {
	Fingerprint string    `json:"fingerprint"`
	Name        string    `json:"name"`
	PublicKey   []byte    `json:"public_key"`
	AddedAt     time.Time `json:"added_at"`
}

func CloneDevice(d Device) Device {
	return Device{
		Fingerprint: d.Fingerprint,
		Name:        d.Name,
		PublicKey:   append([]byte(nil), d.PublicKey...),
		AddedAt:     d.AddedAt,
	}
}
