package session

import "github.com/MrEthical07/goIdentity/store"

// Device is the user-agent derived metadata stored with a session.
type Device = store.Device

// UnknownCountry is the country code used when geolocation has no answer.
const UnknownCountry = "--"

// Detector parses a user agent into device fields.
type Detector interface {
	Detect(userAgent string) Device
}

// GeoLocator resolves an IP address to an ISO country code.
type GeoLocator interface {
	CountryCode(ip string) string
}

// NopDetector returns empty device fields.
type NopDetector struct{}

func (NopDetector) Detect(string) Device { return Device{} }

// NopGeoLocator always answers UnknownCountry.
type NopGeoLocator struct{}

func (NopGeoLocator) CountryCode(string) string { return UnknownCountry }
