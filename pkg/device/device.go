// Package device manages per-account device fingerprint profiles and their
// version history.
package device

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Profile is one device fingerprint presented to the upstream service.
type Profile struct {
	MachineID    string `json:"machine_id"`
	DeviceID     string `json:"device_id"`
	MACAddress   string `json:"mac_address"`
	SerialNumber string `json:"serial_number"`
}

// Generate produces a random, plausible fingerprint.
func Generate() Profile {
	return Profile{
		MachineID:    randomHex(32),
		DeviceID:     uuid.NewString(),
		MACAddress:   randomMAC(),
		SerialNumber: strings.ToUpper(randomHex(6)),
	}
}

// Validate rejects profiles with missing fields.
func (p Profile) Validate() error {
	if p.MachineID == "" || p.DeviceID == "" || p.MACAddress == "" || p.SerialNumber == "" {
		return fmt.Errorf("incomplete device profile")
	}
	return nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// randomMAC returns a locally administered unicast MAC address.
func randomMAC() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	buf[0] = (buf[0] | 0x02) &^ 0x01
	parts := make([]string, len(buf))
	for i, b := range buf {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
