package capture

import (
	"encoding/hex"
	"strings"
)

// ResolveDevice finds the device whose name equals name exactly. Only when
// no name matches does it also accept the decoded backend ID (e.g. hw:1,0),
// which stays stable when two devices share a name. Matching is
// case-sensitive and never partial. ok is false when name is empty or
// nothing matches, in which case the caller opens the default device.
func ResolveDevice(devices []DeviceInfo, name string) (device DeviceInfo, ok bool) {
	if name == "" {
		return DeviceInfo{}, false
	}

	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	for _, d := range devices {
		if d.ID != "" && d.ID == name {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// decodeDeviceID renders a backend device ID the way users see it, falling
// back to the raw form.
func decodeDeviceID(raw string) string {
	decoded, err := hexToASCII(raw)
	if err != nil {
		return raw
	}
	decoded = strings.TrimRight(decoded, "\x00")
	for _, r := range decoded {
		if r < 0x20 || r > 0x7e {
			return raw
		}
	}
	return decoded
}

// isNullDevice reports devices that discard input.
func isNullDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}
