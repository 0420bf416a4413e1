package capture

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDevice(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Index: 0, Name: "Built-in Microphone", ID: "hw:0,0", IsDefault: true},
		{Index: 1, Name: "USB Audio", ID: "hw:1,0"},
		{Index: 2, Name: "hw:1,0", ID: "hw:2,0"},
	}

	// Names are matched first; the decoded ID is the fallback for names
	// that match no device.
	tests := []struct {
		name   string
		query  string
		wantOK bool
		wantID string
	}{
		{"exact name", "USB Audio", true, "hw:1,0"},
		{"id when no name matches", "hw:0,0", true, "hw:0,0"},
		{"name wins over another device's id", "hw:1,0", true, "hw:2,0"},
		{"partial name does not match", "USB", false, ""},
		{"case differs", "usb audio", false, ""},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ResolveDevice(devices, tt.query)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestDecodeDeviceID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":1,0", decodeDeviceID(hex.EncodeToString([]byte(":1,0\x00\x00"))))
	assert.Equal(t, "zz", decodeDeviceID("zz"), "invalid hex is kept")
	assert.Equal(t, "0001ff", decodeDeviceID("0001ff"), "binary ids are kept")
}
