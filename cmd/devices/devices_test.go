package devices

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voxrec/internal/capture"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Print(&buf, []capture.DeviceInfo{
		{Index: 0, Name: "USB Mic", ID: "hw:1,0", IsDefault: true},
		{Index: 1, Name: "Line In", ID: "hw:0,0"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "USB Mic")
	assert.Contains(t, out, "hw:0,0")
	assert.Contains(t, out, "*")
}

func TestPrintEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, nil))
	assert.Equal(t, "no capture devices found\n", buf.String())
}
