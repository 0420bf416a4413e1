// Package devices lists the capture devices visible to the audio backend.
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/voxrec/internal/capture"
)

// Command creates the devices command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := capture.NewMalgoBackend()
			if err != nil {
				return fmt.Errorf("failed to initialize audio backend: %w", err)
			}
			defer func() { _ = backend.Close() }()

			devices, err := backend.Devices()
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), devices)
		},
	}
}

// Print writes devices as a table. Names in the first column are what
// the /device route and the recording.device setting accept.
func Print(w io.Writer, devices []capture.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.ID, def)
	}
	return tw.Flush()
}
