package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voxrec/internal/capture"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

const helpText = `voxrec control commands (GET or POST):

  /status                          current state, configuration and sound level
  /device?name=<device>            select the capture device (idle only)
  /format?format=<rate-bits-ch>    set sample format, e.g. 48000-24-2 (idle only)
  /file?path=<path>                set the output file (idle only)
  /thresholds?start=&stop=&timeout=
                                   set start/stop levels (percent) and the
                                   silence timeout (milliseconds)
  /start                           arm a session; recording begins on sound
  /stop                            end the current session
  /devices                         list capture devices
  /sessions                        list recent sessions
  /metrics                         Prometheus metrics
  /health                          service health
`

// StatusResponse is returned by /status.
type StatusResponse struct {
	// Recording is true while recording, "waiting" while armed, else false.
	Recording      any     `json:"recording"`
	State          string  `json:"state"`
	SessionID      string  `json:"sessionId,omitempty"`
	Device         string  `json:"device"`
	File           string  `json:"file"`
	Format         string  `json:"format"`
	SoundLevel     string  `json:"soundLevel"`
	Duration       int     `json:"duration"`
	StartThreshold float64 `json:"startThreshold"`
	StopThreshold  float64 `json:"stopThreshold"`
	StopTimeout    float64 `json:"stopTimeout"` // seconds
}

// NewStatusResponse renders a detector status.
func NewStatusResponse(st recorder.Status) StatusResponse {
	var recording any
	switch st.State {
	case recorder.StateRecording:
		recording = true
	case recorder.StateArmed:
		recording = "waiting"
	default:
		recording = false
	}

	return StatusResponse{
		Recording:      recording,
		State:          st.State.String(),
		SessionID:      st.SessionID,
		Device:         st.Config.DeviceName,
		File:           st.Config.OutputPath,
		Format:         st.Config.Format(),
		SoundLevel:     fmt.Sprintf("%.2f", st.Level),
		Duration:       st.Duration,
		StartThreshold: st.Config.StartThreshold,
		StopThreshold:  st.Config.StopThreshold,
		StopTimeout:    st.Config.StopTimeoutSeconds(),
	}
}

// AckResponse acknowledges a control command.
type AckResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// GetHelp handles / and /help
func (c *Controller) GetHelp(ctx echo.Context) error {
	return ctx.String(http.StatusOK, helpText)
}

// GetStatus handles /status
func (c *Controller) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, NewStatusResponse(c.detector.Status()))
}

// SetDevice handles /device?name=
func (c *Controller) SetDevice(ctx echo.Context) error {
	name := strings.TrimSpace(ctx.FormValue("name"))
	err := c.detector.WhileIdle("set_device", func(s *recorder.ConfigStore) error {
		return s.SetDevice(name)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set device")
	}
	return ctx.JSON(http.StatusOK, AckResponse{Message: "device set to " + name})
}

// SetFormat handles /format?format=rate-bits-channels
func (c *Controller) SetFormat(ctx echo.Context) error {
	format := strings.TrimSpace(ctx.FormValue("format"))
	err := c.detector.WhileIdle("set_format", func(s *recorder.ConfigStore) error {
		return s.SetFormatString(format)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set format")
	}
	return ctx.JSON(http.StatusOK, AckResponse{Message: "format set to " + format})
}

// SetOutputPath handles /file?path=
func (c *Controller) SetOutputPath(ctx echo.Context) error {
	path := strings.TrimSpace(ctx.FormValue("path"))
	err := c.detector.WhileIdle("set_output_path", func(s *recorder.ConfigStore) error {
		return s.SetOutputPath(path)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set output file")
	}
	return ctx.JSON(http.StatusOK, AckResponse{Message: "output file set to " + path})
}

// SetThresholds handles /thresholds?start=&stop=&timeout=. Missing or
// unparsable values leave the corresponding setting unchanged.
func (c *Controller) SetThresholds(ctx echo.Context) error {
	update := recorder.ThresholdUpdate{
		Start:     parseFloatParam(ctx, "start"),
		Stop:      parseFloatParam(ctx, "stop"),
		TimeoutMs: parseFloatParam(ctx, "timeout"),
	}
	store := c.detector.Store()
	store.SetThresholdFields(update)

	cfg := store.Snapshot()
	return ctx.JSON(http.StatusOK, map[string]any{
		"message":        "thresholds updated",
		"startThreshold": cfg.StartThreshold,
		"stopThreshold":  cfg.StopThreshold,
		"stopTimeout":    cfg.StopTimeoutSeconds(),
	})
}

func parseFloatParam(ctx echo.Context, name string) *float64 {
	raw := strings.TrimSpace(ctx.FormValue(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// StartSession handles /start. The stream opens in the background; failures
// show up in /status and the logs only.
func (c *Controller) StartSession(ctx echo.Context) error {
	id, err := c.engine.Start(c.ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to start session")
	}
	return ctx.JSON(http.StatusAccepted, AckResponse{Message: "awaiting sound", SessionID: id})
}

// StopSession handles /stop
func (c *Controller) StopSession(ctx echo.Context) error {
	if err := c.engine.Stop(); err != nil {
		return c.HandleError(ctx, err, "Failed to stop session")
	}
	return ctx.JSON(http.StatusOK, AckResponse{Message: "stopped"})
}

const deviceCacheKey = "devices"

// ListDevices handles /devices. Enumeration is cached briefly since it can
// take noticeable time on some backends.
func (c *Controller) ListDevices(ctx echo.Context) error {
	if cached, found := c.deviceCache.Get(deviceCacheKey); found {
		if devices, ok := cached.([]capture.DeviceInfo); ok {
			return ctx.JSON(http.StatusOK, devices)
		}
	}

	devices, err := c.engine.Devices()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list capture devices")
	}
	if devices == nil {
		devices = []capture.DeviceInfo{}
	}
	c.deviceCache.Set(deviceCacheKey, devices, DeviceCacheTTL)
	return ctx.JSON(http.StatusOK, devices)
}

// ListSessions handles /sessions?limit=
func (c *Controller) ListSessions(ctx echo.Context) error {
	if c.history == nil {
		return ctx.JSON(http.StatusNotFound, NewErrorResponse(nil, "session history is disabled", http.StatusNotFound))
	}

	limit := 0
	if raw := ctx.FormValue("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ctx.JSON(http.StatusBadRequest, NewErrorResponse(err, "limit must be a non-negative integer", http.StatusBadRequest))
		}
		limit = n
	}

	records, err := c.history.Recent(ctx.Request().Context(), limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sessions")
	}
	c.log.Debug("sessions listed", logger.Int("count", len(records)))
	return ctx.JSON(http.StatusOK, records)
}

// HealthCheck handles /health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"state":          c.detector.State().String(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
