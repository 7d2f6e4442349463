// Package config holds the recorder configuration: the capture channel
// geometry, the pacing and capture flags, the container output, and the
// observability endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Data is the actual configuration data for the recorder
type Data struct {
	Name string `json:"name"`

	Capture struct {
		RingSize  int  `json:"ring_size" validate:"min=1,max=1000"`
		MaxBytes  int  `json:"max_bytes" validate:"min=1,max=1073741824"`
		TargetFPS int  `json:"target_fps" validate:"min=0"`
		LimitFPS  bool `json:"limit_fps"`
		Front     bool `json:"capture_front"`
		Cursor    bool `json:"record_cursor"`
	} `json:"capture"`

	Output struct {
		Container string `json:"container" validate:"required"`
		File      string `json:"file" validate:"required"`
	} `json:"output"`

	Hotkey struct {
		Enable    bool   `json:"enable"`
		Keycode   uint32 `json:"keycode"`
		Modifiers uint32 `json:"modifiers"`
	} `json:"hotkey"`

	Metrics struct {
		Enable  bool   `json:"enable"`
		Address string `json:"address"`
	} `json:"metrics"`

	Log struct {
		Level string `json:"level" validate:"oneof=debug info warn error silent"`
	} `json:"log"`
}

// New returns a configuration with all defaults applied.
func New() *Data {
	data := &Data{}

	data.Name = "recorder"

	data.Capture.RingSize = 5
	data.Capture.MaxBytes = 16 * 1024 * 1024
	data.Capture.TargetFPS = 30
	data.Capture.LimitFPS = false
	data.Capture.Cursor = true

	data.Output.Container = "flv"
	data.Output.File = "record.flv"

	data.Metrics.Address = ":9090"

	data.Log.Level = "info"

	return data
}

// FromEnv applies SSR_* environment overrides on top of the defaults.
func FromEnv() (*Data, error) {
	data := New()

	if err := data.Merge(os.Getenv); err != nil {
		return nil, err
	}

	if err := data.Validate(); err != nil {
		return nil, err
	}

	return data, nil
}

// Merge reads overrides from the given environment.
func (d *Data) Merge(getenv func(string) string) error {
	var err error

	set := func(key string, fn func(value string) error) {
		if err != nil {
			return
		}

		if value := getenv(key); len(value) != 0 {
			if ferr := fn(value); ferr != nil {
				err = fmt.Errorf("%s: %w", key, ferr)
			}
		}
	}

	setInt := func(key string, target *int) {
		set(key, func(value string) error {
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*target = v
			return nil
		})
	}

	setBool := func(key string, target *bool) {
		set(key, func(value string) error {
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*target = v > 0
			return nil
		})
	}

	setString := func(key string, target *string) {
		set(key, func(value string) error {
			*target = value
			return nil
		})
	}

	setString("SSR_NAME", &d.Name)

	setInt("SSR_CAPTURE_RING_SIZE", &d.Capture.RingSize)
	setInt("SSR_CAPTURE_MAX_BYTES", &d.Capture.MaxBytes)
	setInt("SSR_CAPTURE_TARGET_FPS", &d.Capture.TargetFPS)
	setBool("SSR_CAPTURE_LIMIT_FPS", &d.Capture.LimitFPS)
	setBool("SSR_CAPTURE_FRONT", &d.Capture.Front)
	setBool("SSR_CAPTURE_CURSOR", &d.Capture.Cursor)

	setString("SSR_OUTPUT_CONTAINER", &d.Output.Container)
	setString("SSR_OUTPUT_FILE", &d.Output.File)

	setBool("SSR_METRICS_ENABLE", &d.Metrics.Enable)
	setString("SSR_METRICS_ADDRESS", &d.Metrics.Address)

	set("SSR_LOG_LEVEL", func(value string) error {
		d.Log.Level = strings.ToLower(value)
		return nil
	})

	return err
}

// Validate checks the configuration for completeness and sanity.
func (d *Data) Validate() error {
	validate := validator.New()

	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
