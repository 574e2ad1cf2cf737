package domain

import (
	"fmt"
)

type TrimMode string

const (
	TrimModeSingle TrimMode = "single"
	TrimModeMulti  TrimMode = "multi"
)

// TrimRange is a [Start, End) window in seconds of the source video.
type TrimRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r TrimRange) Duration() float64 {
	return r.End - r.Start
}

// CropRect is expressed as fractions of the frame so it is independent of
// the source resolution.
type CropRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Modified struct {
	Mute   bool `json:"mute"`
	Rotate bool `json:"rotate"`
	Crop   bool `json:"crop"`
	Trim   bool `json:"trim"`
}

func (m Modified) Any() bool {
	return m.Mute || m.Rotate || m.Crop || m.Trim
}

// JobSettings is the declarative description of an edit request.
type JobSettings struct {
	Trims       []TrimRange `json:"trims"`
	TrimMode    TrimMode    `json:"trimMode"`
	Crop        *CropRect   `json:"crop,omitempty"`
	RotateValue *int        `json:"rotateValue,omitempty"`
	Modified    Modified    `json:"modified"`
}

// Validate enforces that each modified flag is backed by a usable
// parameter, and that no flag is silently missing for a given parameter.
func (s JobSettings) Validate() error {
	if s.Modified.Trim {
		if len(s.Trims) == 0 {
			return fmt.Errorf("%w: trim requested without ranges", ErrInvalidSettings)
		}
		for i, r := range s.Trims {
			if r.Start < 0 || r.End <= r.Start {
				return fmt.Errorf("%w: trim range %d [%g, %g] is empty or negative", ErrInvalidSettings, i, r.Start, r.End)
			}
		}
		switch s.TrimMode {
		case TrimModeSingle, TrimModeMulti:
		default:
			return fmt.Errorf("%w: unknown trim mode %q", ErrInvalidSettings, s.TrimMode)
		}
	} else if len(s.Trims) > 0 {
		return fmt.Errorf("%w: trim ranges given but trim not requested", ErrInvalidSettings)
	}

	if s.Modified.Rotate {
		if s.RotateValue == nil {
			return fmt.Errorf("%w: rotate requested without angle", ErrInvalidSettings)
		}
		deg, ok := NormalizeRotation(*s.RotateValue)
		if !ok {
			return fmt.Errorf("%w: rotation %d is not a multiple of 90", ErrInvalidSettings, *s.RotateValue)
		}
		if deg == 0 {
			return fmt.Errorf("%w: rotate requested with a full turn", ErrInvalidSettings)
		}
	} else if s.RotateValue != nil && *s.RotateValue%360 != 0 {
		return fmt.Errorf("%w: rotation given but rotate not requested", ErrInvalidSettings)
	}

	if s.Modified.Crop {
		if s.Crop == nil {
			return fmt.Errorf("%w: crop requested without rectangle", ErrInvalidSettings)
		}
		c := *s.Crop
		if c.X < 0 || c.Y < 0 || c.Width <= 0 || c.Height <= 0 || c.X+c.Width > 1 || c.Y+c.Height > 1 {
			return fmt.Errorf("%w: crop rectangle %+v is outside the frame", ErrInvalidSettings, c)
		}
	} else if s.Crop != nil {
		return fmt.Errorf("%w: crop rectangle given but crop not requested", ErrInvalidSettings)
	}

	return nil
}

// NormalizeRotation folds an angle into [0, 360) and reports whether it is
// a quarter turn multiple.
func NormalizeRotation(deg int) (int, bool) {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg, deg%90 == 0
}
