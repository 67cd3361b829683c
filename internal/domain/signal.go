package domain

import "time"

// SignalKind tags a tamper signal observed by the presentation layer.
type SignalKind string

const (
	SignalTabSwitch  SignalKind = "tab_switch"
	SignalWindowBlur SignalKind = "window_blur"
	SignalRightClick SignalKind = "right_click"
)

// ParseSignalKind validates a raw signal tag.
func ParseSignalKind(raw string) (SignalKind, error) {
	switch kind := SignalKind(raw); kind {
	case SignalTabSwitch, SignalWindowBlur, SignalRightClick:
		return kind, nil
	}
	return "", ErrUnknownSignal
}

// Signal is one occurrence of a tamper signal.
type Signal struct {
	Kind       SignalKind
	ObservedAt time.Time
}
