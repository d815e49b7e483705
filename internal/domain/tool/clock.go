package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without /usr/share/zoneinfo
)

const (
	NameCurrentTime = "get_current_time"

	DefaultTimezone = "Asia/Shanghai"
)

var ErrInvalidTimezone = errors.New("invalid time zone")

// ClockArgs are the arguments of get_current_time.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone name such as Asia/Shanghai or Europe/London. Defaults to Asia/Shanghai." jsonschema:"IANA time zone name such as Asia/Shanghai or Europe/London"`
}

// ClockExecutor reports the current wall-clock time in a time zone.
type ClockExecutor struct {
	now         func() time.Time
	defaultZone string
}

// NewClockExecutor returns a clock using now (time.Now when nil) and
// defaultZone (DefaultTimezone when empty).
func NewClockExecutor(now func() time.Time, defaultZone string) *ClockExecutor {
	if now == nil {
		now = time.Now
	}
	if defaultZone == "" {
		defaultZone = DefaultTimezone
	}
	return &ClockExecutor{now: now, defaultZone: defaultZone}
}

func (c *ClockExecutor) Execute(_ context.Context, raw json.RawMessage) (Result, error) {
	var args ClockArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	zone := strings.TrimSpace(args.Timezone)
	if zone == "" {
		zone = c.defaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Result{}, fmt.Errorf("%w %q", ErrInvalidTimezone, zone)
	}

	t := c.now().In(loc)
	return Result{Text: fmt.Sprintf("[Current time]\nTime zone: %s\nTime: %s (%s)",
		zone, t.Format("2006-01-02 15:04:05"), t.Weekday())}, nil
}
