package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a five field cron expression or a @macro and returns
// the interval between the two next activations.
func ParseCron(expr string) (time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return 0, fmt.Errorf("empty cron expression")
	}

	var schedule cron.Schedule
	var err error
	if strings.HasPrefix(e, "@") {
		schedule, err = cron.ParseStandard(e)
	} else {
		schedule, err = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(e)
	}
	if err != nil {
		return 0, err
	}
	next := schedule.Next(time.Now())
	return schedule.Next(next).Sub(next), nil
}

var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d{1,9})?)S)?)?$`)

// ParseISODuration parses the day and time part of ISO8601 durations,
// e.g. PT0.25S, PT5S, P1DT2H. Years, months and weeks are not supported.
func ParseISODuration(dur string) (time.Duration, error) {
	if dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}
	m := isoDurationRx.FindStringSubmatch(dur)
	if m == nil {
		return 0, ErrISOFormat
	}

	units := [...]time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var ret time.Duration
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.Replace(part, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", part, err)
		}
		ret += time.Duration(f * float64(units[i]))
	}
	return ret, nil
}
