package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a 5-field cron expression or an @macro ("@hourly",
// "@every 90m", ...).
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return errors.New("empty cron expression")
	}
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

var durationRx = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// durationUnits matches the capture groups of durationRx in order.
var durationUnits = []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}

// ParseDuration parses the compact config-file duration form: ordered
// day/hour/minute/second segments like "1d12h", "90s" or "2m30s".
func ParseDuration(s string) (time.Duration, error) {
	m := durationRx.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total time.Duration
	var segments int
	for i, unit := range durationUnits {
		if m[i+1] == "" {
			continue
		}
		segments++
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	if segments == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}
