package zcl

import (
	"fmt"
	"strconv"
	"strings"
)

// Reporting interval bounds accepted by Configure Reporting, in seconds.
const (
	ReportIntervalMin uint16 = 0
	ReportIntervalMax uint16 = 62000
)

// reportIntervals are the symbolic interval names descriptors may use in
// place of literal seconds.
var reportIntervals = map[string]uint16{
	"MIN":        ReportIntervalMin,
	"MAX":        ReportIntervalMax,
	"1_SECOND":   1,
	"5_SECONDS":  5,
	"10_SECONDS": 10,
	"1_MINUTE":   60,
	"5_MINUTES":  300,
	"10_MINUTES": 600,
	"15_MINUTES": 900,
	"30_MINUTES": 1800,
	"1_HOUR":     3600,
}

// ParseReportInterval resolves a symbolic interval ("MIN", "1_HOUR") or a
// decimal number of seconds.
func ParseReportInterval(s string) (uint16, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if v, ok := reportIntervals[key]; ok {
		return v, nil
	}
	n, err := strconv.ParseUint(key, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("zcl: unknown reporting interval %q", s)
	}
	if uint16(n) > ReportIntervalMax {
		return 0, fmt.Errorf("zcl: reporting interval %d exceeds %d", n, ReportIntervalMax)
	}
	return uint16(n), nil
}
