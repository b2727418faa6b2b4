package scheduler

import (
	"fmt"

	"sentinel-monitor/internal/models"
)

// Certificate checks run early in the morning; weekly on Monday, monthly on
// the first.
var certSchedules = map[models.CertInterval]string{
	models.CertDaily:   "0 6 * * *",
	models.CertWeekly:  "0 6 * * 1",
	models.CertMonthly: "0 6 1 * *",
}

var appSchedules = map[models.AppInterval]string{
	models.App5Min:  "*/5 * * * *",
	models.App15Min: "*/15 * * * *",
	models.App30Min: "*/30 * * * *",
	models.App1Hour: "0 * * * *",
	models.App6Hour: "0 */6 * * *",
	models.App1Day:  "0 6 * * *",
}

// CertSchedule returns the cron expression for a certificate interval.
func CertSchedule(i models.CertInterval) (string, error) {
	spec, ok := certSchedules[i]
	if !ok {
		return "", fmt.Errorf("unknown certificate interval %q", i)
	}
	return spec, nil
}

// AppSchedule returns the cron expression for an application interval.
func AppSchedule(i models.AppInterval) (string, error) {
	spec, ok := appSchedules[i]
	if !ok {
		return "", fmt.Errorf("unknown application interval %q", i)
	}
	return spec, nil
}
