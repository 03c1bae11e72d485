package service

import (
	"fmt"
	"time"

	"tokenmeter/internal/model"
)

// PeriodStart 返回周期起点（本地时间）；session/total 无下界返回 nil
func PeriodStart(period model.Period, now time.Time) (*time.Time, error) {
	var start time.Time
	switch period {
	case model.PeriodSession, model.PeriodTotal:
		return nil, nil
	case model.PeriodDaily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case model.PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, now.Location())
	case model.PeriodMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidPeriod, period)
	}
	return &start, nil
}
