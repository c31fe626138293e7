// Package schedule computes the next eligible run time for a task,
// given its schedule string and a reference instant.
package schedule

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relaygrid/octabot/internal/domain"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const everyPrefix = "@every "

// NextRun computes the next epoch-seconds at which a task becomes
// eligible, per SPEC_FULL.md §4.3. now is injected for testability.
func NextRun(taskSchedule *string, startAt int64, now time.Time) (int64, error) {
	startAtTime := time.Unix(startAt, 0).UTC()

	var next int64
	switch {
	case taskSchedule == nil:
		next = startAt
	case strings.HasPrefix(*taskSchedule, "@every"):
		n, err := nextIntervalRun(*taskSchedule, startAtTime, now)
		if err != nil {
			return 0, err
		}
		next = n
	default:
		n, err := nextCronRun(*taskSchedule, startAtTime)
		if err != nil {
			return 0, err
		}
		next = n
	}

	if next < now.Unix() {
		next = now.Unix()
	}
	return next, nil
}

// NextRunForCreate is the input variant used by the task-creation API:
// if the caller-supplied startAt is already in the future, it is
// returned unchanged; otherwise the normal rules apply with startAt as
// the reference instant.
func NextRunForCreate(taskSchedule *string, startAt int64, now time.Time) (int64, error) {
	if startAt > now.Unix() {
		return startAt, nil
	}
	return NextRun(taskSchedule, startAt, now)
}

func nextIntervalRun(schedule string, startAt, now time.Time) (int64, error) {
	durationStr, ok := strings.CutPrefix(schedule, everyPrefix)
	if !ok {
		return 0, domain.NewInvalidSchedule("invalid schedule format: must start with '@every '")
	}

	interval, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, domain.NewInvalidSchedule("failed to parse duration: " + err.Error())
	}

	intervalSeconds := int64(interval.Seconds())
	if intervalSeconds == 0 {
		return 0, domain.NewInvalidSchedule("interval duration cannot be zero")
	}

	currentTime := now.Unix()
	startTime := startAt.Unix()

	// Smallest integer k >= 1 such that startTime + k*interval > currentTime.
	intervalsPassed := (currentTime-startTime)/intervalSeconds + 1
	if intervalsPassed < 1 {
		intervalsPassed = 1
	}

	return startTime + intervalsPassed*intervalSeconds, nil
}

func nextCronRun(schedule string, startAt time.Time) (int64, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return 0, domain.NewInvalidSchedule("failed to parse cron schedule: " + err.Error())
	}

	return sched.Next(startAt).Unix(), nil
}
