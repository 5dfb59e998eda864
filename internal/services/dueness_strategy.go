// Package services provides business logic and orchestration services.
//
// This file holds the dueness strategies of recurring templates. Each repeat
// interval has its own checker, looked up through a small registry.
package services

import (
	"fmt"

	"fintrack/internal/core"
)

// DuenessChecker decides whether a template anchored on anchor produces an
// occurrence on today. Dates on or before the anchor are never due.
type DuenessChecker interface {
	IsDue(anchor, today core.Date) bool
}

// WeeklyChecker fires on the anchor's weekday.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(anchor, today core.Date) bool {
	if !today.After(anchor.Time) {
		return false
	}
	return today.Weekday() == anchor.Weekday()
}

// MonthlyChecker fires on the anchor's day of month, clamped to the last day
// of shorter months.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(anchor, today core.Date) bool {
	if !today.After(anchor.Time) {
		return false
	}
	return today.Day() == min(anchor.Day(), today.LastDayOfMonth())
}

var duenessStrategies = map[core.RepeatInterval]DuenessChecker{
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
}

// GetDuenessChecker returns the checker for interval.
func GetDuenessChecker(interval core.RepeatInterval) (DuenessChecker, error) {
	checker, ok := duenessStrategies[interval]
	if !ok {
		return nil, fmt.Errorf("unknown repeat interval: %q", interval)
	}
	return checker, nil
}

// RegisterDuenessChecker installs or replaces the checker for interval.
func RegisterDuenessChecker(interval core.RepeatInterval, checker DuenessChecker) {
	duenessStrategies[interval] = checker
}
