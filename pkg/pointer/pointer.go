package pointer

import (
	"time"
)

// To returns a pointer to a copy of value
func To[T any](value T) *T {
	return &value
}

// IfValid returns a pointer to value when valid, otherwise nil
func IfValid[T any](valid bool, value T) *T {
	if !valid {
		return nil
	}
	return &value
}

// Copy returns a pointer to a copy of *value, or nil when value is nil
func Copy[T any](value *T) *T {
	if value == nil {
		return nil
	}
	return To(*value)
}

// Time returns a pointer to value
func Time(value time.Time) *time.Time {
	return To(value)
}

// TimeIfValid returns a pointer to value when valid, otherwise nil
func TimeIfValid(valid bool, value time.Time) *time.Time {
	return IfValid(valid, value)
}

// TimeCopy returns a copy of value that doesn't alias it
func TimeCopy(value *time.Time) *time.Time {
	return Copy(value)
}
