package persistence

import "time"

func toUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func nullableInt8(v *int8) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
