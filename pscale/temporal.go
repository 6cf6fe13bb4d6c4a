package pscale

import (
	"fmt"
	"time"
)

// TemporalCoordinate encodes t as year digits, month, week of month,
// ISO weekday, hour and five-minute slot. Values above 9 use letters.
func TemporalCoordinate(t time.Time) string {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return fmt.Sprintf("%04d%s%d%d%s%s",
		t.Year(),
		hexDigit(int(t.Month())),
		(t.Day()-1)/7+1,
		weekday,
		hexDigit(t.Hour()),
		hexDigit(t.Minute()/5),
	)
}

func hexDigit(v int) string {
	if v < 10 {
		return fmt.Sprint(v)
	}
	return string(rune('A' + v - 10))
}
