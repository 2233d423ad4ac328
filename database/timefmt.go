package database

import (
	"fmt"
	"time"
)

// TimeLayout, tüm zaman kolonlarının TEXT formatı.
// Sabit genişlikli UTC olduğu için string sıralaması zaman sıralamasıyla aynıdır;
// ORDER BY created_at ve created_at > ? karşılaştırmaları buna dayanır.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime, t'yi UTC'ye çevirip TimeLayout ile yazar.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime, TimeLayout formatındaki bir kolonu okur.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
