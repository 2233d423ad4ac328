package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

// ChangeFilter, bir aboneliğin dinlediği satır değişikliği.
//
// Filter opsiyoneldir; "column=eq.value" formatında tek kolon eşitliği
// destekler (ör: "conversation_id=eq.42").
type ChangeFilter struct {
	Event  string `json:"event"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// Validate, event tipini, tabloyu ve filtre sözdizimini kontrol eder.
func (f ChangeFilter) Validate() error {
	switch f.Event {
	case ChangeInsert, ChangeUpdate, ChangeDelete, ChangeAny:
	default:
		return fmt.Errorf("invalid change event %q", f.Event)
	}
	if strings.TrimSpace(f.Table) == "" {
		return fmt.Errorf("change filter table is required")
	}
	if f.Filter != "" {
		if _, _, err := parseEquality(f.Filter); err != nil {
			return err
		}
	}
	return nil
}

// Matches, c'nin bu filtreye uyup uymadığını döner.
// DELETE değişikliklerinde kolon Old kaydında aranır.
func (f ChangeFilter) Matches(c Change) bool {
	if f.Table != c.Table {
		return false
	}
	if f.Event != ChangeAny && f.Event != c.Type {
		return false
	}
	if f.Filter == "" {
		return true
	}

	column, want, err := parseEquality(f.Filter)
	if err != nil {
		return false
	}

	record := c.Record
	if c.Type == ChangeDelete && len(c.Old) > 0 {
		record = c.Old
	}
	got, ok := record[column]
	if !ok {
		return false
	}
	return formatValue(got) == want
}

// EqFilter, "column=eq.value" filtresini üretir.
func EqFilter(column, value string) string {
	return column + "=eq." + value
}

func parseEquality(filter string) (column, value string, err error) {
	column, rest, ok := strings.Cut(filter, "=")
	if !ok || column == "" {
		return "", "", fmt.Errorf("invalid change filter %q", filter)
	}
	value, ok = strings.CutPrefix(rest, "eq.")
	if !ok {
		return "", "", fmt.Errorf("unsupported change filter operator in %q", filter)
	}
	return column, value, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
