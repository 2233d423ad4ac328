package repository

import "strings"

// isUniqueViolation, SQLite UNIQUE / PRIMARY KEY constraint hatasını tanır.
// modernc driver'ı constraint hatasını metin olarak taşır.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// inClause, n elemanlı bir IN listesi için "?, ?, ?" üretir.
func inClause(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// stringArgs, prefix argümanlarının arkasına values'u ekleyerek
// QueryContext'in beklediği []any'yi üretir.
func stringArgs(prefix []any, values []string) []any {
	args := make([]any, 0, len(prefix)+len(values))
	args = append(args, prefix...)
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
