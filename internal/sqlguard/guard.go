// Package sqlguard admits only single, read-only SELECT statements.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
	DialectDuckDB   = "duckdb"
)

var ErrRejected = errors.New("statement rejected")

// RejectionError explains why a statement was not allowed to run.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "statement rejected: " + e.Reason
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

func reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

var (
	fencePattern     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	leadingWord      = regexp.MustCompile(`^[\s(]*([A-Za-z]+)`)
	writeKeywords    = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|INTO|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|COPY|ATTACH|DETACH|PRAGMA|VACUUM|INSTALL)\b`)
	functionCallName = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\(`)
)

// Functions that reach outside the exposed tables in DuckDB.
var duckdbBlockedFunctions = map[string]struct{}{
	"read_csv":             {},
	"read_csv_auto":        {},
	"read_parquet":         {},
	"parquet_scan":         {},
	"read_json":            {},
	"read_json_auto":       {},
	"read_text":            {},
	"read_blob":            {},
	"glob":                 {},
	"sqlite_scan":          {},
	"query_table":          {},
	"duckdb_extensions":    {},
	"duckdb_settings":      {},
	"duckdb_databases":     {},
	"duckdb_secrets":       {},
	"pragma_database_list": {},
}

// Check normalizes a generated statement and returns it when it is a single
// read-only query. Any other statement yields a *RejectionError.
func Check(sqlText, dialect string) (string, error) {
	normalized := Normalize(sqlText)
	if normalized == "" {
		return "", reject("empty statement")
	}

	masked, err := maskLiterals(normalized)
	if err != nil {
		return "", reject("%v", err)
	}
	if strings.Contains(masked, ";") {
		return "", reject("multiple statements")
	}

	match := leadingWord.FindStringSubmatch(masked)
	if match == nil {
		return "", reject("statement does not start with a keyword")
	}
	switch keyword := strings.ToUpper(match[1]); keyword {
	case "SELECT", "WITH":
	default:
		return "", reject("%s statements are not allowed", keyword)
	}
	if found := writeKeywords.FindString(masked); found != "" {
		return "", reject("keyword %s is not allowed", strings.ToUpper(found))
	}
	if dialect == DialectDuckDB {
		for _, call := range functionCallName.FindAllStringSubmatch(masked, -1) {
			if _, blocked := duckdbBlockedFunctions[strings.ToLower(call[1])]; blocked {
				return "", reject("function %s is not allowed", strings.ToLower(call[1]))
			}
		}
		if err := checkDuckDBRelations(normalized); err != nil {
			return "", err
		}
	}
	if dialect == DialectPostgres {
		if err := checkPostgresTree(normalized); err != nil {
			return "", err
		}
	}
	return normalized, nil
}

// Normalize strips markdown code fences, surrounding whitespace and trailing
// semicolons from model output.
func Normalize(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		trimmed = strings.TrimSpace(match[1])
	}
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// maskLiterals blanks out string literals, quoted identifiers and comments so
// keyword checks only see SQL structure.
func maskLiterals(sqlText string) (string, error) {
	var out strings.Builder
	out.Grow(len(sqlText))
	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			end := closingQuote(runes, i+1, r)
			if end < 0 {
				return "", fmt.Errorf("unterminated quoted text")
			}
			out.WriteString(strings.Repeat(" ", end-i+1))
			i = end
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			end := i
			for end < len(runes) && runes[end] != '\n' {
				end++
			}
			out.WriteString(strings.Repeat(" ", end-i))
			i = end - 1
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := closingComment(runes, i+2)
			if end < 0 {
				return "", fmt.Errorf("unterminated comment")
			}
			out.WriteString(strings.Repeat(" ", end-i+1))
			i = end
		default:
			out.WriteRune(r)
		}
	}
	return out.String(), nil
}

// checkDuckDBRelations rejects quoted relations that DuckDB resolves as files
// through a replacement scan, as in FROM '/data/x.csv' or JOIN "x.parquet".
// A quoted identifier without a path or extension is still a table name, and
// FROM inside a call such as EXTRACT(YEAR FROM '2024-01-01') is not a relation.
func checkDuckDBRelations(sqlText string) error {
	runes := []rune(sqlText)
	var (
		lastWord string
		clause   string
		previous rune
		clauses  []string
	)
	// fresh is true until the first token of the current statement or group.
	fresh := true
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			continue
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			continue
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := closingComment(runes, i+2)
			if end < 0 {
				return reject("unterminated comment")
			}
			i = end
			continue
		case r == '\'' || r == '"' || r == '`':
			end := closingQuote(runes, i+1, r)
			if end < 0 {
				return reject("unterminated quoted text")
			}
			body := string(runes[i+1 : end])
			afterKeyword := previous == 'w' && (lastWord == "JOIN" || (lastWord == "FROM" && clause == "FROM"))
			afterComma := previous == ',' && clause == "FROM"
			if (afterKeyword || afterComma) && (r == '\'' || strings.ContainsAny(body, "./\\:")) {
				return reject("file reference %q is not allowed", body)
			}
			previous, lastWord = 'q', ""
			i = end
		case r == '(':
			clauses = append(clauses, clause)
			clause, previous, lastWord = "", r, ""
			fresh = true
			continue
		case r == ')':
			if n := len(clauses); n > 0 {
				clause = clauses[n-1]
				clauses = clauses[:n-1]
			}
			previous, lastWord = r, ""
		case isWordRune(r):
			start := i
			for i+1 < len(runes) && isWordRune(runes[i+1]) {
				i++
			}
			lastWord = strings.ToUpper(string(runes[start : i+1]))
			if lastWord == "FROM" {
				if clause == "SELECT" || fresh {
					clause = "FROM"
				}
			} else if _, ok := clauseKeywords[lastWord]; ok {
				clause = lastWord
			}
			previous = 'w'
		default:
			previous, lastWord = r, ""
		}
		fresh = false
	}
	return nil
}

var clauseKeywords = map[string]struct{}{
	"SELECT": {}, "WHERE": {}, "GROUP": {}, "HAVING": {},
	"ORDER": {}, "LIMIT": {}, "OFFSET": {}, "QUALIFY": {}, "WINDOW": {},
	"UNION": {}, "INTERSECT": {}, "EXCEPT": {}, "ON": {}, "USING": {},
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func closingQuote(runes []rune, start int, quote rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return -1
}

// closingComment returns the index of the '/' that ends a block comment.
func closingComment(runes []rune, start int) int {
	for i := start; i+1 < len(runes); i++ {
		if runes[i] == '*' && runes[i+1] == '/' {
			return i + 1
		}
	}
	return -1
}
