package orchestrator

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var defaultCurrencyTokens = []string{"revenue", "amount", "price", "cost", "sales", "total", "spend", "income", "profit"}

var defaultCountTokens = []string{"count", "cnt", "num", "number", "qty", "quantity"}

type FormatOptions struct {
	CurrencySuffix string
	// CurrencyColumns and CountColumns extend the builtin name tokens.
	CurrencyColumns []string
	CountColumns    []string
}

// Formatter renders result values for prompts. Counts are plain integers;
// currency values carry thousands separators, two decimals and a suffix.
type Formatter struct {
	suffix         string
	currencyTokens map[string]struct{}
	countTokens    map[string]struct{}
}

func NewFormatter(options FormatOptions) Formatter {
	suffix := strings.TrimSpace(options.CurrencySuffix)
	if suffix == "" {
		suffix = "SAR"
	}
	return Formatter{
		suffix:         suffix,
		currencyTokens: tokenSet(defaultCurrencyTokens, options.CurrencyColumns),
		countTokens:    tokenSet(defaultCountTokens, options.CountColumns),
	}
}

func tokenSet(lists ...[]string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, list := range lists {
		for _, token := range list {
			token = strings.ToLower(strings.TrimSpace(token))
			if token != "" {
				set[token] = struct{}{}
			}
		}
	}
	return set
}

type columnKind int

const (
	columnPlain columnKind = iota
	columnCount
	columnCurrency
)

// classify matches the full column name first, then its snake_case parts.
// Count tokens win over currency tokens, so total_count is a count.
func (f Formatter) classify(column string) columnKind {
	name := strings.ToLower(strings.TrimSpace(column))
	if _, ok := f.countTokens[name]; ok {
		return columnCount
	}
	if _, ok := f.currencyTokens[name]; ok {
		return columnCurrency
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == ' ' || r == '.' })
	for _, part := range parts {
		if _, ok := f.countTokens[part]; ok {
			return columnCount
		}
	}
	for _, part := range parts {
		if _, ok := f.currencyTokens[part]; ok {
			return columnCurrency
		}
	}
	return columnPlain
}

func (f Formatter) FormatValue(column string, value any) string {
	kind := f.classify(column)
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(typed)
	case string:
		if kind != columnPlain {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
				return f.formatFloat(kind, parsed)
			}
		}
		return typed
	case []byte:
		return f.FormatValue(column, string(typed))
	case time.Time:
		return typed.Format(time.RFC3339)
	case *big.Int:
		if typed == nil {
			return "NULL"
		}
		if kind == columnCurrency {
			parsed, _ := new(big.Float).SetInt(typed).Float64()
			return f.formatCurrency(parsed)
		}
		return typed.String()
	case float32:
		return f.formatFloat(kind, float64(typed))
	case float64:
		return f.formatFloat(kind, typed)
	case interface{ Float64() float64 }:
		return f.formatFloat(kind, typed.Float64())
	}

	if integer, ok := asInt64(value); ok {
		if kind == columnCurrency {
			return f.formatCurrency(float64(integer))
		}
		return strconv.FormatInt(integer, 10)
	}
	if unsigned, ok := value.(uint64); ok {
		return strconv.FormatUint(unsigned, 10)
	}
	return fmt.Sprint(value)
}

func (f Formatter) formatFloat(kind columnKind, value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	switch kind {
	case columnCurrency:
		return f.formatCurrency(value)
	case columnCount:
		return strconv.FormatFloat(math.Round(value), 'f', 0, 64)
	}
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		return strconv.FormatFloat(value, 'f', 0, 64)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (f Formatter) formatCurrency(value float64) string {
	return humanize.FormatFloat("#,###.##", value) + " " + f.suffix
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	default:
		return 0, false
	}
}

// FormatRows renders up to maxRows rows as "- col: value, col: value" lines
// and states how many rows were left out.
func (f Formatter) FormatRows(columns []string, rows [][]any, maxRows int, truncatedAtSource bool) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	shown := rows
	if maxRows > 0 && len(rows) > maxRows {
		shown = rows[:maxRows]
	}

	var b strings.Builder
	for _, row := range shown {
		b.WriteString("- ")
		for i, value := range row {
			if i > 0 {
				b.WriteString(", ")
			}
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(columns) {
				name = columns[i]
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(f.FormatValue(name, value))
		}
		b.WriteString("\n")
	}
	if omitted := len(rows) - len(shown); omitted > 0 {
		fmt.Fprintf(&b, "(%d more rows not shown)\n", omitted)
	}
	if truncatedAtSource {
		b.WriteString("(result truncated at the configured row limit)\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
