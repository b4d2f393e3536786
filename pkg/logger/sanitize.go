package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "***"

// Credentials are never logged.
var secretKeys = []string{"password", "token", "secret", "authorization", "cookie", "apikey"}

// Payout destinations keep their last four characters so support can match
// a log line to a request.
var accountKeys = []string{"iban", "pix", "paypal", "accountnumber", "email", "bankdetails"}

type sensitivity int

const (
	plain sensitivity = iota
	account
	secret
)

// SanitizeFields returns a copy of fields with credentials redacted and payout
// account identifiers reduced to their last four characters. Nested maps and
// slices are walked.
func SanitizeFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		switch classify(field.Key) {
		case secret:
			out = append(out, zap.String(field.Key, redacted))
			continue
		case account:
			if field.Type == zapcore.StringType {
				out = append(out, zap.String(field.Key, maskTail(field.String)))
				continue
			}
		}

		value, ok := fieldValue(field)
		if !ok {
			out = append(out, field)
			continue
		}
		out = append(out, zap.Any(field.Key, scrub(classify(field.Key), value)))
	}
	return out
}

func scrub(inherited sensitivity, value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			level := classify(k)
			if level < inherited {
				level = inherited
			}
			out[k] = scrub(level, v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = scrub(inherited, item)
		}
		return out
	case string:
		switch inherited {
		case secret:
			return redacted
		case account:
			return maskTail(typed)
		}
		return typed
	default:
		if inherited != plain {
			return redacted
		}
		return typed
	}
}

func fieldValue(field zap.Field) (interface{}, bool) {
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)
	value, ok := enc.Fields[field.Key]
	return value, ok
}

func maskTail(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 4 {
		return redacted
	}
	return redacted + trimmed[len(trimmed)-4:]
}

func classify(key string) sensitivity {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	if normalized == "" {
		return plain
	}

	for _, token := range secretKeys {
		if strings.Contains(normalized, token) {
			return secret
		}
	}
	for _, token := range accountKeys {
		if strings.Contains(normalized, token) {
			return account
		}
	}
	return plain
}
