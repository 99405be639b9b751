package pii

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor blanks out sensitive values of data items before they are logged.
type Redactor struct {
	fieldsToRedact map[string]struct{} // lower-case names
	parsers        fastjson.ParserPool
	logger         *slog.Logger
}

// NewRedactor creates a Redactor for the given field names. Matching is
// case-insensitive.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field = strings.ToLower(strings.TrimSpace(field)); field != "" {
			fieldSet[field] = struct{}{}
		}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger.With("component", "pii_redactor"),
	}
}

func (r *Redactor) sensitive(name string) bool {
	_, ok := r.fieldsToRedact[strings.ToLower(name)]
	return ok
}

// Redact modifies the data item in place. A sensitive name blanks the whole
// value; a JSON object value has its sensitive top-level keys blanked. It
// reports whether anything was replaced. A value that looks like JSON but
// does not parse is left as is and the parse error returned.
func (r *Redactor) Redact(item *domain.DataItem) (bool, error) {
	if len(r.fieldsToRedact) == 0 || item.Value == nil {
		return false, nil
	}
	if r.sensitive(item.Name) {
		item.Value = domain.StringPtr(RedactedPlaceholder)
		return true, nil
	}

	value := strings.TrimSpace(*item.Value)
	if !strings.HasPrefix(value, "{") {
		return false, nil
	}
	p := r.parsers.Get()
	defer r.parsers.Put(p)
	v, err := p.Parse(value)
	if err != nil {
		r.logger.Warn("failed to parse data value for PII redaction", "error", err, "name", item.Name)
		return false, fmt.Errorf("failed to parse data value: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return false, nil
	}

	var keys []string
	obj.Visit(func(key []byte, _ *fastjson.Value) {
		if r.sensitive(string(key)) {
			keys = append(keys, string(key))
		}
	})
	if len(keys) == 0 {
		return false, nil
	}
	var arena fastjson.Arena
	for _, key := range keys {
		obj.Set(key, arena.NewString(RedactedPlaceholder))
	}
	item.Value = domain.StringPtr(v.String())
	return true, nil
}
