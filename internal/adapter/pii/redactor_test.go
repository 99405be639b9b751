package pii

import (
	"io"
	"log/slog"
	"testing"

	"github.com/valyala/fastjson"

	"github.com/V4T54L/fieldlog/internal/domain"
)

func TestRedactor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redactor := NewRedactor([]string{"email", "SSN"}, logger)

	tests := []struct {
		name           string
		itemName       string
		value          *string
		expectedValue  string
		expectRedacted bool
		expectErr      bool
	}{
		{
			name:           "Sensitive name",
			itemName:       "Email",
			value:          domain.StringPtr("test@example.com"),
			expectedValue:  RedactedPlaceholder,
			expectRedacted: true,
		},
		{
			name:           "Redact single field",
			itemName:       "user",
			value:          domain.StringPtr(`{"email": "test@example.com", "user_id": 123}`),
			expectedValue:  `{"email":"[REDACTED]","user_id":123}`,
			expectRedacted: true,
		},
		{
			name:           "Redact multiple fields",
			itemName:       "user",
			value:          domain.StringPtr(`{"email": "test@example.com", "ssn": "000-00-0000"}`),
			expectedValue:  `{"email":"[REDACTED]","ssn":"[REDACTED]"}`,
			expectRedacted: true,
		},
		{
			name:          "No fields to redact",
			itemName:      "event",
			value:         domain.StringPtr(`{"user_id": 123, "action": "login"}`),
			expectedValue: `{"user_id": 123, "action": "login"}`,
		},
		{
			name:          "Plain value",
			itemName:      "rows",
			value:         domain.StringPtr("12"),
			expectedValue: "12",
		},
		{
			name:          "Invalid JSON value",
			itemName:      "user",
			value:         domain.StringPtr(`{"email": "test@example.com"`),
			expectedValue: `{"email": "test@example.com"`,
			expectErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &domain.DataItem{Name: tt.itemName, Value: tt.value}

			redacted, err := redactor.Redact(item)
			if (err != nil) != tt.expectErr {
				t.Fatalf("Redact() error = %v, wantErr %v", err, tt.expectErr)
			}
			if redacted != tt.expectRedacted {
				t.Errorf("Redact() redacted = %v, want %v", redacted, tt.expectRedacted)
			}

			got := *item.Value
			if !tt.expectRedacted || tt.expectedValue == RedactedPlaceholder {
				if got != tt.expectedValue {
					t.Errorf("value got = %q, want %q", got, tt.expectedValue)
				}
				return
			}
			// Compare objects key by key to avoid formatting differences.
			want := fastjson.MustParse(tt.expectedValue).GetObject()
			actual := fastjson.MustParse(got).GetObject()
			if want.Len() != actual.Len() {
				t.Errorf("object length mismatch: got %d, want %d", actual.Len(), want.Len())
			}
			want.Visit(func(key []byte, v *fastjson.Value) {
				if a := actual.Get(string(key)); a == nil || a.String() != v.String() {
					t.Errorf("mismatch for key %s: got %v, want %v", key, a, v)
				}
			})
		})
	}
}

func TestRedactor_NoFields(t *testing.T) {
	redactor := NewRedactor(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	item := &domain.DataItem{Name: "email", Value: domain.StringPtr("a@b.c")}
	if redacted, err := redactor.Redact(item); redacted || err != nil {
		t.Errorf("expected no redaction, got %v, %v", redacted, err)
	}
}
