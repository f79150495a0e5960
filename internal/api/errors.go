package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/domain"
)

// normalizeResponse maps a non-2xx answer onto the error taxonomy callers
// understand. The server message is kept for display.
func normalizeResponse(path string, status int, body []byte) error {
	message, fields := parseErrorBody(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if apipaths.RequiresAuth(path) {
			return &domain.DomainError{
				Code:    domain.CodeAuthExpired,
				Message: orDefault(message, domain.ErrAuthExpired.Message),
				Status:  status,
			}
		}
		// Only login judges credentials; elsewhere a refusal is about the
		// request itself, such as a missing or stale CSRF token
		if path != apipaths.Login || isCSRFRejection(message) {
			err := domain.WrapValidationError(message, fields, nil).(*domain.DomainError)
			err.Status = status
			return err
		}
		return &domain.DomainError{
			Code:    domain.CodeInvalidCredentials,
			Message: orDefault(message, firstOrDefault(fields, domain.ErrInvalidCredentials.Message)),
			Status:  status,
			Fields:  fields,
		}
	case status >= http.StatusInternalServerError:
		return &domain.DomainError{
			Code:    domain.CodeServerError,
			Message: orDefault(message, fmt.Sprintf("server error (%d)", status)),
			Status:  status,
		}
	case status >= http.StatusBadRequest:
		err := domain.WrapValidationError(message, fields, nil).(*domain.DomainError)
		err.Status = status
		return err
	default:
		return domain.WrapServerError(status, fmt.Sprintf("unexpected status %d", status), nil)
	}
}

// parseErrorBody understands the shapes the API answers with:
// {"error": "..."}, {"detail": "..."}, {"message": "..."} and
// Django REST field maps such as {"email": ["..."], "non_field_errors": ["..."]}.
func parseErrorBody(body []byte) (string, map[string][]string) {
	if len(body) == 0 {
		return "", nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		text := strings.TrimSpace(string(body))
		// Plain-text answers are shown; HTML error pages are not
		if text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
			return text, nil
		}
		return "", nil
	}

	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s, nil
		}
	}

	fields := make(map[string][]string)
	for key, value := range payload {
		if msgs := toStrings(value); len(msgs) > 0 {
			fields[key] = msgs
		}
	}
	if len(fields) == 0 {
		return "", nil
	}
	if msgs, ok := fields["non_field_errors"]; ok {
		return strings.Join(msgs, " "), fields
	}
	return "", fields
}

// isCSRFRejection recognises the CSRF middleware's refusal message
func isCSRFRejection(message string) bool {
	return strings.HasPrefix(message, "CSRF Failed")
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstOrDefault(fields map[string][]string, fallback string) string {
	if len(fields) == 0 {
		return fallback
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(fields[keys[0]], " ")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
