// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing request bodies. JSON,
// form-encoded and multipart bodies are read through one lookup API so the
// handlers do not care which encoding the client picked.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"fintrack/internal/core"
)

const multipartMemory = 8 << 20

var errInvalidBody = core.NewValidationError("body", "Invalid request body")

// RequestBodyParser reads a request body once and exposes its fields.
type RequestBodyParser struct {
	contentType string
	jsonData    map[string]any
	formData    url.Values
	file        multipart.File
	fileName    string
}

// ParseRequestBody parses r according to its Content-Type. Bodies that are
// neither multipart nor declared JSON are sniffed: a leading '{' is JSON,
// anything else form-encoded.
func ParseRequestBody(r *http.Request) (*RequestBodyParser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	p := &RequestBodyParser{contentType: mediaType}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, bodyError(err)
		}
		p.formData = url.Values(r.MultipartForm.Value)
		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			p.file = file
			p.fileName = header.Filename
		case !errors.Is(err, http.ErrMissingFile):
			return nil, bodyError(err)
		}
		return p, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "":
		p.formData = url.Values{}
	case mediaType == "application/json" || trimmed[0] == '{':
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			return nil, errInvalidBody
		}
	default:
		p.formData, err = url.ParseQuery(trimmed)
		if err != nil {
			return nil, errInvalidBody
		}
	}
	return p, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return core.NewValidationError("body", "Request body too large")
	}
	return errInvalidBody
}

// Lookup returns the sanitized value of key and whether it was sent at all.
func (p *RequestBodyParser) Lookup(key string) (string, bool) {
	if p.jsonData != nil {
		val, ok := p.jsonData[key]
		if !ok || val == nil {
			return "", false
		}
		return strings.TrimSpace(sanitizeInput(stringValue(val))), true
	}
	if p.formData != nil {
		if _, ok := p.formData[key]; ok {
			return strings.TrimSpace(sanitizeInput(p.formData.Get(key))), true
		}
	}
	return "", false
}

// Get returns the value of key, or "" when absent.
func (p *RequestBodyParser) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// File returns the uploaded "file" part, if any.
func (p *RequestBodyParser) File() (multipart.File, string, bool) {
	return p.file, p.fileName, p.file != nil
}

// Close releases the uploaded file.
func (p *RequestBodyParser) Close() {
	if p.file != nil {
		p.file.Close()
	}
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newline.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, s)
}

// parseBool accepts the spellings HTML forms and JSON clients send.
func parseBool(field, s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "on", "yes":
		return true, nil
	case "", "false", "0", "off", "no":
		return false, nil
	}
	return false, core.NewValidationError(field, field+" must be true or false")
}

// signedAmount applies the optional income|expense toggle to a parsed
// amount. The toggle only fixes the sign; without it the amount's own sign
// stands.
func signedAmount(amount core.Money, kind string) (core.Money, error) {
	switch strings.ToLower(kind) {
	case "":
		return amount, nil
	case "income":
		return amount.Abs(), nil
	case "expense":
		return amount.Abs().Neg(), nil
	}
	return core.Money{}, core.NewValidationError("type", "type must be income or expense")
}

// transactionFromBody builds a new record from the request fields. Missing
// required fields are reported together.
func transactionFromBody(p *RequestBodyParser) (core.Transaction, error) {
	required := []string{"description", "amount", "date", "category"}
	var missing map[string]bool
	for _, name := range required {
		if p.Get(name) == "" {
			if missing == nil {
				missing = make(map[string]bool, len(required))
				for _, n := range required {
					missing[n] = false
				}
			}
			missing[name] = true
		}
	}
	if missing != nil {
		return core.Transaction{}, &core.ValidationError{
			Field:   "body",
			Message: "Description, amount, date and category are required",
			Missing: missing,
		}
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	if amount, err = signedAmount(amount, p.Get("type")); err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		return core.Transaction{}, err
	}
	recurring, err := parseBool("isRecurring", p.Get("isRecurring"))
	if err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		Description: p.Get("description"),
		Amount:      amount,
		Date:        date,
		Category:    p.Get("category"),
		IsRecurring: recurring,
	}
	if recurring {
		interval, err := core.ParseRepeatInterval(p.Get("repeatInterval"))
		if err != nil {
			return core.Transaction{}, err
		}
		t.RepeatInterval = interval
	}
	return t, nil
}

// patchFromBody builds a partial update from the fields present in the
// request. The type toggle applies to an amount sent in the same request.
func patchFromBody(p *RequestBodyParser) (core.TransactionPatch, error) {
	var patch core.TransactionPatch

	if v, ok := p.Lookup("description"); ok {
		patch.Description = &v
	}
	if v, ok := p.Lookup("category"); ok {
		patch.Category = &v
	}
	if v, ok := p.Lookup("amount"); ok {
		amount, err := core.ParseAmount(v)
		if err != nil {
			return patch, err
		}
		if amount, err = signedAmount(amount, p.Get("type")); err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if v, ok := p.Lookup("date"); ok {
		date, err := core.ParseDate(v)
		if err != nil {
			return patch, err
		}
		patch.Date = &date
	}
	if v, ok := p.Lookup("isRecurring"); ok {
		recurring, err := parseBool("isRecurring", v)
		if err != nil {
			return patch, err
		}
		patch.IsRecurring = &recurring
	}
	if v, ok := p.Lookup("repeatInterval"); ok && v != "" {
		interval, err := core.ParseRepeatInterval(v)
		if err != nil {
			return patch, err
		}
		patch.RepeatInterval = &interval
	}
	return patch, nil
}

// parseTopN reads ?top=N, clamping to [0, 50].
func parseTopN(query url.Values, fallback int) int {
	v := strings.TrimSpace(query.Get("top"))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return max(0, min(50, n))
}
