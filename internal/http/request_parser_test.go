package http

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fintrack/internal/core"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"description": "Salary", "amount": 42.5, "isRecurring": true, "note": null}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser, err := ParseRequestBody(req)
	if err != nil {
		t.Fatalf("ParseRequestBody() error = %v", err)
	}
	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if got := parser.Get("description"); got != "Salary" {
		t.Errorf("Get('description') = %q", got)
	}
	if got := parser.Get("amount"); got != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", got)
	}
	if got := parser.Get("isRecurring"); got != "true" {
		t.Errorf("Get('isRecurring') = %q", got)
	}
	if _, ok := parser.Lookup("note"); ok {
		t.Error("null values should count as absent")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "description=Coffee+beans&amount=12&empty="
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser, err := ParseRequestBody(req)
	if err != nil {
		t.Fatalf("ParseRequestBody() error = %v", err)
	}
	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if got := parser.Get("description"); got != "Coffee beans" {
		t.Errorf("Get('description') = %q", got)
	}
	if v, ok := parser.Lookup("empty"); !ok || v != "" {
		t.Errorf("Lookup('empty') = %q, %v; want present and empty", v, ok)
	}
	if _, ok := parser.Lookup("missing"); ok {
		t.Error("Lookup('missing') reported present")
	}
}

func TestRequestBodyParser_Multipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("description", "Receipt")
	fw, _ := mw.CreateFormFile("file", "scan 1.pdf")
	_, _ = fw.Write([]byte("%PDF"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/test", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	parser, err := ParseRequestBody(req)
	if err != nil {
		t.Fatalf("ParseRequestBody() error = %v", err)
	}
	defer parser.Close()

	if got := parser.Get("description"); got != "Receipt" {
		t.Errorf("Get('description') = %q", got)
	}
	file, name, ok := parser.File()
	if !ok {
		t.Fatal("expected an uploaded file")
	}
	if name != "scan 1.pdf" {
		t.Errorf("file name = %q", name)
	}
	content, _ := io.ReadAll(file)
	if string(content) != "%PDF" {
		t.Errorf("file content = %q", content)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"broken"`))
	req.Header.Set("Content-Type", "application/json")

	if _, err := ParseRequestBody(req); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequestBodyParser_SanitizesControlCharacters(t *testing.T) {
	form := url.Values{"description": {"Lunch\x00\x07 out"}}
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser, err := ParseRequestBody(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := parser.Get("description"); got != "Lunch out" {
		t.Errorf("Get('description') = %q", got)
	}
}

func parserFor(t *testing.T, form url.Values) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p, err := ParseRequestBody(req)
	if err != nil {
		t.Fatalf("ParseRequestBody() error = %v", err)
	}
	return p
}

func TestTransactionFromBody(t *testing.T) {
	base := func() url.Values {
		return url.Values{
			"description": {"Groceries"},
			"amount":      {"25.40"},
			"date":        {"2024-03-10"},
			"category":    {"Food"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(url.Values)
		wantCents int64
		wantErr   string
	}{
		{name: "signed amount stands", mutate: func(url.Values) {}, wantCents: 2540},
		{name: "expense toggle negates", mutate: func(v url.Values) { v.Set("type", "expense") }, wantCents: -2540},
		{name: "income toggle forces positive", mutate: func(v url.Values) {
			v.Set("amount", "-25.40")
			v.Set("type", "income")
		}, wantCents: 2540},
		{name: "unknown toggle", mutate: func(v url.Values) { v.Set("type", "transfer") }, wantErr: "type"},
		{name: "missing category", mutate: func(v url.Values) { v.Del("category") }, wantErr: "body"},
		{name: "bad date", mutate: func(v url.Values) { v.Set("date", "10/03/2024") }, wantErr: "date"},
		{name: "bad amount", mutate: func(v url.Values) { v.Set("amount", "abc") }, wantErr: "amount"},
		{name: "bad recurring flag", mutate: func(v url.Values) { v.Set("isRecurring", "maybe") }, wantErr: "isRecurring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := base()
			tt.mutate(form)
			got, err := transactionFromBody(parserFor(t, form))
			if tt.wantErr != "" {
				ve, ok := err.(*core.ValidationError)
				if !ok {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if ve.Field != tt.wantErr {
					t.Errorf("field = %q, want %q", ve.Field, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Amount.Cents != tt.wantCents {
				t.Errorf("amount = %d, want %d", got.Amount.Cents, tt.wantCents)
			}
			if got.Date.String() != "2024-03-10" || got.Category != "Food" {
				t.Errorf("unexpected record %+v", got)
			}
		})
	}
}

func TestTransactionFromBody_MissingFieldsReported(t *testing.T) {
	_, err := transactionFromBody(parserFor(t, url.Values{"description": {"x"}}))
	ve, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"amount", "date", "category"} {
		if !ve.Missing[f] {
			t.Errorf("%s not reported missing: %v", f, ve.Missing)
		}
	}
	if ve.Missing["description"] {
		t.Error("description reported missing")
	}
}

func TestTransactionFromBody_Recurring(t *testing.T) {
	form := url.Values{
		"description":    {"Gym"},
		"amount":         {"-20"},
		"date":           {"2024-01-01"},
		"category":       {"Health"},
		"isRecurring":    {"true"},
		"repeatInterval": {"Weekly"},
	}
	got, err := transactionFromBody(parserFor(t, form))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsRecurring || got.RepeatInterval != core.Weekly {
		t.Errorf("recurrence = %v/%q", got.IsRecurring, got.RepeatInterval)
	}
}

func TestPatchFromBody(t *testing.T) {
	patch, err := patchFromBody(parserFor(t, url.Values{
		"amount":      {"10"},
		"type":        {"expense"},
		"isRecurring": {"false"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if patch.Amount == nil || patch.Amount.Cents != -1000 {
		t.Errorf("amount = %v", patch.Amount)
	}
	if patch.IsRecurring == nil || *patch.IsRecurring {
		t.Errorf("isRecurring = %v", patch.IsRecurring)
	}
	if patch.Description != nil || patch.Date != nil || patch.Category != nil || patch.RepeatInterval != nil {
		t.Errorf("absent fields were set: %+v", patch)
	}

	empty, err := patchFromBody(parserFor(t, url.Values{}))
	if err != nil || !empty.IsEmpty() {
		t.Errorf("empty body: patch=%+v err=%v", empty, err)
	}
}

func TestParseTopN(t *testing.T) {
	cases := map[string]int{"": 5, "3": 3, "abc": 5, "-2": 0, "500": 50}
	for in, want := range cases {
		q := url.Values{}
		if in != "" {
			q.Set("top", in)
		}
		if got := parseTopN(q, 5); got != want {
			t.Errorf("top=%q: got %d, want %d", in, got, want)
		}
	}
}
