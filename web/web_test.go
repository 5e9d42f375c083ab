package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/adamwoolhether/downloader/web"
	"github.com/adamwoolhether/downloader/web/errs"
)

type item struct {
	URL string `json:"url" validate:"required,url"`
}

type request struct {
	Name  string `json:"name" validate:"required"`
	Items []item `json:"items" validate:"required,min=1,dive"`
	Skip  string `json:"-"`
}

func TestDecode(t *testing.T) {
	tests := map[string]struct {
		body       string
		wantFields map[string]string
		wantErr    bool
	}{
		"valid": {
			body: `{"name":"a","items":[{"url":"https://example.com/f"}]}`,
		},
		"missing fields": {
			body: `{"items":[]}`,
			wantFields: map[string]string{
				"name":  "This field is required",
				"items": "items must contain at least 1 item",
			},
		},
		"nested": {
			body: `{"name":"a","items":[{"url":"https://example.com"},{"url":"nope"}]}`,
			wantFields: map[string]string{
				"items[1].url": "url must be a valid URL",
			},
		},
		"unknown field": {
			body:    `{"name":"a","items":[{"url":"https://x.io"}],"extra":1}`,
			wantErr: true,
		},
		"not json": {
			body:    `{`,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))

			var req request
			err := web.Decode(r, &req)

			switch {
			case tc.wantFields != nil:
				fe, ok := errors.AsType[errs.FieldErrors](err)
				if !ok {
					t.Fatalf("expected FieldErrors, got %v", err)
				}
				if diff := cmp.Diff(tc.wantFields, fe.Fields()); diff != "" {
					t.Fatalf("fields mismatch (-want +got):\n%s", diff)
				}
			case tc.wantErr:
				if err == nil {
					t.Fatal("expected error")
				}
				if errs.IsFieldErrors(err) {
					t.Fatalf("decode failures should not be field errors: %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestParamUUID(t *testing.T) {
	id := uuid.New()

	tests := map[string]struct {
		value   string
		want    uuid.UUID
		wantErr bool
	}{
		"valid":   {value: id.String(), want: id},
		"invalid": {value: "42", wantErr: true},
		"missing": {value: "", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.SetPathValue("id", tc.value)

			got, err := web.ParamUUID(r, "id")
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %t", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("id = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := web.RespondJSON(context.Background(), w, http.StatusAccepted, map[string]string{"status": "ok"}); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got["status"] != "ok" {
		t.Fatalf("body = %s, err = %v", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	if err := web.RespondJSON(context.Background(), w, http.StatusNoContent, "ignored"); err != nil {
		t.Fatal(err)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("204 should have no body, got %q", w.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	if err := web.RespondError(context.Background(), w, errs.New(http.StatusConflict, errors.New("still running"))); err != nil {
		t.Fatal(err)
	}

	if got, want := w.Body.String(), `{"code":409,"message":"still running"}`; got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}
