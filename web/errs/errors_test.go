package errs_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/adamwoolhether/downloader/web/errs"
)

var errNotFound = errors.New("job not found")

func TestNew(t *testing.T) {
	err := errs.New(http.StatusNotFound, errNotFound)

	if err.Code != http.StatusNotFound {
		t.Fatalf("Code = %d, want %d", err.Code, http.StatusNotFound)
	}
	if err.Message != "job not found" {
		t.Fatalf("Message = %q, want %q", err.Message, "job not found")
	}
	if err.IsInternal() {
		t.Fatal("New should not be internal")
	}
	if !errors.Is(err, errNotFound) {
		t.Fatal("Error should unwrap to its cause")
	}
	if !strings.Contains(err.FileName, "errors_test.go") {
		t.Fatalf("FileName = %q, want the caller's file", err.FileName)
	}
	if !strings.HasSuffix(err.FuncName, "TestNew") {
		t.Fatalf("FuncName = %q, want the caller", err.FuncName)
	}
}

func TestNewf(t *testing.T) {
	err := errs.Newf(http.StatusConflict, "job %s: %w", "abc", errNotFound)

	if err.Message != "job abc: job not found" {
		t.Fatalf("Message = %q", err.Message)
	}
	if !errors.Is(err, errNotFound) {
		t.Fatal("Newf should keep %w causes")
	}
}

func TestNewInternal(t *testing.T) {
	err := errs.NewInternal(fmt.Errorf("disk full"))

	if err.Code != http.StatusInternalServerError || !err.IsInternal() {
		t.Fatalf("got code %d internal %t", err.Code, err.IsInternal())
	}
	if !strings.Contains(err.FileName, "errors_test.go") {
		t.Fatalf("FileName = %q, want the caller's file", err.FileName)
	}
}

func TestError_JSON(t *testing.T) {
	b, err := json.Marshal(errs.New(http.StatusBadRequest, errors.New("bad")))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := string(b), `{"code":400,"message":"bad"}`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestFieldErrors(t *testing.T) {
	err := errs.NewFieldsError("downloads[0].url", errors.New("must be http or https"))

	if got, want := err.Error(), `[{"field":"downloads[0].url","error":"must be http or https"}]`; got != want {
		t.Fatalf("Error() = %s, want %s", got, want)
	}

	wrapped := fmt.Errorf("submit: %w", err)
	if !errs.IsFieldErrors(wrapped) {
		t.Fatal("IsFieldErrors should see through wrapping")
	}
	if errs.IsFieldErrors(errNotFound) {
		t.Fatal("IsFieldErrors should be false for other errors")
	}

	fe, _ := errors.AsType[errs.FieldErrors](err)
	if fe.Fields()["downloads[0].url"] != "must be http or https" {
		t.Fatalf("Fields() = %v", fe.Fields())
	}
}
