package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/radio-control/commandd/internal/server"
)

func TestParseInstruction(t *testing.T) {
	tests := []struct {
		in      string
		want    Instruction
		wantErr bool
	}{
		{"noop", Instruction{Name: "noop", Args: []any{}}, false},
		{"echo:", Instruction{Name: "echo", Args: []any{}}, false},
		{"echo:x", Instruction{Name: "echo", Args: []any{"x"}}, false},
		{`set:freq,2412`, Instruction{Name: "set", Args: []any{"freq", float64(2412)}}, false},
		{`echo:true,null,"quoted"`, Instruction{Name: "echo", Args: []any{true, nil, "quoted"}}, false},
		{":x", Instruction{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstruction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInstruction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseInstruction(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	var gotType string
	var gotBody Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", server.ContentType)
		_, _ = w.Write([]byte(`"x"`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Submit(context.Background(), Submission{Instructions: []Instruction{{Name: "noop"}, {Name: "echo", Args: []any{"x"}}}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if string(resp) != `"x"` {
		t.Errorf(`Expected "x", got %s`, resp)
	}
	if gotType != server.ContentType {
		t.Errorf("Expected content type %s, got %s", server.ContentType, gotType)
	}
	if len(gotBody.Instructions) != 2 || gotBody.Instructions[0].Args == nil {
		t.Errorf("Unexpected submission on the wire: %+v", gotBody)
	}

	if _, err := c.Submit(context.Background(), Submission{}); !errors.Is(err, ErrEmptySubmission) {
		t.Errorf("Expected ErrEmptySubmission, got %v", err)
	}
}

func TestSubmitStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, http.StatusGatewayTimeout, server.CodeTimeout, "no response", "req-1")
	}))
	defer srv.Close()

	_, err := New(srv.URL).SubmitRaw(context.Background(), []byte(`{"instructions":[{"name":"noop"}]}`))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if se.Status != http.StatusGatewayTimeout || se.Envelope.Code != server.CodeTimeout || se.Envelope.CorrelationID != "req-1" {
		t.Errorf("Unexpected status error: %+v", se)
	}
}
