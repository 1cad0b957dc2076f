package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"snatcher/internal/api"
	"snatcher/internal/records"
	"snatcher/internal/testsupport"
)

func startTestServer(t *testing.T, pipe Pipeline) (*Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d := testDaemon(t, cfg, pipe)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.server.addr()
	if addr == "" {
		t.Fatal("api server did not bind")
	}
	return d, "http://" + addr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestAPIStatusEndpoint(t *testing.T) {
	_, base := startTestServer(t, newFakePipeline())

	var status api.DaemonStatus
	if code := getJSON(t, base+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestAPISubmitAndDescribe(t *testing.T) {
	pipe := newFakePipeline()
	_, base := startTestServer(t, pipe)

	var submitted api.SubmitResponse
	code := postJSON(t, base+"/api/records", api.SubmitRequest{ExternalKey: "k-1", Title: "Engineer"}, &submitted)
	if code != http.StatusCreated {
		t.Fatalf("submit code = %d", code)
	}
	if !submitted.Created || submitted.Record.ID == "" {
		t.Fatalf("submit resp = %+v", submitted)
	}

	var described api.RecordResponse
	code = getJSON(t, fmt.Sprintf("%s/api/records/%s", base, submitted.Record.ID), &described)
	if code != http.StatusOK || described.Record.Title != "Engineer" {
		t.Fatalf("describe code=%d resp=%+v", code, described)
	}
}

func TestAPIRejectsUnknownRecordAndAction(t *testing.T) {
	_, base := startTestServer(t, newFakePipeline())

	if code := getJSON(t, base+"/api/records/missing", nil); code != http.StatusNotFound {
		t.Fatalf("missing record code = %d", code)
	}
	if code := postJSON(t, base+"/api/records/missing/rewind", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown action code = %d", code)
	}
}

func TestAPIDecideValidation(t *testing.T) {
	pipe := newFakePipeline(&records.Record{ID: "rec-1", Status: records.StatusAwaitingDecision})
	_, base := startTestServer(t, pipe)

	code := postJSON(t, base+"/api/records/rec-1/decide", api.DecideRequest{Decision: "maybe"}, nil)
	if code != http.StatusConflict {
		t.Fatalf("bad decision code = %d", code)
	}

	var resp api.RecordResponse
	code = postJSON(t, base+"/api/records/rec-1/decide", api.DecideRequest{Decision: "approve"}, &resp)
	if code != http.StatusOK || resp.Record.ID != "rec-1" {
		t.Fatalf("decide code=%d resp=%+v", code, resp)
	}
}
