package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"statemesh/core"
)

func tsp(v int64) *int64 {
	return &v
}

func newTestEngine(t *testing.T) *core.DefaultEngine {
	t.Helper()
	e := core.NewDefaultEngine(nil)
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("init engine: %v", err)
	}
	return e
}

func TestAgentServerGetMissingKeyReturns404(t *testing.T) {
	engine := newTestEngine(t)
	srv := httptest.NewServer(NewAgentServer(engine, "").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAgentServerPutThenGetRoundTrips(t *testing.T) {
	engine := newTestEngine(t)
	srv := httptest.NewServer(NewAgentServer(engine, "").Handler)
	defer srv.Close()

	body := []byte(`{"k1": {"value": "hello", "ts": 100}}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on put, got %d", resp.StatusCode)
	}

	// engine writes are asynchronous; retry briefly.
	var getResp *http.Response
	for i := 0; i < 100; i++ {
		getResp, err = http.Get(srv.URL + "/k1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if getResp.StatusCode == http.StatusOK {
			break
		}
		getResp.Body.Close()
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 eventually, got %d", getResp.StatusCode)
	}

	var got core.Entry
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if b, _ := got.Value.AsBytes(); string(b) != `"hello"` {
		t.Fatalf("expected the full entry including its value, got %s", b)
	}
	if got.TS == nil || *got.TS != 100 {
		t.Fatalf("expected ts 100 in the response, got %v", got.TS)
	}
}

func TestAgentServerPutAcceptsMultiKeyBatch(t *testing.T) {
	engine := newTestEngine(t)
	srv := httptest.NewServer(NewAgentServer(engine, "").Handler)
	defer srv.Close()

	body := []byte(`{"k1": {"value": "a", "ts": 100}, "k2": {"value": "b", "ts": 200}}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on put, got %d", resp.StatusCode)
	}

	for _, key := range []string{"k1", "k2"} {
		var getResp *http.Response
		for i := 0; i < 100; i++ {
			getResp, err = http.Get(srv.URL + "/" + key)
			if err != nil {
				t.Fatalf("get %s: %v", key, err)
			}
			if getResp.StatusCode == http.StatusOK {
				break
			}
			getResp.Body.Close()
		}
		defer getResp.Body.Close()
		if getResp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 eventually for %s, got %d", key, getResp.StatusCode)
		}
	}
}

func TestAgentServerPutRejectsMalformedBody(t *testing.T) {
	engine := newTestEngine(t)
	srv := httptest.NewServer(NewAgentServer(engine, "").Handler)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/", bytes.NewReader([]byte("not json")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}
