package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forcelayout/pkg/observability"
	"github.com/matzehuels/forcelayout/pkg/session"
)

func setupTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	sessions := session.NewManager(time.Hour, logger)
	prom := observability.NewPrometheus()
	srv := httptest.NewServer(New(Config{Sessions: sessions, Logger: logger, Metrics: prom.Handler()}))
	t.Cleanup(func() {
		srv.Close()
		_ = sessions.Close()
	})
	return srv, sessions
}

func chainJSON(n int) string {
	var nodes, edges []string
	for i := range n {
		label := "Odd"
		if i%2 == 0 {
			label = "Even"
		}
		nodes = append(nodes, fmt.Sprintf(`{"id":"%d","data":{"myLabel":%q,"weight":%d}}`, i, label, i*10))
		if i > 0 {
			edges = append(edges, fmt.Sprintf(`{"id":"e%d","source":"%d","target":"%d"}`, i, i-1, i))
		}
	}
	return fmt.Sprintf(`{"nodes":[%s],"edges":[%s]}`, strings.Join(nodes, ","), strings.Join(edges, ","))
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, url, data, err)
		}
	}
	return resp.StatusCode
}

func createSession(t *testing.T, base string, n int) string {
	t.Helper()
	var created SessionResponse
	if code := do(t, "POST", base+"/v1/sessions", chainJSON(n), &created); code != http.StatusCreated {
		t.Fatalf("create session = %d", code)
	}
	return created.ID
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv.URL, 10)
	base := srv.URL + "/v1/sessions/" + id

	var added SessionResponse
	code := do(t, "POST", base+"/elements", `{"nodes":[{"id":"x"}],"edges":[{"source":"9","target":"x"}]}`, &added)
	if code != http.StatusCreated || added.Nodes != 11 || added.Edges != 10 {
		t.Errorf("add elements = %d, %+v", code, added)
	}

	var el ElementResponse
	if code := do(t, "GET", base+"/elements/4", "", &el); code != http.StatusOK || el.Node == nil || el.Node.Data["myLabel"] != "Even" {
		t.Errorf("get element = %d, %+v", code, el)
	}
	if code := do(t, "GET", base+"/elements/e3", "", &el); code != http.StatusOK || el.Edge == nil || el.Edge.Source != "2" {
		t.Errorf("get edge = %d, %+v", code, el)
	}

	var q QueryResponse
	if code := do(t, "GET", base+"/query?selector="+urlEscape("node[myLabel='Even']"), "", &q); code != http.StatusOK || q.Count != 5 {
		t.Errorf("query = %d, %+v", code, q)
	}

	if code := do(t, "DELETE", base, "", nil); code != http.StatusNoContent {
		t.Errorf("delete = %d", code)
	}
	if code := do(t, "GET", base+"/elements/4", "", nil); code != http.StatusNotFound {
		t.Errorf("get after delete = %d", code)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv.URL, 3)

	tests := []struct {
		name, method, path, body string
		status                   int
		code                     string
	}{
		{"unknown session", "GET", "/v1/sessions/nope/query", "", http.StatusNotFound, "NOT_FOUND"},
		{"unknown element", "GET", "/v1/sessions/" + id + "/elements/zz", "", http.StatusNotFound, "NOT_FOUND"},
		{"duplicate node", "POST", "/v1/sessions/" + id + "/elements", `{"nodes":[{"id":"0"}]}`, http.StatusBadRequest, "INTEGRITY"},
		{"malformed graph", "POST", "/v1/sessions", `{"nodes":`, http.StatusBadRequest, "INVALID_FORMAT"},
		{"bad selector", "GET", "/v1/sessions/" + id + "/query?selector=" + urlEscape("[weight>"), "", http.StatusBadRequest, "INVALID_SELECTOR"},
		{"bad config", "POST", "/v1/sessions/" + id + "/layout", `{"cooling_factor": 5}`, http.StatusBadRequest, "INVALID_CONFIG"},
		{"no run yet", "GET", "/v1/sessions/" + id + "/layout", "", http.StatusNotFound, "NOT_FOUND"},
		{"missing graph", "POST", "/v1/layout", `{}`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			if code := do(t, tt.method, srv.URL+tt.path, tt.body, &body); code != tt.status || string(body.Error) != tt.code {
				t.Errorf("status = %d, body = %+v; want %d %s", code, body, tt.status, tt.code)
			}
		})
	}
}

func TestConcurrentLayoutConflict(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := createSession(t, srv.URL, 20)
	base := srv.URL + "/v1/sessions/" + id

	endless := `{"num_iter": 1000000000, "cooling_factor": 1, "convergence_threshold": 0}`
	var started RunResponse
	if code := do(t, "POST", base+"/layout", endless, &started); code != http.StatusAccepted || started.RunID == "" {
		t.Fatalf("start layout = %d, %+v", code, started)
	}

	var conflict errorBody
	if code := do(t, "POST", base+"/layout", "", &conflict); code != http.StatusConflict || conflict.Error != "CONCURRENT_MUTATION" {
		t.Errorf("second start = %d, %+v", code, conflict)
	}
	if code := do(t, "POST", base+"/elements", `{"nodes":[{"id":"late"}]}`, nil); code != http.StatusConflict {
		t.Errorf("mutation during run = %d", code)
	}

	var status RunResponse
	if code := do(t, "GET", base+"/layout", "", &status); code != http.StatusOK || (status.State != "running" && status.State != "initializing") || status.Result != nil {
		t.Errorf("status = %d, %+v", code, status)
	}

	var stopped RunResponse
	if code := do(t, "DELETE", base+"/layout", "", &stopped); code != http.StatusOK {
		t.Fatalf("cancel = %d", code)
	}
	if stopped.State != "cancelled" || stopped.Result == nil || stopped.Result.Reason != "cancelled" || stopped.RunID != started.RunID {
		t.Errorf("cancelled run = %+v", stopped)
	}
	if code := do(t, "POST", base+"/elements", `{"nodes":[{"id":"late"}]}`, nil); code != http.StatusCreated {
		t.Errorf("mutation after run = %d", code)
	}
}

func TestSessionLayoutCompletes(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/v1/sessions/" + createSession(t, srv.URL, 6)

	if code := do(t, "POST", base+"/layout", `{"num_iter": 40}`, nil); code != http.StatusAccepted {
		t.Fatalf("start = %d", code)
	}
	deadline := time.Now().Add(5 * time.Second)
	var status RunResponse
	for time.Now().Before(deadline) {
		do(t, "GET", base+"/layout", "", &status)
		if status.Result != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Result == nil || status.State != "converged" || len(status.Result.Positions) != 6 {
		t.Fatalf("run did not finish: %+v", status)
	}

	var el ElementResponse
	do(t, "GET", base+"/elements/3", "", &el)
	if el.Node.Position == nil || *el.Node.Position != status.Result.Positions["3"] {
		t.Errorf("stored position = %v, result %v", el.Node.Position, status.Result.Positions["3"])
	}
}

func TestStatelessLayout(t *testing.T) {
	srv, _ := setupTestServer(t)
	body := fmt.Sprintf(`{"graph": %s, "config": {"num_iter": 30, "seed": 3}}`, chainJSON(5))

	var first LayoutResponse
	if code := do(t, "POST", srv.URL+"/v1/layout", body, &first); code != http.StatusOK {
		t.Fatalf("layout = %d", code)
	}
	if len(first.Result.Positions) != 5 || len(first.Graph.Nodes) != 5 || first.Graph.Nodes[0].Position == nil {
		t.Errorf("layout response = %+v", first)
	}
	if first.CacheHit {
		t.Error("null cache reported a hit")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := setupTestServer(t)
	var health map[string]any
	if code := do(t, "GET", srv.URL+"/healthz", "", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz = %d, %v", code, health)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), "forcelayout_layouts_active") {
		t.Errorf("metrics = %d:\n%s", resp.StatusCode, buf.String())
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(fmt.Errorf("plain")); got != http.StatusInternalServerError {
		t.Errorf("uncoded error = %d", got)
	}
}

func urlEscape(s string) string {
	return strings.NewReplacer("[", "%5B", "]", "%5D", "'", "%27", "=", "%3D", ">", "%3E").Replace(s)
}
