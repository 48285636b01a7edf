package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

// fakeDaemon answers the message API with canned responses per action
func fakeDaemon(t *testing.T, responses map[string]string) (string, *[]coordinator.Message) {
	t.Helper()
	var received []coordinator.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/state" {
			_, _ = w.Write([]byte(responses["getTimerState"]))
			return
		}
		var msg coordinator.Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		received = append(received, msg)
		_, _ = w.Write([]byte(responses[msg.Action]))
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), &received
}

func run(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	config := filepath.Join(t.TempDir(), "missing.yaml")
	rootCmd.SetArgs(append([]string{"--addr", addr, "--config", config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStartCommand(t *testing.T) {
	end := time.Date(2026, 3, 2, 15, 4, 0, 0, time.Local)
	addr, received := fakeDaemon(t, map[string]string{
		"startTimer": `{"success":true,"timerActive":true,"timerDurationMinutes":45,"timerEndTime":` +
			jsonInt(end.UnixMilli()) + `}`,
	})

	out, err := run(t, addr, "start", "45")
	if err != nil {
		t.Fatalf("start error = %v", err)
	}
	if !strings.Contains(out, "45 minutes, ends at 3:04 PM") {
		t.Errorf("output = %q", out)
	}
	msgs := *received
	if len(msgs) != 1 || msgs[0].Action != "startTimer" || msgs[0].Source != "cli" || msgs[0].Minutes != "45" {
		t.Errorf("daemon received %+v", msgs)
	}
}

func TestReduceWithoutTimerFails(t *testing.T) {
	addr, _ := fakeDaemon(t, map[string]string{
		"reduceTimer": `{"success":false,"message":"No active timer"}`,
	})

	_, err := run(t, addr, "reduce")
	if err == nil || !strings.Contains(err.Error(), "No active timer") {
		t.Errorf("reduce error = %v, want No active timer", err)
	}
}

func TestStatusCommand(t *testing.T) {
	addr, _ := fakeDaemon(t, map[string]string{
		"getTimerState": `{"enabled":true,"timerActive":false}`,
	})

	out, err := run(t, addr, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "on (manual)") {
		t.Errorf("output = %q", out)
	}
}

func TestBlockAddDuplicate(t *testing.T) {
	addr, received := fakeDaemon(t, map[string]string{
		"addBlockedUrl": `{"success":true,"domain":"youtube.com","duplicate":true}`,
	})

	out, err := run(t, addr, "block", "add", "https://www.youtube.com/watch?v=1")
	if err != nil {
		t.Fatalf("block add error = %v", err)
	}
	if !strings.Contains(out, "youtube.com is already blocked") {
		t.Errorf("output = %q", out)
	}
	if (*received)[0].URL != "https://www.youtube.com/watch?v=1" {
		t.Errorf("daemon received %+v", *received)
	}
}

func TestStatsCommand(t *testing.T) {
	addr, _ := fakeDaemon(t, map[string]string{
		"getStats": `{"dailyMinutes":[0,25,50,0,0,0,0],"blockedSites":{"a.com":1,"b.com":3},"weekKey":"2026-W10"}`,
	})

	out, err := run(t, addr, "stats")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	for _, want := range []string{"Week 2026-W10", "Monday", "75 min", "b.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "b.com") > strings.Index(out, "a.com") {
		t.Errorf("sites not ordered by count:\n%s", out)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
