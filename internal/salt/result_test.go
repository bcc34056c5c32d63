package salt

import (
	"encoding/json"
	"testing"
)

func TestStateRunResultDecodesStateMap(t *testing.T) {
	payload := `{
		"file_|-write_config_|-/etc/haproxy/haproxy.cfg_|-managed": {"result": true, "comment": "File updated"},
		"cmd_|-validate_config_|-haproxy -c_|-run": {"result": false, "comment": "exit code 1"}
	}`

	var res StateRunResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatal(err)
	}
	if res.IsCompileFailure() {
		t.Fatal("a mapping payload is not a compile failure")
	}
	if len(res.States) != 2 {
		t.Fatalf("expected 2 states, got %d", len(res.States))
	}

	st := res.States["cmd_|-validate_config_|-haproxy -c_|-run"]
	if st.Result == nil || *st.Result {
		t.Error("expected an explicit false result")
	}
	if st.Comment != "exit code 1" {
		t.Errorf("unexpected comment %q", st.Comment)
	}
}

func TestStateRunResultDecodesCompileFailure(t *testing.T) {
	payload := `["Rendering SLS 'base:haproxy.update_configs' failed: Jinja variable 'foo' is undefined"]`

	var res StateRunResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsCompileFailure() {
		t.Fatal("a list payload is a compile failure")
	}
	if len(res.Compile) != 1 {
		t.Fatalf("expected 1 compile error line, got %d", len(res.Compile))
	}
	if res.States != nil {
		t.Error("shapes are mutually exclusive")
	}
}

func TestStateRunResultKeepsAbsentResultFlagsNil(t *testing.T) {
	// pkg.upgrade style returns carry no result flag at all.
	payload := `{"openssl": {"comment": ""}, "kernel": {}}`

	var res StateRunResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatal(err)
	}
	for name, st := range res.States {
		if st.Result != nil {
			t.Errorf("state %s: absent result flag must stay nil", name)
		}
	}
}

func TestUptimeStatusDecode(t *testing.T) {
	payload := `{"users": 1, "seconds": 1200, "since_t": 1513615153, "days": 0,
		"since_iso": "2017-12-18T16:39:13.749796", "time": "0:20"}`

	var st UptimeStatus
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		t.Fatal(err)
	}
	if st.Seconds != 1200 {
		t.Errorf("expected 1200 seconds, got %d", st.Seconds)
	}
}
