package salt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Credentials authenticates against salt-api's external auth.
type Credentials struct {
	Username string
	Password string
	EAuth    string // e.g. "pam"
}

// APIExecutor drives a salt-api (netapi) endpoint over HTTP. It logs in
// once for a token and replays the login if the token expires.
type APIExecutor struct {
	base  string
	creds Credentials
	mode  Mode
	httpc *http.Client
	log   *slog.Logger

	mu    sync.Mutex
	token string
}

// NewAPIExecutor builds an executor for the salt-api endpoint at
// baseURL (e.g. https://salt:8000).
func NewAPIExecutor(baseURL string, creds Credentials, mode Mode) *APIExecutor {
	if creds.EAuth == "" {
		creds.EAuth = "pam"
	}
	return &APIExecutor{
		base:  strings.TrimRight(baseURL, "/"),
		creds: creds,
		mode:  mode,
		// State runs and package upgrades can take minutes.
		httpc: &http.Client{Timeout: 5 * time.Minute},
		log:   slog.Default().With("component", "salt-api"),
	}
}

// client maps the transport mode to a netapi client name.
func (e *APIExecutor) client() string {
	if e.mode == ModeSSH {
		return "ssh"
	}
	return "local"
}

// Login obtains an auth token. Called lazily by the first command; also
// exported so the event watcher can reuse the token.
func (e *APIExecutor) Login(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loginLocked(ctx)
}

func (e *APIExecutor) loginLocked(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": e.creds.Username,
		"password": e.creds.Password,
		"eauth":    e.creds.EAuth,
	})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login to %s returned HTTP %d (are your credentials correct?)", e.base, resp.StatusCode)
	}

	var out struct {
		Return []struct {
			Token string `json:"token"`
		} `json:"return"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if len(out.Return) == 0 || out.Return[0].Token == "" {
		return fmt.Errorf("login response carried no token")
	}

	e.token = out.Return[0].Token
	e.log.Debug("authenticated against salt-api", "eauth", e.creds.EAuth)
	return nil
}

// Token returns the current auth token, logging in first if needed.
func (e *APIExecutor) Token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == "" {
		if err := e.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return e.token, nil
}

// call posts one lowstate and decodes the per-node return map. An
// expired token is refreshed and the call replayed once.
func (e *APIExecutor) call(ctx context.Context, low map[string]any) (map[string]json.RawMessage, error) {
	ret, retry, err := e.callOnce(ctx, low)
	if retry {
		ret, _, err = e.callOnce(ctx, low)
	}
	return ret, err
}

func (e *APIExecutor) callOnce(ctx context.Context, low map[string]any) (map[string]json.RawMessage, bool, error) {
	token, err := e.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	body, err := json.Marshal([]map[string]any{low})
	if err != nil {
		return nil, false, fmt.Errorf("encode lowstate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Auth-Token", token)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("api call %s: %w", low["fun"], err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired; signal the caller to log in again and replay.
		io.Copy(io.Discard, resp.Body)
		e.mu.Lock()
		e.token = ""
		e.mu.Unlock()
		return nil, true, fmt.Errorf("api call %s: token rejected", low["fun"])
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("api call %s returned HTTP %d: %s", low["fun"], resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Return []map[string]json.RawMessage `json:"return"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode api response: %w", err)
	}
	if len(out.Return) == 0 {
		return nil, false, fmt.Errorf("api call %s returned no data", low["fun"])
	}
	return out.Return[0], false, nil
}

// single targets one node and unwraps its payload.
func (e *APIExecutor) single(ctx context.Context, node string, low map[string]any) (json.RawMessage, error) {
	low["tgt"] = node
	ret, err := e.call(ctx, low)
	if err != nil {
		return nil, err
	}
	raw, ok := ret[node]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", low["fun"], node, ErrNoResponse)
	}
	return unwrap(e.mode, node, raw)
}

func (e *APIExecutor) ApplyState(ctx context.Context, node, state string, pillar map[string]any) (*StateRunResult, error) {
	low := map[string]any{
		"client": e.client(),
		"fun":    "state.sls",
		"arg":    []string{state},
	}
	if len(pillar) > 0 {
		low["kwarg"] = map[string]any{"pillar": pillar}
	}

	raw, err := e.single(ctx, node, low)
	if err != nil {
		return nil, err
	}
	var res StateRunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("state.sls return from %s: %w", node, err)
	}
	return &res, nil
}

func (e *APIExecutor) Upgrade(ctx context.Context, node string, refresh bool) (*StateRunResult, error) {
	low := map[string]any{
		"client": e.client(),
		"fun":    "pkg.upgrade",
		"kwarg":  map[string]any{"refresh": refresh},
	}

	raw, err := e.single(ctx, node, low)
	if err != nil {
		return nil, err
	}
	var res StateRunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("pkg.upgrade return from %s: %w", node, err)
	}
	return &res, nil
}

func (e *APIExecutor) BoolCommand(ctx context.Context, node, fun string, args ...string) (bool, error) {
	low := map[string]any{
		"client": e.client(),
		"fun":    fun,
	}
	if len(args) > 0 {
		low["arg"] = args
	}

	raw, err := e.single(ctx, node, low)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%s return from %s is not a boolean: %w", fun, node, err)
	}
	return b, nil
}

func (e *APIExecutor) Uptime(ctx context.Context, node string) (*UptimeStatus, error) {
	raw, err := e.single(ctx, node, map[string]any{
		"client": e.client(),
		"fun":    "status.uptime",
	})
	if err != nil {
		return nil, err
	}
	return decodeUptime(node, raw)
}

func (e *APIExecutor) Ping(ctx context.Context, nodes []string) (map[string]bool, error) {
	ret, err := e.call(ctx, map[string]any{
		"client":   e.client(),
		"tgt":      strings.Join(nodes, ","),
		"tgt_type": "list",
		"fun":      "test.ping",
	})
	if err != nil {
		return nil, err
	}

	up := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		up[node] = false
		raw, ok := ret[node]
		if !ok {
			continue
		}
		raw, err := unwrap(e.mode, node, raw)
		if err != nil {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			up[node] = b
		}
	}
	return up, nil
}

func (e *APIExecutor) Reboot(ctx context.Context, node string) error {
	// The minion goes down mid-call, so a missing or failed return is
	// expected here.
	if _, err := e.single(ctx, node, map[string]any{
		"client": e.client(),
		"fun":    "system.reboot",
	}); err != nil {
		e.log.Debug("reboot call returned an error, assuming host is going down",
			"node", node, "error", err)
	}
	return nil
}

func (e *APIExecutor) WipeShim(ctx context.Context, node string) error {
	if e.mode != ModeSSH {
		return fmt.Errorf("shim wipe is only supported in ssh mode")
	}
	if _, err := e.single(ctx, node, map[string]any{
		"client": e.client(),
		"fun":    "test.ping",
		"kwarg":  map[string]any{"ssh_wipe": true},
	}); err != nil {
		return fmt.Errorf("wipe shim on %s: %w", node, err)
	}
	return nil
}

func (e *APIExecutor) Mode() Mode {
	return e.mode
}
