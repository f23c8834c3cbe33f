package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/effects/catalog"
	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/internal/host"
	"github.com/raymoo/monoidal-effects/internal/hud"
	"github.com/raymoo/monoidal-effects/internal/runner"
	"github.com/raymoo/monoidal-effects/monoid"
)

type testEnv struct {
	srv        *Server
	loop       *runner.Loop
	quantities *monoid.Registry
	types      *effects.TypeRegistry
}

func newTestServer(t *testing.T, cat *catalog.Resolver, pushEvery int) *testEnv {
	t.Helper()

	quantities := monoid.NewRegistry()
	if err := quantities.Register("speed", monoid.Spec{
		Identity: monoid.ScalarValue(1),
		Combine:  monoid.MultiplyScalars,
	}); err != nil {
		t.Fatalf("register speed: %v", err)
	}
	if err := quantities.Register("fly", monoid.Spec{
		Identity: monoid.BoolValue(false),
		Combine:  monoid.OrBools,
	}); err != nil {
		t.Fatalf("register fly: %v", err)
	}

	types := effects.NewTypeRegistry(quantities)
	if err := types.Register(effects.Type{
		Name:          "haste",
		DisplayName:   "Haste",
		Tags:          effectset.NewStringSet("magic"),
		Quantities:    effectset.NewStringSet("speed"),
		Values:        map[string]monoid.Value{"speed": monoid.ScalarValue(2)},
		CancelOnDeath: true,
		Icon:          "icons/haste.png",
	}); err != nil {
		t.Fatalf("register haste: %v", err)
	}
	if err := types.Register(effects.Type{
		Name:       "speed_mod",
		Quantities: effectset.NewStringSet("speed"),
		Dynamic:    true,
	}); err != nil {
		t.Fatalf("register speed_mod: %v", err)
	}

	roster := host.NewHost()
	overlay := hud.NewTracker()
	mgr, err := effects.NewManager(effects.ManagerConfig{
		Quantities: quantities,
		Types:      types,
		Actors:     roster,
		Display:    overlay,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var srv *Server
	loop := runner.NewLoop(mgr, runner.Config{TickRate: 50, HUDRefreshEvery: 1}, runner.Deps{
		Roster:  roster,
		Overlay: overlay,
	}, runner.Hooks{
		AfterTick: func(result runner.TickResult) {
			if srv != nil {
				srv.AfterTick(result)
			}
		},
	})
	srv = New(Deps{
		Loop:       loop,
		Roster:     roster,
		Overlay:    overlay,
		Catalog:    cat,
		Quantities: quantities,
		Types:      types,
	}, Config{Version: "test", TickRate: 50, PushEvery: pushEvery})

	stop := make(chan struct{})
	go loop.Run(stop)
	t.Cleanup(func() { close(stop) })

	return &testEnv{srv: srv, loop: loop, quantities: quantities, types: types}
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func joinActor(t *testing.T, srv *Server, actorID string) string {
	t.Helper()
	w, resp := doJSON(t, srv, "POST", "/api/join", `{"actorId":"`+actorID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("join status = %d, body: %s", w.Code, w.Body.String())
	}
	sessionID, _ := resp["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("join response missing sessionId: %v", resp)
	}
	return sessionID
}

func TestHealthRoute(t *testing.T) {
	env := newTestServer(t, nil, 0)

	w, resp := doJSON(t, env.srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestJoinLeaveFlow(t *testing.T) {
	env := newTestServer(t, nil, 0)

	sessionID := joinActor(t, env.srv, "alice")

	w, _ := doJSON(t, env.srv, "POST", "/api/join", `{"actorId":"alice"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate join status = %d, want %d", w.Code, http.StatusConflict)
	}

	w, _ = doJSON(t, env.srv, "POST", "/api/join", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty join status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w, _ = doJSON(t, env.srv, "POST", "/api/leave", `{"sessionId":"bogus"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("bogus leave status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w, resp := doJSON(t, env.srv, "POST", "/api/leave", `{"sessionId":"`+sessionID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("leave status = %d, body: %s", w.Code, w.Body.String())
	}
	if resp["status"] != "left" {
		t.Errorf("status = %v, want left", resp["status"])
	}

	// The session is gone, so leaving twice fails.
	w, _ = doJSON(t, env.srv, "POST", "/api/leave", `{"sessionId":"`+sessionID+`"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("second leave status = %d, want %d", w.Code, http.StatusNotFound)
	}

	joinActor(t, env.srv, "alice")
}

func TestApplyAndQueryEffects(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "alice")

	body := `{"type":"speed_mod","actors":["alice"],"durationMs":60000,"values":{"speed":{"kind":"scalar","scalar":3}}}`
	w, resp := doJSON(t, env.srv, "POST", "/api/effects", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply status = %d, body: %s", w.Code, w.Body.String())
	}
	if id, _ := resp["id"].(float64); id < 1 {
		t.Fatalf("id = %v, want an allocated record id", resp["id"])
	}

	w, resp = doJSON(t, env.srv, "GET", "/api/actors/alice/values", "")
	if w.Code != http.StatusOK {
		t.Fatalf("values status = %d", w.Code)
	}
	values, _ := resp["values"].(map[string]any)
	speed, _ := values["speed"].(map[string]any)
	if speed["scalar"] != 3.0 {
		t.Errorf("speed = %v, want 3", speed["scalar"])
	}
	fly, _ := values["fly"].(map[string]any)
	if fly["bool"] != false {
		t.Errorf("fly = %v, want the identity false", fly["bool"])
	}

	w, resp = doJSON(t, env.srv, "GET", "/api/actors/alice/values?quantity=speed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("single value status = %d", w.Code)
	}
	values, _ = resp["values"].(map[string]any)
	if len(values) != 1 {
		t.Errorf("values = %v, want just speed", values)
	}

	w, _ = doJSON(t, env.srv, "GET", "/api/actors/alice/values?quantity=bogus", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("bogus quantity status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w, resp = doJSON(t, env.srv, "GET", "/api/actors/alice/effects", "")
	if w.Code != http.StatusOK {
		t.Fatalf("effects status = %d", w.Code)
	}
	list, _ := resp["effects"].([]any)
	if len(list) != 1 {
		t.Fatalf("effects = %v, want one record", resp["effects"])
	}
	entry, _ := list[0].(map[string]any)
	if entry["type"] != "speed_mod" {
		t.Errorf("type = %v, want speed_mod", entry["type"])
	}
	if remaining, _ := entry["remainingMs"].(float64); remaining <= 0 || remaining > 60000 {
		t.Errorf("remainingMs = %v, want a running countdown", entry["remainingMs"])
	}
}

func TestApplyValidation(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "alice")

	w, _ := doJSON(t, env.srv, "POST", "/api/effects", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w, _ = doJSON(t, env.srv, "POST", "/api/effects", `{"type":"no_such","actors":["alice"],"permanent":true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown type status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w, _ = doJSON(t, env.srv, "POST", "/api/effects", `{"type":"speed_mod","actors":["alice"],"permanent":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing values status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCancelRoutes(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "bob")

	w, resp := doJSON(t, env.srv, "POST", "/api/effects", `{"type":"haste","actors":["bob"],"durationMs":60000}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply status = %d, body: %s", w.Code, w.Body.String())
	}
	id := int64(resp["id"].(float64))
	doJSON(t, env.srv, "POST", "/api/effects", `{"type":"speed_mod","actors":["bob"],"durationMs":60000,"values":{"speed":{"kind":"scalar","scalar":4}}}`)

	w, _ = doJSON(t, env.srv, "DELETE", "/api/effects/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	path := "/api/effects/" + strconv.FormatInt(id, 10)
	w, _ = doJSON(t, env.srv, "DELETE", path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body: %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, env.srv, "DELETE", path, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("double cancel status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w, _ = doJSON(t, env.srv, "POST", "/api/effects/cancel", `{"index":"bogus","key":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus index status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w, resp = doJSON(t, env.srv, "POST", "/api/effects/cancel", `{"index":"actor","key":"bob"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel by actor status = %d", w.Code)
	}
	if resp["cancelled"] != 1.0 {
		t.Errorf("cancelled = %v, want 1", resp["cancelled"])
	}
}

func TestActorHUDRoute(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "carol")

	doJSON(t, env.srv, "POST", "/api/effects", `{"type":"haste","actors":["carol"],"durationMs":60000}`)

	w, resp := doJSON(t, env.srv, "GET", "/api/actors/carol/hud", "")
	if w.Code != http.StatusOK {
		t.Fatalf("hud status = %d", w.Code)
	}
	entries, _ := resp["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want one", resp["entries"])
	}
	entry, _ := entries[0].(map[string]any)
	if entry["name"] != "Haste" {
		t.Errorf("name = %v, want Haste", entry["name"])
	}
	if entry["icon"] != "icons/haste.png" {
		t.Errorf("icon = %v, want icons/haste.png", entry["icon"])
	}
}

func TestDiagnosticsRoute(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "alice")
	doJSON(t, env.srv, "POST", "/api/effects", `{"type":"haste","actors":["alice"],"durationMs":60000}`)

	w, resp := doJSON(t, env.srv, "GET", "/api/diagnostics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["records"] != 1.0 {
		t.Errorf("records = %v, want 1", resp["records"])
	}
	if resp["actors"] != 1.0 {
		t.Errorf("actors = %v, want 1", resp["actors"])
	}
	if resp["sessions"] != 1.0 {
		t.Errorf("sessions = %v, want 1", resp["sessions"])
	}
}

func TestDeathRouteCancelsFlaggedEffects(t *testing.T) {
	env := newTestServer(t, nil, 0)
	joinActor(t, env.srv, "dave")
	doJSON(t, env.srv, "POST", "/api/effects", `{"type":"haste","actors":["dave"],"durationMs":60000}`)

	w, _ := doJSON(t, env.srv, "POST", "/api/actors/dave/death", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("death status = %d, want %d", w.Code, http.StatusAccepted)
	}

	// The command executes on the next tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, resp := doJSON(t, env.srv, "GET", "/api/actors/dave/values?quantity=speed", "")
		values, _ := resp["values"].(map[string]any)
		speed, _ := values["speed"].(map[string]any)
		if speed["scalar"] == 1.0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("speed = %v, want the identity after death", speed["scalar"])
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSaveRouteQueues(t *testing.T) {
	env := newTestServer(t, nil, 0)

	w, resp := doJSON(t, env.srv, "POST", "/api/save", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("save status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %v, want queued", resp["status"])
	}
}

func TestCatalogRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "effects.json")
	if err := os.WriteFile(path, []byte(`[
		{"name":"sluggish","quantities":["speed"],"values":{"speed":{"kind":"scalar","scalar":0.5}}}
	]`), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	quantities := monoid.NewRegistry()
	if err := quantities.Register("speed", monoid.Spec{
		Identity: monoid.ScalarValue(1),
		Combine:  monoid.MultiplyScalars,
	}); err != nil {
		t.Fatalf("register speed: %v", err)
	}
	cat, err := catalog.Load(quantities, path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	env := newTestServer(t, cat, 0)

	w, resp := doJSON(t, env.srv, "GET", "/api/catalog", "")
	if w.Code != http.StatusOK {
		t.Fatalf("catalog status = %d", w.Code)
	}
	list, _ := resp["effectCatalog"].([]any)
	if len(list) != 1 {
		t.Fatalf("effectCatalog = %v, want one entry", resp["effectCatalog"])
	}
	entry, _ := list[0].(map[string]any)
	if entry["name"] != "sluggish" {
		t.Errorf("name = %v, want sluggish", entry["name"])
	}

	// A new entry appears after reload and becomes applicable.
	if err := os.WriteFile(path, []byte(`[
		{"name":"sluggish","quantities":["speed"],"values":{"speed":{"kind":"scalar","scalar":0.5}}},
		{"name":"blessing","quantities":["speed"],"values":{"speed":{"kind":"scalar","scalar":1.5}}}
	]`), 0o644); err != nil {
		t.Fatalf("rewrite catalog: %v", err)
	}

	w, resp = doJSON(t, env.srv, "POST", "/api/catalog/reload", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reload status = %d, body: %s", w.Code, w.Body.String())
	}
	if resp["types"] != 2.0 {
		t.Errorf("types = %v, want 2", resp["types"])
	}
	if resp["installed"] != 2.0 {
		t.Errorf("installed = %v, want both catalog types installed", resp["installed"])
	}

	joinActor(t, env.srv, "alice")
	w, _ = doJSON(t, env.srv, "POST", "/api/effects", `{"type":"blessing","actors":["alice"],"durationMs":60000}`)
	if w.Code != http.StatusCreated {
		t.Errorf("apply reloaded type status = %d, body: %s", w.Code, w.Body.String())
	}
}
