package pluginhost_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/pluginhost"
)

// fakePlugin is an in-process stand-in for a subprocess plugin, built
// the way the teacher's tests fake collaborators: function-valued
// fields the test sets per case.
type fakePlugin struct {
	loadFn    func() (pluginhost.Metadata, error)
	initFn    func(json.RawMessage) error
	processFn func(json.RawMessage) ([]pluginhost.PluginResult, error)
	closed    bool
}

func (f *fakePlugin) Load() (pluginhost.Metadata, error) { return f.loadFn() }
func (f *fakePlugin) Init(cfg json.RawMessage) error     { return f.initFn(cfg) }
func (f *fakePlugin) Process(params json.RawMessage) ([]pluginhost.PluginResult, error) {
	return f.processFn(params)
}
func (f *fakePlugin) Close() error { f.closed = true; return nil }

// fakeLoader hands back a preconstructed fakePlugin per plugin name,
// standing in for SubprocessLoader in tests.
type fakeLoader struct {
	plugins map[string]*fakePlugin
}

func (l *fakeLoader) Load(ctx context.Context, path string, caps pluginhost.Capabilities) (pluginhost.Plugin, error) {
	p, ok := l.plugins[path]
	if !ok {
		return nil, errors.New("no such plugin: " + path)
	}
	return p, nil
}

type fakeProjects struct {
	codeToID map[string]string
}

func (f *fakeProjects) ResolveProjectCode(ctx context.Context, code string) (string, error) {
	id, ok := f.codeToID[code]
	if !ok {
		return "", errors.New("unknown project code")
	}
	return id, nil
}

type fakeTaskUpserter struct {
	upserted []domain.UpsertTaskParams
}

func (f *fakeTaskUpserter) UpsertTask(ctx context.Context, params domain.UpsertTaskParams) error {
	f.upserted = append(f.upserted, params)
	return nil
}

func newTestHost(t *testing.T, plugins map[string]*fakePlugin, projects *fakeProjects, tasks *fakeTaskUpserter, maxDepth int) *pluginhost.Host {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	host := pluginhost.NewHost(logger, projects, tasks, maxDepth)

	cfg := &pluginhost.Config{NumWorkers: 1}
	for name := range plugins {
		cfg.Plugins = append(cfg.Plugins, pluginhost.PluginConfig{Name: name, Path: name})
	}
	loader := &fakeLoader{plugins: map[string]*fakePlugin{}}
	for name, p := range plugins {
		loader.plugins[name] = p
	}

	host.LoadAll(context.Background(), cfg, loader, func(name string) pluginhost.Capabilities {
		return pluginhost.Capabilities{Name: name, Log: logger}
	})
	return host
}

func TestDispatch_TaskResult_UpsertsViaResolvedProject(t *testing.T) {
	externalModified := int64(1700000000)
	plugin := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "github", Version: "1.0"}, nil },
		initFn: func(json.RawMessage) error { return nil },
		processFn: func(json.RawMessage) ([]pluginhost.PluginResult, error) {
			return []pluginhost.PluginResult{
				{
					Kind: pluginhost.ResultKindTask,
					Task: &pluginhost.TaskResult{
						ProjectCode:        "proj-a",
						Kind:               "pull_request_sync",
						Name:               "sync #42",
						ExternalModifiedAt: &externalModified,
						StartAt:            1700000100,
					},
				},
			}, nil
		},
	}

	tasks := &fakeTaskUpserter{}
	projects := &fakeProjects{codeToID: map[string]string{"proj-a": "project-uuid-1"}}
	host := newTestHost(t, map[string]*fakePlugin{"github": plugin}, projects, tasks, 0)

	err := host.Dispatch(context.Background(), "github", pluginhost.ExecuteParams{TaskID: "t1"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(tasks.upserted) != 1 {
		t.Fatalf("upserted count = %d, want 1", len(tasks.upserted))
	}
	if tasks.upserted[0].ProjectID != "project-uuid-1" {
		t.Errorf("ProjectID = %q, want project-uuid-1", tasks.upserted[0].ProjectID)
	}
	if tasks.upserted[0].ExternalModifiedAt == nil {
		t.Fatalf("ExternalModifiedAt not set")
	}
}

func TestDispatch_ActionResult_FansOutToAnotherPlugin(t *testing.T) {
	var secondCalled bool

	second := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "notify"}, nil },
		initFn: func(json.RawMessage) error { return nil },
		processFn: func(raw json.RawMessage) ([]pluginhost.PluginResult, error) {
			secondCalled = true
			var p pluginhost.ExecuteParams
			_ = json.Unmarshal(raw, &p)
			if p.TaskID != "forwarded" {
				t.Errorf("forwarded TaskID = %q, want forwarded", p.TaskID)
			}
			return nil, nil
		},
	}

	first := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "github"}, nil },
		initFn: func(json.RawMessage) error { return nil },
		processFn: func(json.RawMessage) ([]pluginhost.PluginResult, error) {
			payload, _ := json.Marshal(pluginhost.ExecuteParams{TaskID: "forwarded"})
			return []pluginhost.PluginResult{
				{Kind: pluginhost.ResultKindAction, Action: &pluginhost.ActionResult{Name: "notify", Payload: payload}},
			}, nil
		},
	}

	tasks := &fakeTaskUpserter{}
	projects := &fakeProjects{codeToID: map[string]string{}}
	host := newTestHost(t, map[string]*fakePlugin{"github": first, "notify": second}, projects, tasks, 0)

	if err := host.Dispatch(context.Background(), "github", pluginhost.ExecuteParams{TaskID: "t1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !secondCalled {
		t.Errorf("expected fan-out to call the notify plugin")
	}
}

func TestDispatch_ExceedsMaxDepth_ReturnsFanoutDepthExceeded(t *testing.T) {
	recurse := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "loop"}, nil },
		initFn: func(json.RawMessage) error { return nil },
	}
	recurse.processFn = func(json.RawMessage) ([]pluginhost.PluginResult, error) {
		payload, _ := json.Marshal(pluginhost.ExecuteParams{TaskID: "t1"})
		return []pluginhost.PluginResult{
			{Kind: pluginhost.ResultKindAction, Action: &pluginhost.ActionResult{Name: "loop", Payload: payload}},
		}, nil
	}

	tasks := &fakeTaskUpserter{}
	projects := &fakeProjects{codeToID: map[string]string{}}
	host := newTestHost(t, map[string]*fakePlugin{"loop": recurse}, projects, tasks, 2)

	err := host.Dispatch(context.Background(), "loop", pluginhost.ExecuteParams{TaskID: "t1"})
	if !errors.Is(err, domain.ErrFanoutDepthExceeded) {
		t.Fatalf("err = %v, want ErrFanoutDepthExceeded", err)
	}
}

func TestDispatch_UnknownPlugin_ReturnsPluginError(t *testing.T) {
	tasks := &fakeTaskUpserter{}
	projects := &fakeProjects{}
	host := newTestHost(t, map[string]*fakePlugin{}, projects, tasks, 0)

	err := host.Dispatch(context.Background(), "missing", pluginhost.ExecuteParams{TaskID: "t1"})
	var pluginErr *domain.PluginError
	if !errors.As(err, &pluginErr) {
		t.Fatalf("err = %v, want *domain.PluginError", err)
	}
	if pluginErr.Category != domain.PluginErrUnknownPlugin {
		t.Errorf("category = %q, want UNKNOWN_PLUGIN", pluginErr.Category)
	}
}

func TestLoadAll_FailedInit_SkipsPluginWithoutAbortingOthers(t *testing.T) {
	bad := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "bad"}, nil },
		initFn: func(json.RawMessage) error { return errors.New("boom") },
	}
	good := &fakePlugin{
		loadFn: func() (pluginhost.Metadata, error) { return pluginhost.Metadata{Name: "good"}, nil },
		initFn: func(json.RawMessage) error { return nil },
	}

	tasks := &fakeTaskUpserter{}
	projects := &fakeProjects{}
	host := newTestHost(t, map[string]*fakePlugin{"bad": bad, "good": good}, projects, tasks, 0)

	if err := host.Dispatch(context.Background(), "bad", pluginhost.ExecuteParams{TaskID: "t1"}); err == nil {
		t.Fatalf("expected dispatch to bad to fail since it was skipped at load")
	}
	good.processFn = func(json.RawMessage) ([]pluginhost.PluginResult, error) { return nil, nil }
	if err := host.Dispatch(context.Background(), "good", pluginhost.ExecuteParams{TaskID: "t1"}); err != nil {
		t.Fatalf("dispatch to good: %v", err)
	}
}
