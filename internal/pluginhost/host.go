package pluginhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
)

// DefaultMaxFanoutDepth bounds the explicit work stack Dispatch walks
// for Action results. A plugin returning Action results that would
// exceed it fails the dispatch instead of recursing unbounded.
const DefaultMaxFanoutDepth = 8

// ProjectResolver looks up the internal project id behind the
// human-assigned code a plugin's Task result names.
type ProjectResolver interface {
	ResolveProjectCode(ctx context.Context, code string) (projectID string, err error)
}

// TaskUpserter is the subset of the task store the host needs to
// apply a plugin's Task result.
type TaskUpserter interface {
	UpsertTask(ctx context.Context, params domain.UpsertTaskParams) error
}

// Loader starts a plugin instance and wires its capability table. The
// production loader spawns a subprocess; tests supply an in-process
// fake instead.
type Loader interface {
	Load(ctx context.Context, path string, caps Capabilities) (Plugin, error)
}

// SubprocessLoader is the production Loader: it resolves path under
// PluginsPath and spawns the component as a child process.
type SubprocessLoader struct{}

func (SubprocessLoader) Load(ctx context.Context, path string, caps Capabilities) (Plugin, error) {
	return spawnSubprocess(ctx, filepath.Join(PluginsPath, path), caps)
}

// PluginInstance pairs a loaded plugin with the mutex that serializes
// every call into it. A single plugin's shared mutable state means
// two tasks dispatched to the same plugin never overlap.
type PluginInstance struct {
	mu       sync.Mutex
	plugin   Plugin
	metadata Metadata
	options  json.RawMessage
}

// Host owns every loaded plugin instance and dispatches tasks into
// them, resolving Task results against the project/task store and
// walking Action results through a depth-bounded work stack.
type Host struct {
	mu        sync.RWMutex
	instances map[string]*PluginInstance

	logger   *slog.Logger
	projects ProjectResolver
	tasks    TaskUpserter
	maxDepth int
}

func NewHost(logger *slog.Logger, projects ProjectResolver, tasks TaskUpserter, maxDepth int) *Host {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxFanoutDepth
	}
	return &Host{
		instances: make(map[string]*PluginInstance),
		logger:    logger,
		projects:  projects,
		tasks:     tasks,
		maxDepth:  maxDepth,
	}
}

// LoadAll loads every plugin named in cfg. A plugin that fails to
// spawn, load, or init is logged and skipped; it never aborts loading
// the remaining plugins.
func (h *Host) LoadAll(ctx context.Context, cfg *Config, loader Loader, capsFor func(name string) Capabilities) {
	for _, pc := range cfg.Plugins {
		log := h.logger.With("plugin", pc.Name, "path", pc.Path)

		plugin, err := loader.Load(ctx, pc.Path, capsFor(pc.Name))
		if err != nil {
			log.Error("failed to spawn plugin", "error", err)
			continue
		}

		meta, err := plugin.Load()
		if err != nil {
			log.Error("failed to load plugin", "error", err)
			_ = plugin.Close()
			continue
		}

		if err := plugin.Init(pc.Options); err != nil {
			log.Error("failed to init plugin", "error", err)
			_ = plugin.Close()
			continue
		}

		h.mu.Lock()
		h.instances[pc.Name] = &PluginInstance{plugin: plugin, metadata: meta, options: pc.Options}
		h.mu.Unlock()

		log.Info("plugin loaded", "version", meta.Version)
	}
}

// Close closes every loaded plugin instance.
func (h *Host) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for name, inst := range h.instances {
		if err := inst.plugin.Close(); err != nil {
			h.logger.Warn("error closing plugin", "plugin", name, "error", err)
		}
	}
}

func (h *Host) instance(name string) (*PluginInstance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inst, ok := h.instances[name]
	return inst, ok
}

// work is one pending invocation on the explicit fan-out stack.
type work struct {
	plugin string
	params ExecuteParams
	depth  int
}

// Dispatch invokes pluginName's process() with params, then walks any
// Action results it returns back into further process() calls on an
// explicit stack bounded by maxDepth, and applies any Task results to
// the task store. It returns the first error encountered.
func (h *Host) Dispatch(ctx context.Context, pluginName string, params ExecuteParams) error {
	stack := []work{{plugin: pluginName, params: params, depth: 0}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		inst, ok := h.instance(item.plugin)
		if !ok {
			return domain.NewUnknownPlugin(item.plugin)
		}

		paramsJSON, err := json.Marshal(item.params)
		if err != nil {
			return &domain.PluginError{Category: domain.PluginErrParseBotConfig, Plugin: item.plugin, Err: err}
		}

		inst.mu.Lock()
		results, err := inst.plugin.Process(paramsJSON)
		inst.mu.Unlock()
		if err != nil {
			return &domain.PluginError{Category: domain.PluginErrCallPlugin, Plugin: item.plugin, Err: err}
		}

		for _, result := range results {
			switch result.Kind {
			case ResultKindTask:
				if result.Task == nil {
					continue
				}
				if err := h.applyTaskResult(ctx, item.plugin, result.Task); err != nil {
					return err
				}

			case ResultKindAction:
				if result.Action == nil {
					continue
				}
				if item.depth+1 > h.maxDepth {
					return domain.ErrFanoutDepthExceeded
				}
				var actionParams ExecuteParams
				if err := json.Unmarshal(result.Action.Payload, &actionParams); err != nil {
					return &domain.PluginError{Category: domain.PluginErrParseActionPayload, Plugin: item.plugin, Err: err}
				}
				stack = append(stack, work{plugin: result.Action.Name, params: actionParams, depth: item.depth + 1})
			}
		}
	}

	return nil
}

func (h *Host) applyTaskResult(ctx context.Context, sourcePlugin string, t *TaskResult) error {
	projectID, err := h.projects.ResolveProjectCode(ctx, t.ProjectCode)
	if err != nil {
		return fmt.Errorf("resolve project code %q: %w", t.ProjectCode, err)
	}

	var externalModifiedAt *time.Time
	if t.ExternalModifiedAt != nil {
		ts := time.Unix(*t.ExternalModifiedAt, 0).UTC()
		externalModifiedAt = &ts
	}

	params := domain.UpsertTaskParams{
		ProjectID:           projectID,
		Type:                t.Kind,
		Name:                t.Name,
		ExternalID:          t.ExternalID,
		ExternalModifiedAt:  externalModifiedAt,
		StartAt:             t.StartAt,
		Options:             t.Options,
	}

	if err := h.tasks.UpsertTask(ctx, params); err != nil {
		return &domain.PluginError{Category: domain.PluginErrStorageOperation, Plugin: sourcePlugin, Err: err}
	}
	return nil
}
