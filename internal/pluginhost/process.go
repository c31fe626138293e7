package pluginhost

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
)

// jsonReader adapts a []byte into the io.Reader the broker expects for
// a request body, without pulling in bytes.NewReader at every call
// site in capabilities.go.
type jsonReader struct{ r *bytes.Reader }

func newJSONReader(b []byte) *jsonReader { return &jsonReader{r: bytes.NewReader(b)} }

func (j *jsonReader) Read(p []byte) (int, error) { return j.r.Read(p) }

// envelopeType discriminates messages on the control channel.
type envelopeType string

const (
	envCall       envelopeType = "call"
	envResult     envelopeType = "result"
	envError      envelopeType = "error"
	envHostCall   envelopeType = "host_call"
	envHostResult envelopeType = "host_result"
	envHostError  envelopeType = "host_error"
)

// envelope is one newline-delimited JSON frame on the control channel
// between host and subprocess plugin.
type envelope struct {
	ID      uint64          `json:"id"`
	Type    envelopeType    `json:"type"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// subprocessPlugin is the production Plugin implementation. It talks
// to a child process over a pair of pipes wired through ExtraFiles:
// fd3 carries host->plugin frames, fd4 carries plugin->host frames.
// The plugin's own stdio is left inherited, for debugging only, never
// used for the ABI itself.
type subprocessPlugin struct {
	cmd  *exec.Cmd
	reqW *os.File
	respR *os.File
	dec  *json.Decoder

	mu     sync.Mutex
	nextID atomic.Uint64
	caps   Capabilities
}

// spawnSubprocess starts the plugin binary at path and wires its
// control channel. The returned Plugin is not yet loaded; callers
// invoke Load/Init as usual.
func spawnSubprocess(ctx context.Context, path string, caps Capabilities) (*subprocessPlugin, error) {
	hostReqR, hostReqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	pluginRespR, pluginRespW, err := os.Pipe()
	if err != nil {
		hostReqR.Close()
		hostReqW.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{hostReqR, pluginRespW}

	if err := cmd.Start(); err != nil {
		hostReqR.Close()
		hostReqW.Close()
		pluginRespR.Close()
		pluginRespW.Close()
		return nil, fmt.Errorf("start plugin %s: %w", path, err)
	}

	// The host keeps the write end of the request pipe and the read end
	// of the response pipe; its own handles to the ends passed to the
	// child (request read, response write) are closed here so EOF
	// propagates correctly.
	hostReqR.Close()
	pluginRespW.Close()

	return &subprocessPlugin{
		cmd:   cmd,
		reqW:  hostReqW,
		respR: pluginRespR,
		dec:   json.NewDecoder(bufio.NewReader(pluginRespR)),
		caps:  caps,
	}, nil
}

// call sends one request envelope and blocks until the matching result
// or error envelope arrives, servicing any host_call envelopes the
// plugin issues in the meantime.
func (p *subprocessPlugin) call(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID.Add(1)
	if err := p.writeEnvelope(envelope{ID: id, Type: envCall, Method: method, Payload: payload}); err != nil {
		return nil, fmt.Errorf("write call %s: %w", method, err)
	}

	for {
		var env envelope
		if err := p.dec.Decode(&env); err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("plugin closed control channel during %s", method)
			}
			return nil, fmt.Errorf("decode response to %s: %w", method, err)
		}

		switch env.Type {
		case envHostCall:
			result, callErr := p.caps.handleHostCall(ctx, env.Method, env.Payload)
			if callErr != nil {
				_ = p.writeEnvelope(envelope{ID: env.ID, Type: envHostError, Error: callErr.Error()})
				continue
			}
			_ = p.writeEnvelope(envelope{ID: env.ID, Type: envHostResult, Payload: result})
			continue

		case envResult:
			if env.ID != id {
				continue
			}
			return env.Payload, nil

		case envError:
			if env.ID != id {
				continue
			}
			return nil, fmt.Errorf("plugin error in %s: %s", method, env.Error)

		default:
			continue
		}
	}
}

func (p *subprocessPlugin) writeEnvelope(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = p.reqW.Write(data)
	return err
}

func (p *subprocessPlugin) Load() (Metadata, error) {
	raw, err := p.call(context.Background(), "load", nil)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode load metadata: %w", err)
	}
	return meta, nil
}

func (p *subprocessPlugin) Init(configJSON json.RawMessage) error {
	_, err := p.call(context.Background(), "init", configJSON)
	return err
}

func (p *subprocessPlugin) Process(paramsJSON json.RawMessage) ([]PluginResult, error) {
	raw, err := p.call(context.Background(), "process", paramsJSON)
	if err != nil {
		return nil, err
	}
	var results []PluginResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode process results: %w", err)
	}
	return results, nil
}

func (p *subprocessPlugin) Close() error {
	p.reqW.Close()
	p.respR.Close()
	return p.cmd.Wait()
}
