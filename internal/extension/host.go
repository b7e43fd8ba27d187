// Package extension talks to an external extension host process over
// socket.io. The host serves resource type and function definitions written
// outside the manifest language; the compiler imports them on demand through
// the registry's Importer seam.
package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/eval"
	"github.com/vk/manifestc/internal/registry"
)

// DefaultTimeout bounds each round trip to the host.
const DefaultTimeout = 10 * time.Second

// Config locates the extension host.
type Config struct {
	URL       string
	Namespace string
	Timeout   time.Duration
}

// Host implements registry.Importer against a socket.io extension host. Each
// request opens its own connection; the host protocol is one request, one
// response event.
type Host struct {
	cfg Config
}

// NewHost creates an importer for the given host configuration.
func NewHost(cfg Config) *Host {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Host{cfg: cfg}
}

type typeRequest struct {
	Environment string `json:"environment"`
	Name        string `json:"name"`
}

type typeDescription struct {
	Found      bool   `json:"found"`
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Parameters []struct {
		Name    string `json:"name"`
		Namevar bool   `json:"namevar"`
	} `json:"parameters"`
}

// ImportType asks the host to describe a resource type. A host that does not
// know the type answers found=false, which imports as "not found" rather than
// an error.
func (h *Host) ImportType(ctx context.Context, environment, name string) (*registry.ResourceType, error) {
	var desc typeDescription
	err := h.roundTrip(ctx, "describe_type", typeRequest{Environment: environment, Name: name}, "type_description", &desc)
	if err != nil {
		return nil, err
	}
	if !desc.Found {
		return nil, nil
	}

	rt := &registry.ResourceType{Name: desc.Name, File: desc.File, Line: desc.Line}
	for _, p := range desc.Parameters {
		rt.Parameters = append(rt.Parameters, registry.ResourceTypeParameter{Name: p.Name, Namevar: p.Namevar})
	}
	return rt, nil
}

type functionDescription struct {
	Found bool   `json:"found"`
	Name  string `json:"name"`
}

// ImportFunction asks the host whether it serves the named function. A found
// function is returned as a descriptor whose implementation proxies each call
// back to the host.
func (h *Host) ImportFunction(ctx context.Context, environment, name string) (*registry.FunctionDescriptor, error) {
	var desc functionDescription
	err := h.roundTrip(ctx, "describe_function", typeRequest{Environment: environment, Name: name}, "function_description", &desc)
	if err != nil {
		return nil, err
	}
	if !desc.Found {
		return nil, nil
	}
	return &registry.FunctionDescriptor{
		Name: desc.Name,
		Fn:   eval.CallFunc(h.callFunction(desc.Name)),
	}, nil
}

type callRequest struct {
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args"`
}

type callResponse struct {
	Error string          `json:"error"`
	Value json.RawMessage `json:"value"`
}

// callFunction builds the proxy that runs one remote function call. Argument
// and result values cross the wire as JSON.
func (h *Host) callFunction(name string) func(ctx context.Context, ec *eval.Context, call *eval.Call) (cty.Value, error) {
	return func(ctx context.Context, ec *eval.Context, call *eval.Call) (cty.Value, error) {
		req := callRequest{Name: name}
		for _, arg := range call.Args {
			raw, err := ctyjson.Marshal(arg, cty.DynamicPseudoType)
			if err != nil {
				return cty.NilVal, fmt.Errorf("failed to encode argument for function '%s': %w", name, err)
			}
			req.Args = append(req.Args, raw)
		}

		var resp callResponse
		if err := h.roundTrip(ctx, "call_function", req, "function_result", &resp); err != nil {
			return cty.NilVal, err
		}
		if resp.Error != "" {
			return cty.NilVal, fmt.Errorf("%s", resp.Error)
		}
		if len(resp.Value) == 0 {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		value, err := ctyjson.Unmarshal(resp.Value, cty.DynamicPseudoType)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to decode result of function '%s': %w", name, err)
		}
		return value, nil
	}
}

type opResult struct {
	data any
	err  error
}

// roundTrip connects to the host, emits one request event, and decodes the
// first response event into out.
func (h *Host) roundTrip(ctx context.Context, emitEvent string, payload any, onEvent string, out any) error {
	logger := ctxlog.FromContext(ctx).With("component", "extension", "url", h.cfg.URL, "event", emitEvent)
	logger.Debug("Extension host request started")

	var isConnected atomic.Bool
	done := make(chan opResult, 1)

	opCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	parsedURL, err := url.Parse(h.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse extension host URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(h.cfg.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting from extension host")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Connected to extension host", "sid", io.Id())
		io.Emit(emitEvent, payload)
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		done <- opResult{err: fmt.Errorf("cannot connect to extension host process: %w", err)}
	})

	io.On(types.EventName(onEvent), func(data ...any) {
		if len(data) == 0 {
			done <- opResult{err: fmt.Errorf("extension host sent an empty '%s' response", onEvent)}
			return
		}
		done <- opResult{data: data[0]}
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return fmt.Errorf("timed out waiting for '%s' from extension host", onEvent)
		}
		return fmt.Errorf("cannot connect to extension host process: timed out")
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		return decodeResponse(res.data, out)
	}
}

// decodeResponse converts the loosely typed socket payload into the caller's
// response struct via a JSON round trip.
func decodeResponse(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode extension host response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode extension host response: %w", err)
	}
	return nil
}
