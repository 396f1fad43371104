package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderServer identifies one external tool-provider process.
type ProviderServer struct {
	// Alias namespaces this provider's tools ("<alias>.<name>").
	Alias string `mapstructure:"alias" yaml:"alias"`
	// Endpoint is the provider base URL, e.g. "http://localhost:8080/mcp".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// TimeoutMS bounds each HTTP call. Defaults to 5000.
	TimeoutMS int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

func (s ProviderServer) timeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

func (s ProviderServer) toolsURL() string  { return joinURL(s.Endpoint, "tools") }
func (s ProviderServer) invokeURL() string { return joinURL(s.Endpoint, "invoke") }

func joinURL(base, suffix string) string {
	return strings.TrimRight(base, "/") + "/" + suffix
}

// providerToolDef is one entry of the provider's GET /tools response.
type providerToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Transient   bool           `json:"transient"`
}

// ProviderClient speaks the tool-provider HTTP contract:
// GET {endpoint}/tools and POST {endpoint}/invoke. The underlying transport
// pool supports concurrent invocation across agent instances.
type ProviderClient struct {
	http *http.Client
}

// NewProviderClient creates a client. Pass nil to use a default transport.
func NewProviderClient(httpClient *http.Client) *ProviderClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ProviderClient{http: httpClient}
}

// ListTools fetches the provider's tool definitions.
func (c *ProviderClient) ListTools(ctx context.Context, server ProviderServer) ([]providerToolDef, error) {
	ctx, cancel := context.WithTimeout(ctx, server.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.toolsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", server.Alias, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: list tools: %w", server.Alias, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s: list tools: unexpected status %d", server.Alias, resp.StatusCode)
	}

	var body struct {
		Tools []providerToolDef `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("provider %s: decode tools response: %w", server.Alias, err)
	}
	if body.Tools == nil {
		return nil, fmt.Errorf("provider %s: tools response missing 'tools' list", server.Alias)
	}
	return body.Tools, nil
}

// Invoke calls one provider tool. A transport or protocol fault is returned
// as an error (hard failure); a tool-reported error comes back as a
// structured soft-failure payload in the value position.
func (c *ProviderClient) Invoke(ctx context.Context, server ProviderServer, tool string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, server.timeout())
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"tool": tool, "args": args})
	if err != nil {
		return nil, fmt.Errorf("provider %s: encode invoke request: %w", server.Alias, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.invokeURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", server.Alias, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: invoke %s: %w", server.Alias, tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: invoke %s: read response: %w", server.Alias, tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s: invoke %s: unexpected status %d", server.Alias, tool, resp.StatusCode)
	}

	var envelope struct {
		OK     bool           `json:"ok"`
		Result any            `json:"result"`
		Error  map[string]any `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("provider %s: invoke %s: decode response: %w", server.Alias, tool, err)
	}

	if envelope.OK {
		return envelope.Result, nil
	}

	// Tool-reported error: normalise into the soft-failure envelope so the
	// executor treats it like any structured tool failure.
	reason := "provider tool error"
	if msg, ok := envelope.Error["message"].(string); ok && msg != "" {
		reason = msg
	}
	out := SoftFailurePayload(reason, false)
	if envelope.Error != nil {
		out["error"] = envelope.Error
	}
	return out, nil
}

// remoteCapability routes invocations to a provider server.
type remoteCapability struct {
	spec   ToolSpec
	server ProviderServer
	// tool is the provider-local tool name (without the alias prefix).
	tool   string
	client *ProviderClient
}

func (c *remoteCapability) Spec() ToolSpec { return c.spec }

func (c *remoteCapability) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return c.client.Invoke(ctx, c.server, c.tool, args)
}

// DiscoverProviders queries each server and registers its tools under
// "<alias>." names. A server whose discovery fails stays configured but
// contributes no tools; the error is reported through logf and discovery
// continues with the remaining servers.
func DiscoverProviders(ctx context.Context, r *Registry, client *ProviderClient, servers []ProviderServer, logf func(format string, args ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	for _, server := range servers {
		defs, err := client.ListTools(ctx, server)
		if err != nil {
			logf("provider %s: discovery failed: %v", server.Alias, err)
			continue
		}

		for _, def := range defs {
			if def.Name == "" {
				continue
			}
			cap := &remoteCapability{
				spec: ToolSpec{
					Name:        server.Alias + "." + def.Name,
					Description: def.Description,
					InputSchema: def.InputSchema,
					Transient:   def.Transient,
				},
				server: server,
				tool:   def.Name,
				client: client,
			}
			if err := r.Register(cap); err != nil {
				return fmt.Errorf("register remote tool %s: %w", cap.spec.Name, err)
			}
		}
		logf("provider %s: registered %d tools", server.Alias, len(defs))
	}
	return nil
}

// RefreshProvider re-discovers one server's tools, replacing any previously
// registered under its alias.
func RefreshProvider(ctx context.Context, r *Registry, client *ProviderClient, server ProviderServer, logf func(format string, args ...any)) error {
	r.DropPrefix(server.Alias + ".")
	return DiscoverProviders(ctx, r, client, []ProviderServer{server}, logf)
}
