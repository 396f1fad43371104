package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchLimit caps fetched content so observations stay prompt-sized.
const fetchLimit = 4000

// RegisterBuiltins adds the local toolset to the registry. httpClient is
// used by fetch_url; pass nil for http.DefaultClient.
func RegisterBuiltins(r *Registry, httpClient *http.Client) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	builtins := []struct {
		spec ToolSpec
		fn   InvokeFunc
	}{
		{
			spec: ToolSpec{
				Name:        "add_numbers",
				Description: "Add two numbers and return their sum.",
				InputSchema: numberPairSchema(),
			},
			fn: addNumbers,
		},
		{
			spec: ToolSpec{
				Name:        "get_time",
				Description: "Return the current time in a specified city (stubbed).",
				InputSchema: cityArgSchema(),
			},
			fn: getTime,
		},
		{
			spec: ToolSpec{
				Name:        "get_weather",
				Description: "Return stubbed weather information for a specified city.",
				InputSchema: cityArgSchema(),
			},
			fn: getWeather,
		},
		{
			spec: ToolSpec{
				Name:        "fetch_url",
				Description: "Fetch raw content from a given URL (HTML/text, truncated). Hard-fails on errors.",
				InputSchema: map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           map[string]any{"url": map[string]any{"type": "string"}},
					"required":             []any{"url"},
				},
			},
			fn: fetchURL(httpClient),
		},
		{
			spec: ToolSpec{
				Name:        "always_fail",
				Description: "Always fails intentionally to exercise replanning.",
				InputSchema: reasonArgSchema(),
			},
			fn: alwaysFail,
		},
		{
			spec: ToolSpec{
				Name:        "soft_fail",
				Description: "Returns a structured failure payload (no fault) to exercise soft-failure handling.",
				InputSchema: map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"reason":    map[string]any{"type": "string"},
						"retryable": map[string]any{"type": "boolean"},
					},
				},
			},
			fn: softFail,
		},
	}

	for _, b := range builtins {
		if err := r.RegisterLocal(b.spec, b.fn); err != nil {
			return fmt.Errorf("register builtin %s: %w", b.spec.Name, err)
		}
	}
	return nil
}

func numberPairSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}
}

func cityArgSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{"city": map[string]any{"type": "string"}},
		"required":             []any{"city"},
	}
}

func reasonArgSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{"reason": map[string]any{"type": "string"}},
	}
}

func addNumbers(_ context.Context, args map[string]any) (any, error) {
	a, err := numberArg(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func getTime(_ context.Context, args map[string]any) (any, error) {
	city, err := stringArg(args, "city")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	return fmt.Sprintf("Time in %s: %s (stubbed)", city, now), nil
}

func getWeather(_ context.Context, args map[string]any) (any, error) {
	city, err := stringArg(args, "city")
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Weather in %s: 18C, clear (stubbed)", city), nil
}

func fetchURL(client *http.Client) InvokeFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %q: %w", url, err)
		}
		req.Header.Set("User-Agent", "atelier/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %q: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("fetch %q: unexpected status %d", url, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, fetchLimit))
		if err != nil {
			return nil, fmt.Errorf("fetch %q: read body: %w", url, err)
		}
		return string(body), nil
	}
}

func alwaysFail(_ context.Context, args map[string]any) (any, error) {
	reason := "forced failure for replanning test"
	if s, ok := args["reason"].(string); ok && s != "" {
		reason = s
	}
	return nil, errors.New(reason)
}

func softFail(_ context.Context, args map[string]any) (any, error) {
	reason := "soft failure for replanning test"
	if s, ok := args["reason"].(string); ok && s != "" {
		reason = s
	}
	retryable, _ := args["retryable"].(bool)
	return SoftFailurePayload(reason, retryable), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
}
