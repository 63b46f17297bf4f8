// Package mcp exposes catalog and snapshot inspection as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/guide"
	"github.com/ormasoftchile/remedy/pkg/render"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// HandleValidateCatalog implements the remedy/validate_catalog MCP tool.
func HandleValidateCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errorResult(fmt.Sprintf("open catalog: %s", err)), nil
	}
	defer f.Close()

	c, err := workflow.LoadCatalog(f)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if errs := c.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return errorResult(strings.Join(msgs, "; ")), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", c.Name, len(c.Steps))), nil
}

// HandleSchema implements the remedy/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := snapshot.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleImportCheck implements the remedy/import_check MCP tool.
func HandleImportCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := documentArg(req.GetArguments())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	res, err := snapshot.Import(raw)
	if err != nil {
		var se *snapshot.SchemaError
		if errors.As(err, &se) {
			return jsonResult(map[string]any{"valid": false, "problems": problemStrings(se.Problems)}, true), nil
		}
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"valid":     true,
		"version":   res.Version,
		"steps":     len(res.Steps),
		"timestamp": res.Timestamp,
	}, false), nil
}

// HandleAnalytics implements the remedy/analytics MCP tool. Durations are
// not part of a snapshot, so timing fields come from the exported
// analytics when the document carries them.
func HandleAnalytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, failed := importArg(req)
	if failed != nil {
		return failed, nil
	}
	computed := analytics.ComputeAnalytics(res.Steps, nil)
	if exp := res.Analytics; exp != nil {
		computed.AverageStepTime = exp.AverageStepTime
		computed.EstimatedTimeRemaining = exp.EstimatedTimeRemaining
		computed.BottleneckSteps = exp.BottleneckSteps
	}
	return jsonResult(map[string]any{
		"analytics":  computed,
		"categories": analytics.CategoryBreakdown(res.Steps),
	}, false), nil
}

// HandleNextStep implements the remedy/next_step MCP tool.
func HandleNextStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, failed := importArg(req)
	if failed != nil {
		return failed, nil
	}
	m, err := workflow.NewMachine(res.Steps)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out := map[string]any{"current": m.CurrentStepID()}
	if next, ok := m.NextPending(); ok {
		st, _ := m.Step(next)
		out["next"] = next
		out["nextTitle"] = st.Title
		out["requirements"] = st.Requirements
	} else {
		out["next"] = nil
	}
	return jsonResult(out, false), nil
}

// HandleDiagram implements the remedy/diagram MCP tool.
func HandleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, failed := importArg(req)
	if failed != nil {
		return failed, nil
	}
	format, _ := req.GetArguments()["format"].(string)
	if format == "" {
		format = string(render.FormatASCII)
	}
	out, err := render.Diagram("remedy", res.Steps, render.Format(format))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(out), nil
}

// HandleCompileGuide compiles a Markdown guide into catalog YAML. Warnings
// about destructive commands are appended as YAML comments.
func HandleCompileGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	source, _ := args["markdown"].(string)
	if strings.TrimSpace(source) == "" {
		path, _ := args["path"].(string)
		if path == "" {
			return errorResult("markdown or path argument is required"), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errorResult(fmt.Sprintf("read guide: %s", err)), nil
		}
		source = string(data)
	}

	c, warnings, err := guide.Compile([]byte(source))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return errorResult(fmt.Sprintf("marshal catalog: %s", err)), nil
	}
	var b strings.Builder
	for _, w := range warnings {
		fmt.Fprintf(&b, "# warning: %s\n", w)
	}
	b.Write(out)
	return textResult(b.String()), nil
}

func importArg(req mcp.CallToolRequest) (*snapshot.Result, *mcp.CallToolResult) {
	raw, err := documentArg(req.GetArguments())
	if err != nil {
		return nil, errorResult(err.Error())
	}
	res, err := snapshot.Import(raw)
	if err != nil {
		return nil, errorResult(err.Error())
	}
	return res, nil
}

// documentArg reads the snapshot from the document argument (JSON text or
// an object) or, failing that, from the file named by path.
func documentArg(args map[string]any) ([]byte, error) {
	switch doc := args["document"].(type) {
	case string:
		if strings.TrimSpace(doc) != "" {
			return []byte(doc), nil
		}
	case map[string]any:
		return json.Marshal(doc)
	}
	path, _ := args["path"].(string)
	if path == "" {
		return nil, errors.New("document or path argument is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func problemStrings(ps []snapshot.Problem) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.String())
	}
	return out
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
