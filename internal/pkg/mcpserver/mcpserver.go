// Package mcpserver exposes a running bay session to an external assistant
// over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/ohowland/baysim/internal/pkg/advisor"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/scenario"
)

// Resource URIs.
const (
	SnapshotURI  = "baysim://session/snapshot"
	ScenariosURI = "baysim://session/scenarios"
)

// Simulator is the engine surface the tools drive.
type Simulator interface {
	Snapshot() engine.Snapshot
	Catalog() scenario.Catalog
	Operate(id string, command engine.Command)
	InjectFault()
	LoadScenario(id string)
	Reset()
	SelectNode(id string)
}

// BayServer holds the tool and resource handlers.
type BayServer struct {
	Sim Simulator
}

// New builds an MCP server with the session tools and resources registered.
func New(sim Simulator, version string) *mcp.Server {
	bs := &BayServer{Sim: sim}

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "baysim",
		Version: version,
	}, &mcp.ServerOptions{})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "operate",
		Description: "Sends OPEN or CLOSE to a switching device and returns the resulting log entries",
	}, bs.operate)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "select_node",
		Description: "Selects a node for inspection, or clears the selection with an empty id",
	}, bs.selectNode)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "inject_fault",
		Description: "Injects a fault on the feeder line",
	}, bs.injectFault)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "load_scenario",
		Description: "Loads a training scenario by id",
	}, bs.loadScenario)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "reset",
		Description: "Restores standard operating conditions",
	}, bs.reset)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "tutor_prompt",
		Description: "Returns the instructor prompt for the current session state",
	}, bs.tutorPrompt)

	s.AddResource(&mcp.Resource{
		Name:     "snapshot",
		URI:      SnapshotURI,
		MIMEType: "application/json",
	}, bs.handleSnapshot)
	s.AddResource(&mcp.Resource{
		Name:     "scenarios",
		URI:      ScenariosURI,
		MIMEType: "application/json",
	}, bs.handleScenarios)

	return s
}

// OperateInput is the operate tool input.
type OperateInput struct {
	NodeID  string `json:"node_id" jsonschema:"required"`
	Command string `json:"command" jsonschema:"required"`
}

// NodeInput names a node.
type NodeInput struct {
	NodeID string `json:"node_id"`
}

// ScenarioInput names a scenario.
type ScenarioInput struct {
	ScenarioID string `json:"scenario_id" jsonschema:"required"`
}

// PromptInput is the tutor_prompt tool input.
type PromptInput struct {
	LastAction string `json:"last_action"`
}

// EmptyInput defines an empty input structure for tools that require no parameters.
type EmptyInput struct{}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// newEntries renders the log entries appended since before.
func newEntries(before int, snap engine.Snapshot) string {
	if before > len(snap.Logs) {
		before = 0
	}
	text := ""
	for _, e := range snap.Logs[before:] {
		text += e.String() + "\n"
	}
	if text == "" {
		return "No log entries."
	}
	return text
}

func (bs *BayServer) operate(ctx context.Context, req *mcp.CallToolRequest, input OperateInput) (*mcp.CallToolResult, any, error) {
	cmd, err := engine.ParseCommand(input.Command)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	before := bs.Sim.Snapshot()
	if _, ok := before.Nodes.Find(input.NodeID); !ok {
		return errorResult(fmt.Sprintf("unknown node %s", input.NodeID)), nil, nil
	}
	bs.Sim.Operate(input.NodeID, cmd)
	return textResult(newEntries(len(before.Logs), bs.Sim.Snapshot())), nil, nil
}

func (bs *BayServer) selectNode(ctx context.Context, req *mcp.CallToolRequest, input NodeInput) (*mcp.CallToolResult, any, error) {
	if input.NodeID != "" {
		if _, ok := bs.Sim.Snapshot().Nodes.Find(input.NodeID); !ok {
			return errorResult(fmt.Sprintf("unknown node %s", input.NodeID)), nil, nil
		}
	}
	bs.Sim.SelectNode(input.NodeID)
	n, ok := bs.Sim.Snapshot().Selected()
	if !ok {
		return textResult("Selection cleared."), nil, nil
	}
	return textResult(fmt.Sprintf("%s (%s): %s", n.Name, n.Kind, n.State)), nil, nil
}

func (bs *BayServer) injectFault(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, any, error) {
	before := bs.Sim.Snapshot()
	bs.Sim.InjectFault()
	return textResult(newEntries(len(before.Logs), bs.Sim.Snapshot())), nil, nil
}

func (bs *BayServer) loadScenario(ctx context.Context, req *mcp.CallToolRequest, input ScenarioInput) (*mcp.CallToolResult, any, error) {
	if _, err := bs.Sim.Catalog().Lookup(input.ScenarioID); err != nil {
		return errorResult(err.Error()), nil, nil
	}
	bs.Sim.LoadScenario(input.ScenarioID)
	return textResult(newEntries(0, bs.Sim.Snapshot())), nil, nil
}

func (bs *BayServer) reset(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, any, error) {
	bs.Sim.Reset()
	return textResult(newEntries(0, bs.Sim.Snapshot())), nil, nil
}

func (bs *BayServer) tutorPrompt(ctx context.Context, req *mcp.CallToolRequest, input PromptInput) (*mcp.CallToolResult, any, error) {
	snap := bs.Sim.Snapshot()
	last := input.LastAction
	if last == "" && len(snap.Logs) > 0 {
		last = snap.Logs[len(snap.Logs)-1].Message
	}
	return textResult(advisor.BuildPrompt(advisor.Request{Nodes: snap.Nodes, Logs: snap.Logs, LastAction: last})), nil, nil
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(bytes)},
		},
	}, nil
}

func (bs *BayServer) handleSnapshot(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, bs.Sim.Snapshot())
}

func (bs *BayServer) handleScenarios(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, bs.Sim.Catalog())
}
