package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/mcpserver"
	"github.com/ohowland/baysim/internal/pkg/scenario"
)

const version = "0.1.0"

// main serves a private bay session over stdio. Process logs go to stderr
// so they stay off the protocol stream.
func main() {
	engineConfig := flag.String("engine", "./config/engine.json", "engine configuration")
	scenarios := flag.String("scenarios", "./config/scenarios.json", "scenario catalog")
	flag.Parse()
	log.SetOutput(os.Stderr)

	cfg, err := engine.ReadConfig(*engineConfig)
	if err != nil {
		log.Println("[MCP] using default engine config:", err)
		cfg = engine.DefaultConfig()
	}
	catalog, err := scenario.ReadFile(*scenarios)
	if err != nil {
		log.Println("[MCP] using built in scenarios:", err)
		catalog = scenario.Default()
	}

	e := engine.New(engine.WithConfig(cfg), engine.WithLibrary(scenario.NewLibrary(catalog)))
	e.Start()
	defer e.Stop()

	server := mcpserver.New(e, version)
	if err := server.Run(context.Background(), &sdk.StdioTransport{}); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server stopped: %v\n", err)
		os.Exit(1)
	}
}
