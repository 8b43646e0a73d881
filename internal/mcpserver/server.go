// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes provenance lookups for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/provservice"
	"github.com/starford/provscan/internal/tag"
)

const formatURI = "provscan://tag-format"

// Server wraps the MCP server with provscan tools.
type Server struct {
	mcp *server.MCPServer
	svc *provservice.Service
}

// New creates a new MCP server with all provscan tools registered.
func New(svc *provservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"provscan",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_path",
		mcp.WithDescription("Resolve which application wrote a single file, from its provenance attribute."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file")),
	), s.scanPath)

	s.mcp.AddTool(mcp.NewTool("scan_tree",
		mcp.WithDescription("Resolve provenance for every tagged entry under a directory. "+
			"Untagged entries are omitted."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the directory")),
	), s.scanTree)

	s.mcp.AddTool(mcp.NewTool("lookup_record",
		mcp.WithDescription("Look up a provenance record by key, including linked records."),
		mcp.WithString("pk", mcp.Required(), mcp.Description("Key as 0x-prefixed hex (as returned in pk) or decimal")),
	), s.lookupRecord)

	s.mcp.AddTool(mcp.NewTool("get_tag_format",
		mcp.WithDescription("Describe the provenance attribute layout and result fields."),
	), s.getTagFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Provenance Tag Format",
			mcp.WithResourceDescription("Binary layout of the provenance attribute and meaning of result fields."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTagFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) scanPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Scan(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrAttributeAbsent) {
			return mcp.NewToolResultText(fmt.Sprintf("no provenance information: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) scanTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ScanTree(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) lookupRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("pk")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := tag.ParseKey(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Record(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no record for %s", key)), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) getTagFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TagFormatContract), nil
}

func (s *Server) readTagFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     TagFormatContract,
		},
	}, nil
}
