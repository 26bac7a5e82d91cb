package api

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/doccheck/internal/llm"
	"github.com/kalambet/doccheck/internal/pipeline"
)

const systemPromptURI = "doccheck://system-prompt"

// NewMCPServer creates an MCP server exposing document checks as tools.
func NewMCPServer(checker Checker, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"doccheck",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("doccheck audits legal documents of online shops (public offer, privacy policy, returns) against Russian law."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("check_document",
			mcp.WithDescription("Check the text of a legal document for compliance and return a risk report."),
			mcp.WithString("text", mcp.Description("Full document text (at least 50 characters)"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Optional requester id recorded in logs")),
		),
		mcpCheckDocument(checker),
	)

	s.AddTool(
		mcp.NewTool("check_website",
			mcp.WithDescription("Fetch a website, extract its offer, privacy and returns sections and check them for compliance."),
			mcp.WithString("url", mcp.Description("Website address; https:// is assumed when no scheme is given"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Optional requester id recorded in logs")),
		),
		mcpCheckWebsite(checker),
	)

	s.AddResource(
		mcp.NewResource(
			systemPromptURI,
			"Compliance prompt",
			mcp.WithResourceDescription("System prompt sent to the model with every check"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceSystemPrompt,
	)

	return s
}

func mcpCheckDocument(checker Checker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpCheckResult(checker.Run(ctx, pipeline.CheckRequest{
			Content:     text,
			RequesterID: req.GetString("user_id", "mcp"),
		})), nil
	}
}

func mcpCheckWebsite(checker Checker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		return mcpCheckResult(checker.Run(ctx, pipeline.CheckRequest{
			Content:     pipeline.URLPrefix + url,
			RequesterID: req.GetString("user_id", "mcp"),
		})), nil
	}
}

func mcpResourceSystemPrompt(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     llm.SystemPrompt,
		},
	}, nil
}

func mcpCheckResult(res pipeline.CheckResult) *mcp.CallToolResult {
	if !res.Success {
		return mcpError(res.ErrorMessage)
	}
	return mcpText(res.ReportText)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
