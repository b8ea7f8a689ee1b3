package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

const (
	serverName    = "docextract"
	serverVersion = "1.0.0"
)

// Handler exposes synchronous extraction as MCP tools.
type Handler struct {
	extractor   ports.DocumentExtractor
	catalog     ports.DocumentTypeCatalog
	defaultType string
	maxBytes    int64
}

func NewHandler(extractor ports.DocumentExtractor, catalog ports.DocumentTypeCatalog, defaultType string, maxBytes int64) *Handler {
	return &Handler{
		extractor:   extractor,
		catalog:     catalog,
		defaultType: defaultType,
		maxBytes:    maxBytes,
	}
}

// NewServer registers the tools on a fresh MCP server.
func NewServer(h *Handler) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("extract_document",
		mcp.WithDescription("Extract structured fields from a local PDF or image file. Returns the extraction result as JSON."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF, PNG, JPEG or TIFF file"),
		),
		mcp.WithString("document_type",
			mcp.Description("Configured document type, e.g. invoice; defaults to the server default"),
		),
		mcp.WithString("supplier_id",
			mcp.Description("Optional supplier identifier echoed in the result"),
		),
	), h.ExtractDocument)

	s.AddTool(mcp.NewTool("list_document_types",
		mcp.WithDescription("List the document types that have an extraction config."),
	), h.ListDocumentTypes)

	return s
}

func (h *Handler) ExtractDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	documentType := request.GetString("document_type", h.defaultType)

	data, err := h.readFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, _, err := h.extractor.ExtractFile(ctx, ports.ExtractRequest{
		Filename:     filepath.Base(path),
		DocumentType: documentType,
		SupplierID:   request.GetString("supplier_id", ""),
		Data:         data,
	})
	if err != nil {
		slog.Warn("mcp_extract_failed", "path", path, "document_type", documentType, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("extract %s: %v", path, err)), nil
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal extraction result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *Handler) ListDocumentTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(map[string][]string{"document_types": h.catalog.List()})
	if err != nil {
		return nil, fmt.Errorf("marshal document types: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *Handler) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %s does not exist", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read file", fmt.Errorf("%s is a directory", path))
	}
	if h.maxBytes > 0 && info.Size() > h.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read file", fmt.Errorf("%s exceeds %d bytes", path, h.maxBytes))
	}
	return os.ReadFile(path)
}
