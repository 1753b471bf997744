package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/beregbot/bereg/internal/biz/domain"
	"github.com/beregbot/bereg/internal/biz/usecase"
)

// KBServer provides MCP tools over the knowledge base and the escalation
// queue, for wiring the bot's data into agent tooling.
type KBServer struct {
	server    *mcp.Server
	matcher   *usecase.Matcher
	knowledge *usecase.KnowledgeUsecase
	pending   *usecase.PendingUsecase
}

// NewServer creates a new knowledge-base MCP server
func NewServer(matcher *usecase.Matcher, knowledge *usecase.KnowledgeUsecase, pending *usecase.PendingUsecase) *KBServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "bereg-kb",
		Version: "v1.0.0",
	}, nil)

	ks := &KBServer{
		server:    server,
		matcher:   matcher,
		knowledge: knowledge,
		pending:   pending,
	}

	ks.registerTools()

	return ks
}

// registerTools registers all knowledge-base MCP tools
func (s *KBServer) registerTools() {
	// Tool: kb_query - Run a question through the matcher
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kb_query",
		Description: "Query the resort knowledge base with a guest question. Returns the stored answer when the question matches, or reports that it would be escalated to staff.",
	}, s.handleQuery)

	// Tool: kb_pending_list - List unanswered escalated questions
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kb_pending_list",
		Description: "List guest questions waiting for a staff answer, in arrival order.",
	}, s.handlePendingList)

	// Tool: kb_stats - Knowledge base and queue counters
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kb_stats",
		Description: "Get the number of knowledge base entries and pending questions.",
	}, s.handleStats)
}

// QueryInput is the input for the kb_query tool
type QueryInput struct {
	Question string `json:"question" jsonschema:"description=The guest question to look up"`
}

// QueryOutput is the output for the kb_query tool
type QueryOutput struct {
	Status    string  `json:"status"` // found, none, too_short
	Answer    string  `json:"answer,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

func (s *KBServer) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	res := s.matcher.Query(input.Question)

	switch res.Kind {
	case domain.MatchFound:
		return nil, QueryOutput{Status: "found", Answer: res.Answer, Relevance: res.Relevance}, nil
	case domain.MatchTooShort:
		return nil, QueryOutput{Status: "too_short"}, nil
	default:
		return nil, QueryOutput{Status: "none"}, nil
	}
}

// PendingListInput is empty - no input needed
type PendingListInput struct{}

// PendingItem is one escalated question
type PendingItem struct {
	UserID    string `json:"user_id"`
	UserInfo  string `json:"user_info"`
	Question  string `json:"question"`
	CreatedAt int64  `json:"created_at"`
}

// PendingListOutput contains the escalation queue
type PendingListOutput struct {
	Questions []PendingItem `json:"questions"`
}

func (s *KBServer) handlePendingList(ctx context.Context, req *mcp.CallToolRequest, input PendingListInput) (*mcp.CallToolResult, PendingListOutput, error) {
	snapshot := s.pending.Snapshot()

	items := make([]PendingItem, 0, len(snapshot))
	for _, q := range snapshot {
		items = append(items, PendingItem{
			UserID:    q.UserID,
			UserInfo:  q.UserInfo,
			Question:  q.Question,
			CreatedAt: q.CreatedAt.Unix(),
		})
	}

	return nil, PendingListOutput{Questions: items}, nil
}

// StatsInput is empty - no input needed
type StatsInput struct{}

// StatsOutput contains the counters
type StatsOutput struct {
	KnowledgeEntries int `json:"knowledge_entries"`
	PendingQuestions int `json:"pending_questions"`
}

func (s *KBServer) handleStats(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	return nil, StatsOutput{
		KnowledgeEntries: s.knowledge.Len(),
		PendingQuestions: s.pending.Count(),
	}, nil
}

// Run starts the MCP server with stdio transport
func (s *KBServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
