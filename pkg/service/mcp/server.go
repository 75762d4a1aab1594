package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/repository"
	"github.com/m-mizutani/weeknote/pkg/usecase/summary"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "weeknote"
	serverVersion = "1.0.0"
)

// Server exposes the weekly workflow as MCP tools. Every call runs on its
// own workflow controller.
type Server struct {
	repo       repository.Repository
	storeErr   error
	summarizer *summary.Summarizer
	now        func() time.Time

	server *mcp.Server
}

// NewInput contains dependencies of a Server
type NewInput struct {
	Repo       repository.Repository
	StoreError error
	Summarizer *summary.Summarizer
	Now        func() time.Time
}

func New(input NewInput) *Server {
	s := &Server{
		repo:       input.Repo,
		storeErr:   input.StoreError,
		summarizer: input.Summarizer,
		now:        input.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	s.addTools()

	return s
}

// RunStdio serves the tools over stdin and stdout until ctx is done or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

// Handler returns a streamable HTTP handler for the tools.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

type createTeamParams struct {
	Name string `json:"name" jsonschema:"Team name"`
}

type addUpdateParams struct {
	TeamID     string `json:"team_id" jsonschema:"Team ID"`
	MemberName string `json:"member_name" jsonschema:"Name of the team member"`
	Update     string `json:"update" jsonschema:"What the member did this week"`
	WeekKey    string `json:"week_key,omitempty" jsonschema:"ISO week key such as 2026-W10. Defaults to the current week"`
}

type weekParams struct {
	TeamID  string `json:"team_id" jsonschema:"Team ID"`
	WeekKey string `json:"week_key,omitempty" jsonschema:"ISO week key such as 2026-W10. Defaults to the current week"`
}

type weekKeyParams struct {
	Date string `json:"date,omitempty" jsonschema:"Date in YYYY-MM-DD. Defaults to today"`
}

func (s *Server) addTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_team",
		Description: "Create a team and return its ID",
	}, s.createTeam)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_update",
		Description: "Record a weekly update of a team member",
	}, s.addUpdate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_updates",
		Description: "List the updates of a team for a week, newest first",
	}, s.listUpdates)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_summary",
		Description: "Summarize the updates of a team for a week with Gemini and store the summary",
	}, s.generateSummary)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "week_key",
		Description: "Return the ISO week key of a date",
	}, s.weekKey)
}

func (s *Server) controller() *workflow.Controller {
	return workflow.New(workflow.NewInput{
		Repo:       s.repo,
		StoreError: s.storeErr,
		Summarizer: s.summarizer,
		Now:        s.now,
	})
}

// selectTeam returns a controller with the team active and loaded.
func (s *Server) selectTeam(ctx context.Context, teamID, weekKey string) (*workflow.Controller, error) {
	c := s.controller()
	if _, err := c.SelectTeam(ctx, model.TeamID(teamID)); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Ready(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if weekKey != "" {
		c.SetWeekKey(weekKey)
	}
	return c, nil
}

func (s *Server) createTeam(ctx context.Context, req *mcp.CallToolRequest, params *createTeamParams) (*mcp.CallToolResult, any, error) {
	c := s.controller()
	defer c.Close()

	c.SetTeamName(params.Name)
	team, err := c.CreateTeam(ctx)
	if err != nil {
		return toolError(ctx, "create_team", err), nil, nil
	}
	return jsonResult(ctx, team)
}

func (s *Server) addUpdate(ctx context.Context, req *mcp.CallToolRequest, params *addUpdateParams) (*mcp.CallToolResult, any, error) {
	c, err := s.selectTeam(ctx, params.TeamID, params.WeekKey)
	if err != nil {
		return toolError(ctx, "add_update", err), nil, nil
	}
	defer c.Close()

	c.SetMemberName(params.MemberName)
	c.SetUpdate(params.Update)
	if err := c.AddWeeklyInput(ctx); err != nil {
		return toolError(ctx, "add_update", err), nil, nil
	}

	return textResult("update recorded for " + c.State().WeekKey), nil, nil
}

func (s *Server) listUpdates(ctx context.Context, req *mcp.CallToolRequest, params *weekParams) (*mcp.CallToolResult, any, error) {
	c, err := s.selectTeam(ctx, params.TeamID, params.WeekKey)
	if err != nil {
		return toolError(ctx, "list_updates", err), nil, nil
	}
	defer c.Close()

	return jsonResult(ctx, c.WeekEntries())
}

func (s *Server) generateSummary(ctx context.Context, req *mcp.CallToolRequest, params *weekParams) (*mcp.CallToolResult, any, error) {
	c, err := s.selectTeam(ctx, params.TeamID, params.WeekKey)
	if err != nil {
		return toolError(ctx, "generate_summary", err), nil, nil
	}
	defer c.Close()

	result, err := c.GenerateSummary(ctx)
	if err != nil {
		return toolError(ctx, "generate_summary", err), nil, nil
	}
	return textResult(result.Content), nil, nil
}

func (s *Server) weekKey(ctx context.Context, req *mcp.CallToolRequest, params *weekKeyParams) (*mcp.CallToolResult, any, error) {
	if params.Date == "" {
		return textResult(model.CurrentWeekKey(s.now)), nil, nil
	}

	date, err := time.Parse(time.DateOnly, params.Date)
	if err != nil {
		return toolError(ctx, "week_key", goerr.Wrap(model.ErrValidation, "date must be YYYY-MM-DD", goerr.V("date", params.Date))), nil, nil
	}
	return textResult(model.ComputeWeekKey(date)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(ctx context.Context, v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(ctx, "encode", goerr.Wrap(err, "failed to encode result")), nil, nil
	}
	return textResult(string(data)), nil, nil
}

// toolError reports err to the client as a tool result so that the model
// can react to it.
func toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	logging.From(ctx).Warn("tool call failed", "tool", tool, "error", err)

	result := textResult(err.Error())
	result.IsError = true
	return result
}
