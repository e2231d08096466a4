// Package mcpapi provides a stateless MCP streamable-HTTP adapter over the activity feed.
package mcpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
	"github.com/evanschultz/hrfeed/internal/scheduler"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// FeedReader serves the read side of the activity log.
type FeedReader interface {
	RecentActivities(ctx context.Context, limit int) ([]app.ActivityView, error)
	AllActivities(context.Context, app.AllActivitiesInput) (app.ActivityPage, error)
	ActivitiesByActor(ctx context.Context, actorID string, limit int) ([]app.ActivityView, error)
	ActivitiesByEntity(ctx context.Context, subjectType domain.SubjectType, subjectID string, limit int) ([]app.ActivityView, error)
}

// Recorder appends generic activities.
type Recorder interface {
	Record(context.Context, app.RecordActivityInput) (domain.Activity, error)
}

// SchedulerStatus reports the absence-job snapshot.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// Dependencies groups the services exposed as tools. Recorder and Scheduler are optional.
type Dependencies struct {
	Feed      FeedReader
	Recorder  Recorder
	Scheduler SchedulerStatus
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter with feed tools and any optional tools deps provide.
func NewHandler(cfg Config, deps Dependencies) (*Handler, error) {
	if deps.Feed == nil {
		return nil, errors.New("feed reader is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerFeedTools(mcpSrv, deps.Feed)
	if deps.Recorder != nil {
		registerRecordTool(mcpSrv, deps.Recorder)
	}
	if deps.Scheduler != nil {
		registerSchedulerTool(mcpSrv, deps.Scheduler)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "hrfeed"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = "/" + strings.Trim(strings.TrimSpace(cfg.EndpointPath), "/")
	if cfg.EndpointPath == "/" {
		cfg.EndpointPath = "/mcp"
	}
	return cfg
}

func subjectTypeNames() []string {
	out := make([]string, 0, len(domain.SubjectTypes()))
	for _, st := range domain.SubjectTypes() {
		out = append(out, string(st))
	}
	return out
}

// registerFeedTools registers the read-only activity feed tools.
func registerFeedTools(srv *mcpserver.MCPServer, feed FeedReader) {
	srv.AddTool(
		mcp.NewTool(
			"hrfeed.recent_activities",
			mcp.WithDescription("Return the newest activities across the organization, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 10)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := feed.RecentActivities(ctx, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("recent_activities", map[string]any{"activities": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"hrfeed.activities_by_actor",
			mcp.WithDescription("Return activities performed by one employee, newest first."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Employee identifier of the actor")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			actorID, err := req.RequireString("actor_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := feed.ActivitiesByActor(ctx, actorID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("activities_by_actor", map[string]any{"activities": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"hrfeed.activities_by_entity",
			mcp.WithDescription("Return the history of one subject entity, newest first."),
			mcp.WithString("subject_type", mcp.Required(), mcp.Description("Subject type"), mcp.Enum(subjectTypeNames()...)),
			mcp.WithString("subject_id", mcp.Required(), mcp.Description("Subject identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			subjectType, err := req.RequireString("subject_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			subjectID, err := req.RequireString("subject_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := feed.ActivitiesByEntity(ctx, domain.SubjectType(subjectType), subjectID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("activities_by_entity", map[string]any{"activities": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"hrfeed.list_activities",
			mcp.WithDescription("Return one page of the full activity log with totals."),
			mcp.WithNumber("page", mcp.Description("1-based page number")),
			mcp.WithNumber("limit", mcp.Description("Rows per page (default 20, max 100)")),
			mcp.WithString("subject_type", mcp.Description("Only include activities about this subject type")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			page, err := feed.AllActivities(ctx, app.AllActivitiesInput{
				Page:        req.GetInt("page", 1),
				Limit:       req.GetInt("limit", 0),
				SubjectType: req.GetString("subject_type", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_activities", page)
		},
	)
}

// registerRecordTool registers the generic write tool.
func registerRecordTool(srv *mcpserver.MCPServer, recorder Recorder) {
	srv.AddTool(
		mcp.NewTool(
			"hrfeed.record_activity",
			mcp.WithDescription("Append one activity to the log."),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("Employee identifier of the actor")),
			mcp.WithString("action", mcp.Required(), mcp.Description("Action name")),
			mcp.WithString("subject_type", mcp.Required(), mcp.Description("Subject type"), mcp.Enum(subjectTypeNames()...)),
			mcp.WithString("subject_id", mcp.Required(), mcp.Description("Subject identifier")),
			mcp.WithString("subject_name", mcp.Description("Display name of the subject")),
			mcp.WithString("description", mcp.Required(), mcp.Description("Human-readable sentence")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in := app.RecordActivityInput{
				SubjectName: req.GetString("subject_name", ""),
				Details:     domain.Extra{},
			}
			for key, dst := range map[string]*string{
				"actor_id":    &in.ActorID,
				"subject_id":  &in.SubjectID,
				"description": &in.Description,
			} {
				value, err := req.RequireString(key)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				*dst = value
			}
			action, err := req.RequireString("action")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			subjectType, err := req.RequireString("subject_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.Action = domain.Action(action)
			in.SubjectType = domain.SubjectType(subjectType)

			activity, err := recorder.Record(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("record_activity", app.NewActivityView(activity, nil))
		},
	)
}

// registerSchedulerTool registers the absence-job status tool.
func registerSchedulerTool(srv *mcpserver.MCPServer, status SchedulerStatus) {
	srv.AddTool(
		mcp.NewTool(
			"hrfeed.scheduler_status",
			mcp.WithDescription("Return the absence-marking job status and health."),
		),
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult("scheduler_status", status.Status())
		},
	)
}

func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s result", tool)
	}
	return result, nil
}

// toolResultFromError maps app errors onto stable tool-error prefixes.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrValidation):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, app.ErrAuthorization):
		return mcp.NewToolResultError("forbidden: " + err.Error())
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
