package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
)

func registerTools(s *server.MCPServer, cfg Config, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks in the queue, newest first. Shows each task's id, status, priority and result summary."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return (default 50)"),
			),
		),
		listTasksHandler(cfg, log),
	)

	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Get a single task with its status, plan, cost and result."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID to fetch"),
			),
		),
		getTaskHandler(cfg, log),
	)

	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Enqueue a new task for the agent fleet. Higher priority tasks are claimed first."),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The instruction for the agent"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Task priority; higher runs sooner (default 0)"),
			),
		),
		createTaskHandler(cfg, log),
	)

	s.AddTool(
		mcp.NewTool("task_logs",
			mcp.WithDescription("Fetch the stored run log of a task: every agent event recorded while it ran."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID whose log to fetch"),
			),
		),
		taskLogsHandler(cfg, log),
	)

	s.AddTool(
		mcp.NewTool("worker_status",
			mcp.WithDescription("Show every worker in the fleet and the task each one is running."),
		),
		workerStatusHandler(cfg, log),
	)

	s.AddTool(
		mcp.NewTool("create_plan",
			mcp.WithDescription("Run the task in plan mode: the agent produces a plan without touching the workspace. The task waits for approval afterwards."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID to plan"),
			),
		),
		planActionHandler(cfg, log, ""),
	)

	s.AddTool(
		mcp.NewTool("approve_plan",
			mcp.WithDescription("Approve a task's plan. A fresh execution task carrying the plan is enqueued."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The planned task ID to approve"),
			),
		),
		planActionHandler(cfg, log, "/approve"),
	)

	s.AddTool(
		mcp.NewTool("reject_plan",
			mcp.WithDescription("Reject a task's plan. The task is cancelled and nothing runs."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The planned task ID to reject"),
			),
		),
		planActionHandler(cfg, log, "/reject"),
	)

	log.Info("Registered MCP tools", zap.Int("count", 8))
}

// requireTaskID pulls the task_id argument. MCP arguments arrive as JSON,
// so numbers decode as float64.
func requireTaskID(req mcp.CallToolRequest) (int64, error) {
	args := req.GetArguments()
	v, ok := args["task_id"].(float64)
	if !ok || v <= 0 {
		return 0, fmt.Errorf("task_id is required")
	}
	return int64(v), nil
}

func listTasksHandler(cfg Config, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url := fmt.Sprintf("%s/api/v1/tasks", cfg.DroverURL)
		if limit, ok := req.GetArguments()["limit"].(float64); ok && limit > 0 {
			url = fmt.Sprintf("%s?limit=%d", url, int(limit))
		}
		return proxyGet(ctx, url, log)
	}
}

func getTaskHandler(cfg Config, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := requireTaskID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return proxyGet(ctx, fmt.Sprintf("%s/api/v1/tasks/%d", cfg.DroverURL, taskID), log)
	}
}

func createTaskHandler(cfg Config, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		payload := map[string]interface{}{
			"prompt": prompt,
		}
		if priority, ok := req.GetArguments()["priority"].(float64); ok {
			payload["priority"] = int(priority)
		}
		return proxyPost(ctx, fmt.Sprintf("%s/api/v1/tasks", cfg.DroverURL), payload, log)
	}
}

func taskLogsHandler(cfg Config, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := requireTaskID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return proxyGet(ctx, fmt.Sprintf("%s/api/v1/tasks/%d/logs", cfg.DroverURL, taskID), log)
	}
}

func workerStatusHandler(cfg Config, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return proxyGet(ctx, fmt.Sprintf("%s/api/v1/workers", cfg.DroverURL), log)
	}
}

// planActionHandler serves create_plan, approve_plan and reject_plan, which
// differ only in the path suffix after /plan.
func planActionHandler(cfg Config, log *logger.Logger, suffix string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := requireTaskID(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		url := fmt.Sprintf("%s/api/v1/tasks/%d/plan%s", cfg.DroverURL, taskID, suffix)
		return proxyPost(ctx, url, nil, log)
	}
}

func proxyGet(ctx context.Context, url string, log *logger.Logger) (*mcp.CallToolResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build request: %v", err)), nil
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		log.Error("Failed to reach drover API", zap.String("url", url), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reach drover API: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	return toolResultFromResponse(resp)
}

func proxyPost(ctx context.Context, url string, payload interface{}, log *logger.Logger) (*mcp.CallToolResult, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode payload: %v", err)), nil
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build request: %v", err)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		log.Error("Failed to reach drover API", zap.String("url", url), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reach drover API: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	return toolResultFromResponse(resp)
}

func toolResultFromResponse(resp *http.Response) (*mcp.CallToolResult, error) {
	var result json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if resp.StatusCode >= 400 {
		return mcp.NewToolResultError(fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(result))), nil
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(formatted)), nil
}
