package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/client"
	"github.com/patrickwarner/admediation/internal/models"
)

// ShowRewardedAdInput is the input of show_rewarded_ad.
type ShowRewardedAdInput struct {
	UserID string `json:"user_id,omitempty"`
}

// ShowRewardedAdOutput reports which network, if any, is showing the ad.
type ShowRewardedAdOutput struct {
	Filled    bool   `json:"filled"`
	RequestID string `json:"request_id,omitempty"`
	Network   string `json:"network"`
	Message   string `json:"message"`
}

// StatusInput is the (empty) input of rewarded_ad_status.
type StatusInput struct{}

// SourceOutput describes one ad source.
type SourceOutput struct {
	Network  string `json:"network"`
	State    string `json:"state"`
	Priority int    `json:"priority"`
	Ready    bool   `json:"ready"`
}

// StatusOutput is the output of rewarded_ad_status.
type StatusOutput struct {
	Ready   bool           `json:"ready"`
	Sources []SourceOutput `json:"sources"`
}

// BalanceInput is the input of reward_balance.
type BalanceInput struct {
	UserID string `json:"user_id"`
}

// BalanceOutput is the output of reward_balance.
type BalanceOutput struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// mediationAPI is the part of client.Client the tools use.
type mediationAPI interface {
	Show(ctx context.Context, userID string) (client.ShowResult, error)
	Status(ctx context.Context) (client.Status, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// MediationMCPServer exposes the mediation HTTP API as MCP tools.
type MediationMCPServer struct {
	api    mediationAPI
	logger *zap.Logger
}

// ShowRewardedAd implements the show_rewarded_ad tool.
func (s *MediationMCPServer) ShowRewardedAd(ctx context.Context, req *mcp.CallToolRequest, input ShowRewardedAdInput) (*mcp.CallToolResult, ShowRewardedAdOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := s.api.Show(ctx, input.UserID)
	if errors.Is(err, models.ErrNoFill) {
		s.logger.Info("show_rewarded_ad: no fill", zap.String("user_id", input.UserID))
		return nil, ShowRewardedAdOutput{
			Network: string(models.NetworkNone),
			Message: "No rewarded ad is currently available; loading has been started on every network.",
		}, nil
	}
	if err != nil {
		return nil, ShowRewardedAdOutput{}, fmt.Errorf("show rewarded ad: %w", err)
	}
	s.logger.Info("show_rewarded_ad: showing",
		zap.String("network", string(res.Network)),
		zap.String("request_id", res.RequestID))
	return nil, ShowRewardedAdOutput{
		Filled:    true,
		RequestID: res.RequestID,
		Network:   string(res.Network),
		Message:   fmt.Sprintf("Showing rewarded ad from %s", res.Network),
	}, nil
}

// RewardedAdStatus implements the rewarded_ad_status tool.
func (s *MediationMCPServer) RewardedAdStatus(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.api.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("fetch status: %w", err)
	}
	out := StatusOutput{Ready: st.Ready, Sources: make([]SourceOutput, 0, len(st.Sources))}
	for _, src := range st.Sources {
		out.Sources = append(out.Sources, SourceOutput{
			Network:  string(src.Network),
			State:    src.State.String(),
			Priority: src.Priority,
			Ready:    src.Ready,
		})
	}
	return nil, out, nil
}

// RewardBalance implements the reward_balance tool.
func (s *MediationMCPServer) RewardBalance(ctx context.Context, req *mcp.CallToolRequest, input BalanceInput) (*mcp.CallToolResult, BalanceOutput, error) {
	bal, err := s.api.Balance(ctx, input.UserID)
	if err != nil {
		return nil, BalanceOutput{}, fmt.Errorf("fetch balance: %w", err)
	}
	return nil, BalanceOutput{UserID: input.UserID, Balance: bal}, nil
}

func newMCPServer(s *MediationMCPServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "admediation",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "show_rewarded_ad",
		Description: "Show a rewarded video ad from the highest-priority network that has one loaded",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User to credit the reward to (optional)",
				},
			},
		},
	}, s.ShowRewardedAd)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rewarded_ad_status",
		Description: "Report whether a rewarded ad is ready and the state of every ad network",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, s.RewardedAdStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reward_balance",
		Description: "Return the reward wallet balance of a user",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User ID",
				},
			},
			"required": []string{"user_id"},
		},
	}, s.RewardBalance)
	return server
}

func main() {
	// Initialize logger for MCP server - use stderr to avoid stdio conflicts
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("admediation-mcp").With(zap.String("service", "admediation-mcp"))

	baseURL := os.Getenv("MEDIATION_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8787"
	}
	api, err := client.New(baseURL)
	if err != nil {
		logger.Fatal("Failed to create mediation client", zap.Error(err))
	}
	logger.Info("Starting mediation MCP server", zap.String("mediation_url", baseURL))

	server := newMCPServer(&MediationMCPServer{api: api, logger: logger})

	// Keep a transcript of the MCP exchange for the fatal log
	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
