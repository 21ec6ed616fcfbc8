package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/client"
	"github.com/patrickwarner/admediation/internal/models"
)

type fakeAPI struct {
	show    client.ShowResult
	showErr error
	status  client.Status
	balance int64
}

func (f *fakeAPI) Show(context.Context, string) (client.ShowResult, error) { return f.show, f.showErr }
func (f *fakeAPI) Status(context.Context) (client.Status, error)          { return f.status, nil }
func (f *fakeAPI) Balance(context.Context, string) (int64, error)         { return f.balance, nil }

func TestShowRewardedAdFilled(t *testing.T) {
	s := &MediationMCPServer{api: &fakeAPI{show: client.ShowResult{RequestID: "r1", Network: models.NetworkAdMob}}, logger: zap.NewNop()}
	_, out, err := s.ShowRewardedAd(context.Background(), nil, ShowRewardedAdInput{UserID: "u"})
	require.NoError(t, err)
	assert.True(t, out.Filled)
	assert.Equal(t, "AdMob", out.Network)
	assert.Equal(t, "r1", out.RequestID)
}

func TestShowRewardedAdNoFill(t *testing.T) {
	s := &MediationMCPServer{api: &fakeAPI{showErr: models.ErrNoFill}, logger: zap.NewNop()}
	_, out, err := s.ShowRewardedAd(context.Background(), nil, ShowRewardedAdInput{})
	require.NoError(t, err)
	assert.False(t, out.Filled)
	assert.Equal(t, "None", out.Network)
}

func TestShowRewardedAdError(t *testing.T) {
	s := &MediationMCPServer{api: &fakeAPI{showErr: errors.New("connection refused")}, logger: zap.NewNop()}
	_, _, err := s.ShowRewardedAd(context.Background(), nil, ShowRewardedAdInput{})
	assert.Error(t, err)
}

func TestRewardedAdStatus(t *testing.T) {
	api := &fakeAPI{status: client.Status{Ready: true, Sources: []models.SourceStatus{
		{Network: models.NetworkAdMob, State: models.StateReady, Priority: 0, Ready: true},
		{Network: models.NetworkUnityAds, State: models.StateLoading, Priority: 1},
	}}}
	s := &MediationMCPServer{api: api, logger: zap.NewNop()}
	_, out, err := s.RewardedAdStatus(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Ready)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "ready", out.Sources[0].State)
	assert.Equal(t, "loading", out.Sources[1].State)
}

func TestRewardBalance(t *testing.T) {
	s := &MediationMCPServer{api: &fakeAPI{balance: 42}, logger: zap.NewNop()}
	_, out, err := s.RewardBalance(context.Background(), nil, BalanceInput{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, BalanceOutput{UserID: "u", Balance: 42}, out)
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	assert.NotNil(t, newMCPServer(&MediationMCPServer{api: &fakeAPI{}, logger: zap.NewNop()}))
}
