package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-case-api/internal/models"
)

type runnerMock struct {
	mu     sync.Mutex
	calls  []models.AuthContext
	scopes []models.RunScope
	fail   int
	done   chan struct{}
}

func (r *runnerMock) RunAlerts(_ context.Context, auth models.AuthContext, scope models.RunScope) (*models.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auth)
	r.scopes = append(r.scopes, scope)
	if r.fail > 0 {
		r.fail--
		return nil, errors.New("database unavailable")
	}
	select {
	case r.done <- struct{}{}:
	default:
	}
	return &models.RunResult{OK: true}, nil
}

func waitForRun(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alert run was not executed")
	}
}

func TestAlertSchedulerTriggerRunsAsSystemActor(t *testing.T) {
	runner := &runnerMock{done: make(chan struct{}, 1)}
	s := NewAlertScheduler(runner, AlertSchedulerConfig{Interval: time.Hour, SystemUserID: "system-bot"}, nil)
	s.Start(context.Background())
	defer s.Stop()

	require.NoError(t, s.Trigger())
	waitForRun(t, runner.done)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 1)
	assert.Equal(t, models.AuthContext{UserID: "system-bot", Role: models.RoleAdmin}, runner.calls[0])
	assert.Equal(t, models.RunScope{IncludeReminders: true}, runner.scopes[0])
}

func TestAlertSchedulerTicks(t *testing.T) {
	runner := &runnerMock{done: make(chan struct{}, 4)}
	s := NewAlertScheduler(runner, AlertSchedulerConfig{Interval: 20 * time.Millisecond}, nil)
	s.Start(context.Background())
	defer s.Stop()

	waitForRun(t, runner.done)
	waitForRun(t, runner.done)
}

func TestAlertSchedulerRetriesFailedRun(t *testing.T) {
	runner := &runnerMock{done: make(chan struct{}, 1), fail: 1}
	s := NewAlertScheduler(runner, AlertSchedulerConfig{Interval: time.Hour, MaxRetries: 2, RetryDelay: 10 * time.Millisecond}, nil)
	s.Start(context.Background())
	defer s.Stop()

	require.NoError(t, s.Trigger())
	waitForRun(t, runner.done)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.calls, 2)
}

func TestAlertSchedulerTriggerBeforeStart(t *testing.T) {
	s := NewAlertScheduler(&runnerMock{done: make(chan struct{}, 1)}, AlertSchedulerConfig{}, nil)
	assert.Error(t, s.Trigger())
	assert.False(t, s.pending.Load())
}
