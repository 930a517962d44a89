package jobq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_EndToEnd_ShellCommands(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	store := NewRedisStore(rdb, "e2e")
	cli := NewClient(store, ClientConfig{DefaultMaxRetries: 0})
	ctx := context.Background()

	disp := NewDispatcher(store, NewShellExecutor(5*time.Second), DispatcherConfig{
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		Logger:       NewFmtLogger(),
	})
	var logs []string
	disp.Use(LoggingMiddleware(&testLogger{messages: &logs}))
	disp.Start()
	defer disp.Stop()

	okID, err := cli.Enqueue(ctx, "echo hello")
	require.NoError(t, err)
	badID, err := cli.Enqueue(ctx, "echo nope >&2; exit 2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sum, err := cli.StatusSummary(ctx)
		return err == nil && sum[StateCompleted] == 1 && sum[StateDead] == 1
	}, 5*time.Second, 20*time.Millisecond)

	ok, err := cli.GetJob(ctx, okID)
	require.NoError(t, err)
	require.Equal(t, "hello\n", ok.Output)

	bad, err := cli.GetJob(ctx, badID)
	require.NoError(t, err)
	require.Equal(t, StateDead, bad.State)
	require.Equal(t, "nope", bad.LastError)
	require.Equal(t, 1, bad.Attempts)
}
