package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsListsBuiltins(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"actions"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "NAME")
	assert.Contains(t, out.String(), "echo")
	assert.Contains(t, out.String(), "tasks.enqueue")
}

func TestConfigPathPrecedence(t *testing.T) {
	t.Setenv("STELLAR_CONFIG", "/etc/stellar/env.yaml")
	cfgFile = ""
	assert.Equal(t, "/etc/stellar/env.yaml", configPath())

	cfgFile = "flag.yaml"
	t.Cleanup(func() { cfgFile = "" })
	assert.Equal(t, "flag.yaml", configPath())
}

type fakeNode struct {
	startCtx context.Context
	startErr error
	stopped  bool
}

func (f *fakeNode) Start(ctx context.Context) error {
	f.startCtx = ctx
	return f.startErr
}

func (f *fakeNode) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func TestRunNodeKeepsStartContextAfterSignal(t *testing.T) {
	signals, cancel := context.WithCancel(context.Background())
	cancel()

	n := &fakeNode{}
	require.NoError(t, runNode(context.Background(), signals, n, time.Second))
	assert.True(t, n.stopped)
	require.NotNil(t, n.startCtx)
	assert.NoError(t, n.startCtx.Err())
}

func TestRunNodeReturnsStartError(t *testing.T) {
	n := &fakeNode{startErr: errors.New("boom")}
	err := runNode(context.Background(), context.Background(), n, time.Second)
	assert.EqualError(t, err, "boom")
	assert.False(t, n.stopped)
}
