package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu    sync.Mutex
	state []string
}

func (c *capture) notify(_ bool, state string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = append(c.state, state)
	return true, nil
}

func (c *capture) states() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.state...)
}

func withCapture(t *testing.T) *capture {
	t.Helper()
	c := &capture{}
	prev := notify
	notify = c.notify
	t.Cleanup(func() { notify = prev })
	return c
}

func TestStateMessages(t *testing.T) {
	c := withCapture(t)
	_, err := Ready()
	require.NoError(t, err)
	_, err = Status("serving")
	require.NoError(t, err)
	_, err = Stopping()
	require.NoError(t, err)
	assert.Equal(t, []string{daemon.SdNotifyReady, "STATUS=serving", daemon.SdNotifyStopping}, c.states())
}

func TestWatchdogPingsUntilCanceled(t *testing.T) {
	c := withCapture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watchdog(ctx, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(c.states()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	for _, s := range c.states() {
		assert.Equal(t, daemon.SdNotifyWatchdog, s)
	}
}

func TestWatchdogDisabled(t *testing.T) {
	c := withCapture(t)
	require.NoError(t, Watchdog(context.Background(), 0))
	assert.Empty(t, c.states())
}
