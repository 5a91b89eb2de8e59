package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/waha-notification-bridge/internal/dispatch"
	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
)

type staticRecipients struct {
	list []string
	err  error
}

func (s staticRecipients) Recipients() ([]string, error) { return s.list, s.err }

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) ObserveDelivery(source, outcome string) {
	c.counts[source+"/"+outcome]++
}

func TestSendBulkContinuesPastFailures(t *testing.T) {
	gw := waha.NewMockGateway("default", zerolog.Nop(),
		waha.WithChatScenario("919876543210@c.us", waha.ScenarioAborted))
	rec := &countingRecorder{counts: map[string]int{}}
	d, err := dispatch.New(gw, staticRecipients{list: []string{
		"911234567890@c.us",
		"919876543210@c.us",
		"12025550147@c.us",
	}}, zerolog.Nop(), dispatch.WithMetrics(rec))
	require.NoError(t, err)

	res, err := d.SendBulk(context.Background(), "market update", "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, models.OutcomeSuccess, res.Results[0].Status)
	assert.Equal(t, models.OutcomeError, res.Results[1].Status)
	assert.Contains(t, res.Results[1].Error, "aborted")
	assert.Equal(t, "12025550147@c.us", res.Results[2].ChatID)

	sent := gw.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "911234567890@c.us", sent[0].ChatID)
	assert.Equal(t, "12025550147@c.us", sent[1].ChatID)
	assert.Equal(t, 2, rec.counts["bulk/success"])
	assert.Equal(t, 1, rec.counts["bulk/error"])
}

func TestSendBulkNoRecipients(t *testing.T) {
	d, err := dispatch.New(waha.NewMockGateway("", zerolog.Nop()), staticRecipients{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = d.SendBulk(context.Background(), "hi", "")
	assert.ErrorIs(t, err, dispatch.ErrNoRecipients)
}

func TestSendBulkRecipientLoadError(t *testing.T) {
	cause := errors.New("permission denied")
	d, err := dispatch.New(waha.NewMockGateway("", zerolog.Nop()), staticRecipients{err: cause}, zerolog.Nop())
	require.NoError(t, err)

	_, err = d.SendBulk(context.Background(), "hi", "")
	assert.ErrorIs(t, err, cause)
}

func TestSendBulkStopsOnCancellation(t *testing.T) {
	gw := waha.NewMockGateway("", zerolog.Nop())
	d, err := dispatch.New(gw, staticRecipients{list: []string{"911234567890@c.us"}}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.SendBulk(ctx, "hi", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gw.Sent())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := dispatch.New(nil, staticRecipients{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = dispatch.New(waha.NewMockGateway("", zerolog.Nop()), nil, zerolog.Nop())
	assert.Error(t, err)
}
