package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithoutApplication(t *testing.T) {
	ctx := WithApplication(context.Background(), nil)
	assert.Nil(t, ctx.Value(NewRelicContextKey{}))

	RecordEvent(ctx, "SwapInitiated", map[string]interface{}{"amount": 1})
	RecordCount(ctx, "Swaps", 1)
	RecordDuration(ctx, "UserLockWait", time.Second)

	tracer := TraceMethodCall(ctx, "ledger", "Initiate")
	assert.Nil(t, tracer)
	tracer.AddAttribute("swap_id", "swap1")
	tracer.OnError(errors.New("failure"))
	tracer.End()
}

func TestForwardedMessage(t *testing.T) {
	e := logrus.NewEntry(logrus.New())
	e.Message = "failure completing swap"
	assert.Equal(t, "failure completing swap", forwardedMessage(e))

	e = e.WithFields(logrus.Fields{
		"swap_id":       "swap1",
		logrus.ErrorKey: errors.New("overflow"),
	})
	e.Message = "failure completing swap"
	assert.Equal(t, `message="failure completing swap", error="overflow", data={"swap_id":"swap1"}`, forwardedMessage(e))
}
