package cancellation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/shared/money"
)

func TestPenaltyEscalates(t *testing.T) {
	policy := cancellation.DefaultPenaltyPolicy()
	accommodation := money.Must(100000, "USD")

	first, err := policy.Assess(0, accommodation, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Offense)
	assert.Equal(t, cancellation.SeverityLow, first.Severity)
	assert.Equal(t, int64(10000), first.Fee.Amount)
	assert.True(t, first.CalendarBlocked)
	assert.False(t, first.ReviewRequired)

	second, err := policy.Assess(1, accommodation, false)
	require.NoError(t, err)
	assert.Equal(t, cancellation.SeverityMedium, second.Severity)
	assert.Equal(t, int64(25000), second.Fee.Amount)

	fifth, err := policy.Assess(4, accommodation, false)
	require.NoError(t, err)
	assert.Equal(t, 5, fifth.Offense)
	assert.Equal(t, cancellation.SeverityHigh, fifth.Severity)
	assert.Equal(t, int64(50000), fifth.Fee.Amount)
	assert.True(t, fifth.ReviewRequired)
}

func TestPenaltyExemptForExtenuatingCircumstances(t *testing.T) {
	p, err := cancellation.DefaultPenaltyPolicy().Assess(3, money.Must(100000, "USD"), true)
	require.NoError(t, err)
	assert.True(t, p.Exempt)
	assert.True(t, p.Fee.IsZero())
	assert.False(t, p.CalendarBlocked)
	assert.Equal(t, 0, p.Offense)
}
