package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBucket(t *testing.T) {
	assert.Equal(t, 202603, CalculateBucket(time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 202612, CalculateBucket(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPreviousBucketsCrossesYear(t *testing.T) {
	at := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, []int{202602, 202601, 202512}, PreviousBuckets(at, 3))
	assert.Empty(t, PreviousBuckets(at, 0))
}
