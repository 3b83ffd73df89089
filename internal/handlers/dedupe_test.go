package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduper_MarksAndExpires(t *testing.T) {
	d := NewDeduper(50 * time.Millisecond)

	assert.False(t, d.CheckAndMark("github.issues", "d-1", "sum-a"))
	assert.True(t, d.CheckAndMark("github.issues", "d-1", "sum-a"))

	// 不同来源或不同 delivery 不算重复
	assert.False(t, d.CheckAndMark("github.push", "d-1", "sum-a"))
	assert.False(t, d.CheckAndMark("github.issues", "d-2", "sum-a"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, d.CheckAndMark("github.issues", "d-1", "sum-a"))
}
