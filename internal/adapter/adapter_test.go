package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoAdapter(id string) Config {
	return Config{ID: id, Command: "sh", Args: []string{"-c", "printf '%s' \"$0\"", "{{prompt}}"}}
}

func failingAdapter(id string) Config {
	return Config{ID: id, Command: "sh", Args: []string{"-c", "exit 1"}}
}

func emptyOutputAdapter(id string) Config {
	return Config{ID: id, Command: "sh", Args: []string{"-c", "exit 0"}}
}

func TestExecuteReturnsFirstSuccess(t *testing.T) {
	e := New([]Config{failingAdapter("fail"), echoAdapter("echo")}, 2*time.Second)
	res, err := e.Execute(context.Background(), "hello world", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo", res.AdapterID)
	assert.Equal(t, "hello world", res.Output)
}

func TestExecuteAllAdaptersFail(t *testing.T) {
	e := New([]Config{failingAdapter("a"), emptyOutputAdapter("b")}, 2*time.Second)
	_, err := e.Execute(context.Background(), "x", "", nil)
	require.Error(t, err)
	var allFailed *AllAdaptersFailed
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Errors, 2)
}

func TestExecuteEmptyAdapterListFails(t *testing.T) {
	e := New(nil, time.Second)
	_, err := e.Execute(context.Background(), "x", "", nil)
	require.Error(t, err)
	var allFailed *AllAdaptersFailed
	require.ErrorAs(t, err, &allFailed)
	assert.Empty(t, allFailed.Errors)
}

func TestExecutePrefersPreferredAdapterWhenClosed(t *testing.T) {
	e := New([]Config{echoAdapter("a"), echoAdapter("b")}, 2*time.Second)
	res, err := e.Execute(context.Background(), "p", "b", func(string) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, "b", res.AdapterID)
}

func TestExecuteSkipsOpenCircuits(t *testing.T) {
	e := New([]Config{echoAdapter("a"), echoAdapter("b")}, 2*time.Second)
	closed := func(id string) bool { return id != "a" } // a's circuit is open
	res, err := e.Execute(context.Background(), "p", "", closed)
	require.NoError(t, err)
	assert.Equal(t, "b", res.AdapterID)
}

func TestExecuteTimeout(t *testing.T) {
	slow := Config{ID: "slow", Command: "sh", Args: []string{"-c", "sleep 2"}}
	e := New([]Config{slow}, 30*time.Millisecond)
	_, err := e.Execute(context.Background(), "p", "", nil)
	require.Error(t, err)
}

func TestAlternativeOfRoundRobin(t *testing.T) {
	e := New([]Config{echoAdapter("a"), echoAdapter("b"), echoAdapter("c")}, time.Second)
	assert.Equal(t, "b", e.AlternativeOf("a"))
	assert.Equal(t, "c", e.AlternativeOf("b"))
	assert.Equal(t, "a", e.AlternativeOf("c"))
}

func TestAlternativeOfSingleAdapter(t *testing.T) {
	e := New([]Config{echoAdapter("a")}, time.Second)
	assert.Equal(t, "", e.AlternativeOf("a"))
}
