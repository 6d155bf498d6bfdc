package debugger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventConnectEmitDisconnect(t *testing.T) {
	t.Parallel()

	var e Event[int]
	var got []int
	d1 := e.Connect(func(v int) { got = append(got, v) })
	d2 := e.Connect(func(v int) { got = append(got, v*10) })

	e.Emit(1)
	require.Equal(t, []int{1, 10}, got, "handlers fire in registration order")

	d1()
	e.Emit(2)
	require.Equal(t, []int{1, 10, 20}, got)

	d2()
	d2() // double disconnect is fine
	e.Emit(3)
	require.Equal(t, []int{1, 10, 20}, got)
}

func TestExecInjection(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Exec(&buf, "continue"))
	require.Equal(t, "\x01\x0bcontinue\n", buf.String())
}

func TestExecRejectsMultiline(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.Error(t, Exec(&buf, "next\nrun"))
	require.Zero(t, buf.Len(), "nothing must reach the pty")
}

func TestScriptedProvider(t *testing.T) {
	t.Parallel()

	s := NewScripted()

	var sequence []string
	s.Events().Cont.Connect(func(struct{}) { sequence = append(sequence, "cont") })
	s.Events().Stop.Connect(func(si StopInfo) { sequence = append(sequence, "stop:"+si.Reason) })
	s.Events().BeforePrompt.Connect(func(struct{}) { sequence = append(sequence, "prompt") })

	before := s.Snapshot()
	s.Step()
	after := s.Snapshot()

	require.Equal(t, []string{"cont", "stop:breakpoint", "prompt"}, sequence)
	require.NotEqual(t, before.Time, after.Time)
	require.NotNil(t, after.SelectedFrame())
	require.Equal(t, 0, after.SelectedFrame().Level)
	require.NotEmpty(t, after.Threads)
	require.True(t, after.Threads[0].Selected)
}
