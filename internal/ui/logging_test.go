package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProgram collects everything sent to it.
type fakeProgram struct {
	msgs chan tea.Msg
}

func newFakeProgram() *fakeProgram {
	return &fakeProgram{msgs: make(chan tea.Msg, 100)}
}

func (fp *fakeProgram) Send(msg tea.Msg) {
	fp.msgs <- msg
}

func (fp *fakeProgram) drain(wait time.Duration) []LogMsg {
	var got []LogMsg

	for {
		select {
		case m := <-fp.msgs:
			if lm, ok := m.(LogMsg); ok {
				got = append(got, lm)
			}
		case <-time.After(wait):
			return got
		}
	}
}

// TestTeaLogWriter_Write_Success tests that records arrive in write order.
func TestTeaLogWriter_Write_Success(t *testing.T) {
	t.Parallel()

	fp := newFakeProgram()
	writer := NewTeaLogWriter(fp)
	defer writer.Stop()

	lines := []string{"", "submit op=stat", "complete op=stat result=0", "ユニコード\n"}
	for _, line := range lines {
		n, err := writer.Write([]byte(line))
		require.NoError(t, err)
		require.Equal(t, len(line), n)
	}

	got := fp.drain(200 * time.Millisecond)
	require.Len(t, got, len(lines))

	for i, line := range lines {
		assert.Equal(t, LogMsg(line), got[i])
	}
}

// TestTeaLogWriter_Write_AfterStop tests that writes after Stop are accepted
// but never delivered.
func TestTeaLogWriter_Write_AfterStop(t *testing.T) {
	t.Parallel()

	fp := newFakeProgram()
	writer := NewTeaLogWriter(fp)

	_, _ = writer.Write([]byte("before"))
	require.Equal(t, []LogMsg{"before"}, fp.drain(100*time.Millisecond))

	writer.Stop()

	n, err := writer.Write([]byte("after"))
	require.NoError(t, err)
	assert.Equal(t, len("after"), n)
	assert.Empty(t, fp.drain(100*time.Millisecond))
}
