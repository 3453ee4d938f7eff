package room

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/momentics/roomsock/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id   string
	mu   sync.Mutex
	got  []*protocol.Frame
	fail error
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(f *protocol.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.got = append(m.got, f)
	return nil
}

func (m *fakeMember) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

// recorder is a SendFunc collecting target ids.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) send(m Member, _ *protocol.Frame) error {
	r.mu.Lock()
	r.ids = append(r.ids, m.ID())
	r.mu.Unlock()
	return nil
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.ids...)
	sort.Strings(out)
	return out
}

func TestRoom_RemoveThenBroadcast(t *testing.T) {
	r := New("lobby")
	a, b, c := &fakeMember{id: "A"}, &fakeMember{id: "B"}, &fakeMember{id: "C"}
	for _, m := range []*fakeMember{a, b, c} {
		require.True(t, r.Add(m))
	}
	require.True(t, r.Remove("B"))

	rec := &recorder{}
	n, err := r.Broadcast(rec.send, protocol.NewTextFrame("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A", "C"}, rec.sorted())
}

func TestRoom_DefaultSendAndErrors(t *testing.T) {
	r := New("x")
	ok := &fakeMember{id: "ok"}
	boom := errors.New("boom")
	bad := &fakeMember{id: "bad", fail: boom}
	r.Add(ok)
	r.Add(bad)
	assert.False(t, r.Add(ok), "duplicate add")

	n, err := r.Broadcast(nil, protocol.NewTextFrame("hi"))
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.count())
}

func TestRoom_BroadcastExcept(t *testing.T) {
	r := New("x")
	r.Add(&fakeMember{id: "A"})
	r.Add(&fakeMember{id: "B"})
	rec := &recorder{}
	n, err := r.BroadcastExcept(rec.send, protocol.NewTextFrame("hi"), "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"B"}, rec.sorted())
	assert.True(t, r.Contains("A"))
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Members(), 2)
}

func TestRoom_ConcurrentMutationAndBroadcast(t *testing.T) {
	r := New("busy")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m := &fakeMember{id: string(rune('a'+i)) + string(rune('0'+j%10))}
				r.Add(m)
				r.Remove(m.id)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.Broadcast(nil, protocol.NewPingFrame(nil))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
