package room

import (
	"fmt"
	"testing"

	"github.com/momentics/roomsock/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/", Clean("///"))
	assert.Equal(t, "/a/b", Clean("a//b/"))
	assert.Equal(t, []string{"chat", "eu"}, Split("/chat/eu/"))
}

func TestDirectory_RouteCreatesIntermediateNodes(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "A"}
	r := d.Route(a, "/chat/eu/general")
	assert.Equal(t, "/chat/eu/general", r.Name())
	assert.True(t, r.Contains("A"))

	for _, p := range []string{"/", "/chat", "/chat/eu"} {
		mid, ok := d.Lookup(p)
		require.True(t, ok, p)
		assert.Zero(t, mid.Len(), p)
	}
	_, ok := d.Lookup("/chat/us")
	assert.False(t, ok)

	same, _ := d.Lookup("chat//eu/general/")
	assert.Same(t, r, same)
}

func TestDirectory_BroadcastPathSubtree(t *testing.T) {
	d := NewDirectory()
	a, b, c, x := &fakeMember{id: "A"}, &fakeMember{id: "B"}, &fakeMember{id: "C"}, &fakeMember{id: "X"}
	d.Route(a, "/chat")
	d.Route(b, "/chat/eu")
	d.Route(c, "/chat/eu/general")
	d.Route(a, "/chat/eu/general") // A sits in two visited rooms
	d.Route(x, "/news")

	rec := &recorder{}
	n, err := d.BroadcastPath("/chat", rec.send, protocol.NewTextFrame("hi"), true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"A", "B", "C"}, rec.sorted())

	rec = &recorder{}
	n, err = d.BroadcastPath("/chat/eu", rec.send, protocol.NewTextFrame("hi"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"B"}, rec.sorted())

	n, err = d.BroadcastPath("/missing", rec.send, protocol.NewTextFrame("hi"), true)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestDirectory_RemoveMemberLeavesEveryRoom(t *testing.T) {
	d := NewDirectory()
	a, b := &fakeMember{id: "A"}, &fakeMember{id: "B"}
	d.Route(a, "/one")
	d.Route(a, "/two/three")
	d.Route(b, "/one")
	assert.Equal(t, []string{"/one", "/two/three"}, d.PathsOf("A"))

	assert.Equal(t, 2, d.RemoveMember("A"))
	assert.Empty(t, d.PathsOf("A"))
	one, _ := d.Lookup("/one")
	assert.False(t, one.Contains("A"))
	assert.True(t, one.Contains("B"))
	_, ok := d.Lookup("/two/three")
	assert.False(t, ok, "emptied leaf is pruned")
	_, ok = d.Lookup("/two")
	assert.False(t, ok)
	assert.Zero(t, d.RemoveMember("A"))
}

func TestDirectory_UnrouteAndPrune(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "A"}
	d.Route(a, "/a/b/c")
	d.Route(a, "/a/x")
	assert.True(t, d.Unroute(a, "/a/b/c"))
	assert.False(t, d.Unroute(a, "/a/b/c"))
	assert.Equal(t, []string{"/a/x"}, d.PathsOf("A"))

	// /a/b/c and then /a/b went with the unroute; /a keeps /a/x.
	_, ok := d.Lookup("/a/b")
	assert.False(t, ok)
	_, ok = d.Lookup("/a/x")
	assert.True(t, ok)
	assert.Zero(t, d.Prune())

	// occupied rooms keep their empty ancestors
	b := &fakeMember{id: "B"}
	d.Route(b, "/a/x")
	assert.True(t, d.Unroute(a, "/a/x"))
	_, ok = d.Lookup("/a/x")
	assert.True(t, ok)
}

func TestDirectory_PruneSweepsUnpopulatedNodes(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "A"}
	r := d.Route(a, "/x/y")
	// removed behind the directory's back: only Prune can see it
	require.True(t, r.Remove("A"))
	assert.Equal(t, 2, d.Prune())
	assert.Len(t, d.Rooms(), 1)
}

func TestDirectory_ChurnLeavesOnlyRoot(t *testing.T) {
	d := NewDirectory()
	for i := 0; i < 50; i++ {
		m := &fakeMember{id: fmt.Sprintf("m%d", i)}
		d.Route(m, fmt.Sprintf("/junk/%d", i))
		if i%2 == 0 {
			d.RemoveMember(m.ID())
		} else {
			d.Unroute(m, fmt.Sprintf("/junk/%d", i))
		}
	}
	assert.Equal(t, []Info{{Path: "/", Members: 0}}, d.Rooms())
}

func TestDirectory_RoomsListing(t *testing.T) {
	d := NewDirectory()
	d.Route(&fakeMember{id: "A"}, "/b")
	d.Route(&fakeMember{id: "B"}, "/a")
	d.Route(&fakeMember{id: "C"}, "/a")
	assert.Equal(t, []Info{
		{Path: "/", Members: 0},
		{Path: "/a", Members: 2},
		{Path: "/b", Members: 1},
	}, d.Rooms())
}
