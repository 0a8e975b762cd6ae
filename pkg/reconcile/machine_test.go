package reconcile_test

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/wishboard/pkg/board"
	"github.com/astromechza/wishboard/pkg/effects"
	"github.com/astromechza/wishboard/pkg/layout"
	"github.com/astromechza/wishboard/pkg/reconcile"
	"github.com/astromechza/wishboard/pkg/wish"
)

var _ reconcile.Applier = (*board.Board)(nil)
var _ reconcile.Effects = (*effects.Dispatcher)(nil)

type staticSurface struct{}

func (staticSurface) Bounds() layout.Size { return layout.Size{Width: 1280, Height: 720} }
func (staticSurface) Apply(board.Frame) {}

type dispatched struct {
	kind effects.Kind
	id   string
}

type recorder struct {
	mu  sync.Mutex
	got []dispatched
}

func (r *recorder) Dispatch(kind effects.Kind, w wish.Wish) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, dispatched{kind: kind, id: w.ID})
}

func (r *recorder) all() []dispatched {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatched(nil), r.got...)
}

type requester struct {
	calls atomic.Int32
}

func (r *requester) RequestSnapshot() {
	r.calls.Add(1)
}

func w(id string) wish.Wish {
	return wish.Wish{ID: id, ChildName: "kid " + id}
}

func snapshot(ids ...string) reconcile.Message {
	msg := reconcile.Message{Kind: reconcile.KindAllWishes}
	for _, id := range ids {
		msg.Wishes = append(msg.Wishes, w(id))
	}
	return msg
}

func newWish(id string) reconcile.Message {
	return reconcile.Message{Kind: reconcile.KindNewWish, Wish: w(id)}
}

func deleted(id string) reconcile.Message {
	return reconcile.Message{Kind: reconcile.KindWishDeleted, ID: id}
}

func spot(id string) reconcile.Message {
	return reconcile.Message{Kind: reconcile.KindSpotlight, Wish: w(id)}
}

func setup(opts ...reconcile.Option) (*reconcile.Machine, *board.Board, *recorder) {
	b := board.New(staticSurface{}, board.WithRand(rand.New(rand.NewSource(1))))
	fx := &recorder{}
	return reconcile.New(b, fx, opts...), b, fx
}

func wishIDs(b *board.Board) []string {
	var out []string
	for _, x := range b.Wishes() {
		out = append(out, x.ID)
	}
	return out
}

func TestOrdering(t *testing.T) {
	m, b, _ := setup()
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A", "B", "C"))
	m.Handle(newWish("D"))
	m.Handle(deleted("B"))

	assert.Equal(t, []string{"A", "C", "D"}, wishIDs(b))
	assert.Equal(t, reconcile.StateSynced, m.State())
}

func TestIdempotentNewWish(t *testing.T) {
	m, b, fx := setup()
	m.Handle(reconcile.Connected())
	m.Handle(snapshot())
	m.Handle(newWish("A"))
	m.Handle(newWish("A"))

	assert.Equal(t, []string{"A"}, wishIDs(b))
	assert.Equal(t, 1, b.RenderStates())
	assert.Equal(t, []dispatched{{effects.KindNewWish, "A"}}, fx.all(), "effects fire only for real admits")
}

func TestResyncReplacesStaleState(t *testing.T) {
	m, b, _ := setup()
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A", "B"))

	m.Handle(reconcile.Disconnected())
	assert.Equal(t, reconcile.StateUnsynced, m.State())
	assert.True(t, b.Stale())
	assert.Equal(t, []string{"A", "B"}, wishIDs(b), "stale wishes stay on screen")

	m.Handle(reconcile.Connected())
	m.Handle(snapshot("C", "D"))

	assert.Equal(t, []string{"C", "D"}, wishIDs(b))
	assert.False(t, b.Stale())
	assert.Equal(t, int64(2), m.Resyncs())
}

func TestResyncKeepsSpotlightWithoutRepeatingEffect(t *testing.T) {
	m, b, fx := setup()
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A"))
	m.Handle(spot("A"))

	m.Handle(reconcile.Disconnected())
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A"))
	m.Handle(spot("A"))

	assert.Equal(t, []dispatched{{effects.KindSpotlight, "A"}}, fx.all())
	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "A", cur.ID)

	m.Handle(reconcile.Disconnected())
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A"))
	m.Handle(reconcile.Message{Kind: reconcile.KindSpotlightOff})
	_, ok = b.Current()
	assert.False(t, ok, "snapshot without a spotlight clears the kept one")
	assert.Len(t, fx.all(), 1)
}

func TestEarlyEventsMatchPostSnapshotApplication(t *testing.T) {
	events := []reconcile.Message{newWish("D"), deleted("A"), spot("D"), newWish("E")}

	early, earlyBoard, earlyFx := setup()
	early.Handle(reconcile.Connected())
	for _, e := range events {
		early.Handle(e)
	}
	assert.Equal(t, len(events), early.Buffered())
	assert.Empty(t, wishIDs(earlyBoard))
	early.Handle(snapshot("A", "B"))

	late, lateBoard, lateFx := setup()
	late.Handle(reconcile.Connected())
	late.Handle(snapshot("A", "B"))
	for _, e := range events {
		late.Handle(e)
	}

	assert.Equal(t, wishIDs(lateBoard), wishIDs(earlyBoard))
	assert.Equal(t, []string{"B", "D", "E"}, wishIDs(earlyBoard))
	ec, _ := earlyBoard.Current()
	lc, _ := lateBoard.Current()
	assert.Equal(t, lc, ec)
	assert.Equal(t, lateFx.all(), earlyFx.all())
	assert.Equal(t, 0, early.Buffered())
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	m, b, _ := setup(reconcile.WithBufferSize(2))
	m.Handle(reconcile.Connected())
	m.Handle(newWish("A"))
	m.Handle(newWish("B"))
	m.Handle(newWish("C"))
	assert.Equal(t, 2, m.Buffered())

	m.Handle(snapshot())
	assert.Equal(t, []string{"B", "C"}, wishIDs(b))
}

func TestDisconnectDiscardsBuffer(t *testing.T) {
	m, b, _ := setup()
	m.Handle(reconcile.Connected())
	m.Handle(newWish("A"))
	m.Handle(reconcile.Disconnected())
	assert.Equal(t, 0, m.Buffered())

	m.Handle(reconcile.Connected())
	m.Handle(snapshot("B"))
	assert.Equal(t, []string{"B"}, wishIDs(b))
}

func TestAllClearedAndSpotlightEffects(t *testing.T) {
	m, b, fx := setup()
	m.Handle(reconcile.Connected())
	m.Handle(snapshot("A", "B"))

	m.Handle(spot("A"))
	m.Handle(spot("A"))
	m.Handle(reconcile.Message{Kind: reconcile.KindSpotlightOff})
	m.Handle(reconcile.Message{Kind: reconcile.KindAllCleared})

	assert.Empty(t, wishIDs(b))
	assert.Equal(t, 0, b.RenderStates())
	assert.Equal(t, []dispatched{
		{effects.KindSpotlight, "A"},
		{effects.KindCleared, ""},
	}, fx.all())
}

func TestThemeAppliesInAnyState(t *testing.T) {
	m, b, _ := setup()
	m.Handle(reconcile.Message{Kind: reconcile.KindThemeChange, Theme: "spring"})
	assert.Equal(t, "spring", b.Theme())
	assert.Equal(t, 0, m.Buffered())

	m.Handle(reconcile.Connected())
	m.Handle(reconcile.Message{Kind: reconcile.KindThemeChange, Theme: "night"})
	assert.Equal(t, "night", b.Theme())
}

func TestRun_RequestsSnapshotAgainWhenOverdue(t *testing.T) {
	req := &requester{}
	m, b, _ := setup(reconcile.WithSnapshotTimeout(10*time.Millisecond), reconcile.WithRequester(req))
	in := make(chan reconcile.Message)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, in) }()

	in <- reconcile.Connected()
	assert.Eventually(t, func() bool { return req.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	in <- snapshot("A")
	in <- newWish("B")
	seen := req.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, req.calls.Load(), seen+1, "no more requests once synced")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"A", "B"}, wishIDs(b))
}

func TestRun_StopsWhenInputCloses(t *testing.T) {
	m, _, _ := setup()
	in := make(chan reconcile.Message)
	close(in)
	assert.NoError(t, m.Run(context.Background(), in))
}

func TestFromEnvelope(t *testing.T) {
	for _, tc := range []struct {
		channel wish.Channel
		payload any
		want    reconcile.Message
	}{
		{wish.ChannelAllWishes, []wish.Wish{w("a")}, reconcile.Message{Kind: reconcile.KindAllWishes, Wishes: []wish.Wish{w("a")}}},
		{wish.ChannelAllWishes, nil, reconcile.Message{Kind: reconcile.KindAllWishes}},
		{wish.ChannelNewWish, w("a"), newWish("a")},
		{wish.ChannelWishDeleted, wish.Deleted{ID: "a"}, deleted("a")},
		{wish.ChannelAllCleared, nil, reconcile.Message{Kind: reconcile.KindAllCleared}},
		{wish.ChannelSpotlight, w("a"), spot("a")},
		{wish.ChannelSpotlightOff, nil, reconcile.Message{Kind: reconcile.KindSpotlightOff}},
		{wish.ChannelThemeChange, wish.Theme{Theme: "night"}, reconcile.Message{Kind: reconcile.KindThemeChange, Theme: "night"}},
	} {
		t.Run(string(tc.channel), func(t *testing.T) {
			env, err := wish.NewEnvelope(tc.channel, tc.payload)
			require.NoError(t, err)
			got, err := reconcile.FromEnvelope(env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromEnvelope_Errors(t *testing.T) {
	_, err := reconcile.FromEnvelope(wish.Envelope{Type: wish.ChannelRequestSnapshot})
	assert.Error(t, err)

	env, _ := wish.NewEnvelope(wish.ChannelNewWish, wish.Wish{ChildName: "no id"})
	_, err = reconcile.FromEnvelope(env)
	assert.Error(t, err)

	_, err = reconcile.FromEnvelope(wish.Envelope{Type: wish.ChannelWishDeleted})
	assert.Error(t, err)
}
