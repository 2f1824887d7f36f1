package stream

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

func TestMergeFramesAllInputs(t *testing.T) {
	ctx := context.Background()

	a := make(chan []byte, 4)
	b := make(chan []byte, 4)

	a <- []byte("a1")
	a <- []byte("a2")
	b <- []byte("b1")
	close(a)
	close(b)

	out := MergeFrames(ctx, 8, a, b)

	var got []string
	for frame := range out {
		got = append(got, string(frame))
	}
	sort.Strings(got)
	want := []string{"a1", "a2", "b1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestMergeFramesPerInputOrder(t *testing.T) {
	ctx := context.Background()

	in := make(chan []byte, 16)
	for i := 0; i < 10; i++ {
		in <- []byte(fmt.Sprintf("f%02d", i))
	}
	close(in)

	out := MergeFrames(ctx, 16, in)

	i := 0
	for frame := range out {
		want := fmt.Sprintf("f%02d", i)
		if string(frame) != want {
			t.Fatalf("frame %d: got %s want %s", i, frame, want)
		}
		i++
	}
	if i != 10 {
		t.Fatalf("expected 10 frames, got %d", i)
	}
}

func TestMergeFramesClosesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	in := make(chan []byte) // never written, never closed
	out := MergeFrames(ctx, 1, in)

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("unexpected frame after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("merged channel did not close on cancel")
	}
}

func TestMergeFramesSlowInputDoesNotStarveOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fast := make(chan []byte, 1)
	stuck := make(chan []byte) // never delivers

	out := MergeFrames(ctx, 1, fast, stuck)

	fast <- []byte("x")
	select {
	case frame := <-out:
		if string(frame) != "x" {
			t.Fatalf("unexpected frame %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatalf("stuck input starved the merged stream")
	}
	close(fast)
}
