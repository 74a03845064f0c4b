package drag

import "testing"

func TestEventTargetDispatchByKind(t *testing.T) {
	target := NewEventTarget()
	var order []string
	target.Listen(KindDrop, func(DOMEvent) { order = append(order, "a") })
	target.Listen(KindDragEnd, func(DOMEvent) { order = append(order, "x") })
	target.Listen(KindDrop, func(DOMEvent) { order = append(order, "b") })

	if n := target.Dispatch(DOMEvent{Kind: KindDrop}); n != 2 {
		t.Fatalf("expected 2 handlers, got %d", n)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestEventTargetReleaseIsIdempotent(t *testing.T) {
	target := NewEventTarget()
	release := target.Listen(KindDragOver, func(DOMEvent) {})
	keep := target.Listen(KindDragOver, func(DOMEvent) {})
	release()
	release()
	if target.Len() != 1 {
		t.Fatalf("expected 1 listener, got %d", target.Len())
	}
	keep()
	if target.Len() != 0 {
		t.Fatalf("expected no listeners, got %d", target.Len())
	}
}

func TestHandlerMayReleaseDuringDispatch(t *testing.T) {
	target := NewEventTarget()
	var release func()
	calls := 0
	release = target.Listen(KindDrop, func(DOMEvent) {
		calls++
		release()
	})
	target.Dispatch(DOMEvent{Kind: KindDrop})
	target.Dispatch(DOMEvent{Kind: KindDrop})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
