package dedup

import (
	"testing"

	"github.com/kalbhor/sandtrace/ioevent"
)

func TestIsHitFirstSeenThenSuppressed(t *testing.T) {
	c := New()

	if c.IsHit(ioevent.KindOpen, "/a", "") {
		t.Fatal("first observation must not be a hit")
	}
	if !c.IsHit(ioevent.KindOpen, "/a", "") {
		t.Fatal("second observation of the same key must be a hit")
	}
}

func TestIsHitDistinguishesKindAndSecondPath(t *testing.T) {
	c := New()

	if c.IsHit(ioevent.KindRename, "/a", "/b") {
		t.Fatal("unexpected hit for fresh (kind, primary, second)")
	}
	if c.IsHit(ioevent.KindRename, "/a", "/c") {
		t.Fatal("different second path must not collide")
	}
	if c.IsHit(ioevent.KindUnlink, "/a", "/b") {
		t.Fatal("different kind must not collide")
	}
	if !c.IsHit(ioevent.KindRename, "/a", "/b") {
		t.Fatal("original key must now be a hit")
	}
}

func TestIsHitConcurrentAccessDoesNotPanic(t *testing.T) {
	c := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.IsHit(ioevent.KindOpen, "/shared", "")
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
