package route

import (
	"testing"

	"github.com/reaktor-nukleus/http-source/internal/fabric"
)

func TestMatchesWithNoMatchersIsCatchAll(t *testing.T) {
	r := Route{}
	if !r.Matches(fabric.Headers{{":path", "/anything"}}) {
		t.Fatalf("expected a route with no matchers to match unconditionally")
	}
}

func TestMatchesRequiresEveryMatcher(t *testing.T) {
	r := Route{HeaderMatchers: map[string]string{":authority": "a", ":method": "GET"}}

	if r.Matches(fabric.Headers{{":authority", "a"}}) {
		t.Fatalf("expected no match when a required header is missing")
	}
	if r.Matches(fabric.Headers{{":authority", "a"}, {":method", "POST"}}) {
		t.Fatalf("expected no match when a required header has the wrong value")
	}
	if !r.Matches(fabric.Headers{{":authority", "a"}, {":method", "GET"}}) {
		t.Fatalf("expected a match when every header matcher is satisfied")
	}
}

func TestResolveReturnsFirstMatchingRoute(t *testing.T) {
	first := Route{HeaderMatchers: map[string]string{":authority": "a"}, TargetRef: 1}
	second := Route{HeaderMatchers: map[string]string{":authority": "b"}, TargetRef: 2}
	catchAll := Route{TargetRef: 3}

	got, ok := Resolve([]Route{first, second, catchAll}, fabric.Headers{{":authority", "b"}})
	if !ok || got.TargetRef != 2 {
		t.Fatalf("expected second route to win, got %+v ok=%v", got, ok)
	}

	got, ok = Resolve([]Route{first, second, catchAll}, fabric.Headers{{":authority", "z"}})
	if !ok || got.TargetRef != 3 {
		t.Fatalf("expected catch-all route to win, got %+v ok=%v", got, ok)
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := Route{HeaderMatchers: map[string]string{":authority": "a"}}
	if _, ok := Resolve([]Route{r}, fabric.Headers{{":authority", "z"}}); ok {
		t.Fatalf("expected no route to resolve")
	}
}

func TestTableRoutesBySourceRef(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Route{SourceRef: 1, TargetRef: 10})
	tbl.Add(Route{SourceRef: 1, TargetRef: 11})
	tbl.Add(Route{SourceRef: 2, TargetRef: 20})

	got := tbl.Routes(1)
	if len(got) != 2 || got[0].TargetRef != 10 || got[1].TargetRef != 11 {
		t.Fatalf("unexpected routes for sourceRef 1: %+v", got)
	}
	if got := tbl.Routes(3); len(got) != 0 {
		t.Fatalf("expected no routes for an unregistered sourceRef, got %+v", got)
	}
}
