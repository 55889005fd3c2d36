package fetch

import "testing"

// Chrome only launches on the first Fetch, so constructing and closing the
// strategy is safe on machines without a browser installed.
func TestBrowserStrategyCloseReleasesContexts(t *testing.T) {
	s := NewBrowserStrategy()

	select {
	case <-s.allocCtx.Done():
		t.Fatal("browser context done before Close")
	default:
	}

	s.Close()

	select {
	case <-s.allocCtx.Done():
	default:
		t.Error("Close must cancel the shared browser context")
	}
}
