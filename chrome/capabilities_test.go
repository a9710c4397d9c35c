package chrome

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyCapabilities(t *testing.T) {
	data, err := json.Marshal(Capabilities{})
	if err != nil {
		t.Fatalf("json.Marshal(Capabilities{}) return error: %v", err)
	}
	got, want := string(data), `{"w3c":false}`
	if got != want {
		t.Fatalf("json.Marshal(Capabilities{}) = %q, want %q", got, want)
	}
}

func TestHeadless(t *testing.T) {
	c := Capabilities{Args: []string{"--no-sandbox"}}
	c.Headless()
	c.Headless()

	want := []string{"--no-sandbox", "--headless=new", "--disable-gpu"}
	if diff := cmp.Diff(want, c.Args); diff != "" {
		t.Fatalf("Args after Headless() returned diff (-want/+got):\n%s", diff)
	}
}
