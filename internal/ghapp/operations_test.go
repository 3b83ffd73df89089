package ghapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		in    string
		owner string
		repo  string
		ok    bool
	}{
		{"https://github.com/org/demo", "org", "demo", true},
		{"https://github.com/org/demo.git", "org", "demo", true},
		{"http://github.com/org/demo/", "org", "demo", true},
		{"github.com/org/demo", "org", "demo", true},
		{"org/demo", "org", "demo", true},
		{"  https://github.com/org/demo  ", "org", "demo", true},
		{"https://github.com/org", "", "", false},
		{"https://github.com/org/demo/issues/1", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		owner, repo, ok := ParseRepoURL(c.in)
		assert.Equalf(t, c.ok, ok, "input %q", c.in)
		assert.Equal(t, c.owner, owner)
		assert.Equal(t, c.repo, repo)
	}
}
