package watch

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestRelevant(t *testing.T) {
	ev := func(name string, op fsnotify.Op) fsnotify.Event {
		return fsnotify.Event{Name: name, Op: op}
	}

	assert.True(t, relevant(ev("/gen/Query.graphql.ts", fsnotify.Write), ".graphql.ts", "__shared.ts"))
	assert.True(t, relevant(ev("/gen/Query.graphql.ts", fsnotify.Create), ".graphql.ts", "__shared.ts"))

	// The tool's own outputs and temp files must not retrigger a run.
	assert.False(t, relevant(ev("/gen/__shared.ts", fsnotify.Write), ".graphql.ts", "__shared.ts"))
	assert.False(t, relevant(ev("/gen/.Query.graphql.ts.tmp-1", fsnotify.Write), ".graphql.ts", "__shared.ts"))

	assert.False(t, relevant(ev("/gen/readme.md", fsnotify.Write), ".graphql.ts", "__shared.ts"))
	assert.False(t, relevant(ev("/gen/Query.graphql.ts", fsnotify.Chmod), ".graphql.ts", "__shared.ts"))
}
