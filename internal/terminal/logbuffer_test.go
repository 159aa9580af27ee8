package terminal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogBufferSplitsLines(t *testing.T) {
	lb := newLogBuffer(10)

	fmt.Fprint(lb, "first\nsec")
	fmt.Fprint(lb, "ond\n")
	fmt.Fprint(lb, "pending")

	assert.Equal(t, []string{"first", "second"}, lb.lines())
}

func TestLogBufferKeepsMostRecent(t *testing.T) {
	lb := newLogBuffer(3)

	for i := 0; i < 5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}

	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, lb.lines())
}
