package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	t.Chdir(t.TempDir())

	args := os.Args
	t.Cleanup(func() { os.Args = args })

	os.Args = []string{"leapgov", "migrate"}
	assert.Equal(t, 0, run())

	os.Args = []string{"leapgov", "version", "get"}
	assert.Equal(t, 1, run())
}
