package tools

import (
	"testing"

	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/tool"
)

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	return tool.NewRegistry(log.NewNop())
}
