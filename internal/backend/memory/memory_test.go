package memory_test

import (
	"testing"

	"parley/internal/backend"
	"parley/internal/backend/backendtest"
	"parley/internal/backend/memory"
)

func TestStore(t *testing.T) {
	backendtest.Run(t, func(*testing.T) backend.Backend { return memory.New() })
}
