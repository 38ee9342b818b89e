package memory

import (
	"testing"

	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/token/tests"
)

func TestTokenMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}

	tests.RunTests(t, testStore, teardown)
}
