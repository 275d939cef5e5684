package warden

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrRepoNotFound(t *testing.T) {
	wrapped := fmt.Errorf("rule store: subject visitor: %w", ErrRepoNotFound)
	if !errors.Is(wrapped, ErrRepoNotFound) {
		t.Error("wrapped ErrRepoNotFound should match errors.Is")
	}
	if ErrRepoNotFound.Error() != "repository: aggregate not found" {
		t.Errorf("ErrRepoNotFound = %q", ErrRepoNotFound.Error())
	}
}
