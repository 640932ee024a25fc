package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKindMatchesThroughWrapping(t *testing.T) {
	base := NotFound("account %x", []byte{1, 2})
	wrapped := fmt.Errorf("load account: %w", base)
	if !IsKind(wrapped, KindNotFound) {
		t.Fatal("expected wrapped not-found error to match KindNotFound")
	}
	if IsKind(wrapped, KindStorage) {
		t.Fatal("did not expect a storage-kind match")
	}
}

func TestWrapStoragePreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapStorage(cause, "commit batch")
	if !errors.Is(err, cause) {
		t.Fatal("expected WrapStorage to preserve the underlying cause via Unwrap")
	}
}

func TestForkErrorVariants(t *testing.T) {
	rec := RecoverableFork("behind by %d blocks", 100)
	if !rec.Recoverable || rec.Irrecoverable {
		t.Fatal("expected recoverable fork flags")
	}
	irr := IrrecoverableFork("below finalized height")
	if !irr.Irrecoverable || irr.Recoverable {
		t.Fatal("expected irrecoverable fork flags")
	}
}
