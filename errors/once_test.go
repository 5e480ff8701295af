package errors_test

import (
	"io"
	"sync"
	"testing"

	"github.com/fdupoux/fsarchiver-go/errors"
)

func TestOnceKeepsFirstError(t *testing.T) {
	var once errors.Once
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			once.Set(errors.E(errors.Corrupt, "worker error"))
		}(i)
	}
	wg.Wait()
	first := once.Err()
	if first == nil {
		t.Fatalf("expected an error to be recorded")
	}
	once.Set(errors.E(errors.Invalid, "later error"))
	if once.Err() != first {
		t.Fatalf("expected the first error to be kept, got %v", once.Err())
	}
}

func TestOnceNilIsNoop(t *testing.T) {
	var once errors.Once
	once.Set(nil)
	if once.Err() != nil {
		t.Fatalf("expected no error recorded")
	}
}

func TestOnceIgnoredErrorsAreDropped(t *testing.T) {
	once := errors.Once{Ignored: []error{io.EOF}}
	once.Set(io.EOF)
	if once.Err() != nil {
		t.Fatalf("expected io.EOF to be ignored")
	}
	once.Set(errors.E(errors.Invalid, "real error"))
	if once.Err() == nil {
		t.Fatalf("expected real error to be recorded")
	}
}
