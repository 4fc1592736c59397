package storage

import (
	"context"
	"fmt"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

// Move is one object that changes key.
type Move struct {
	From string
	To   string
}

// CopyAll copies every move in order. When a copy fails the copies already made are removed, so
// the bucket is left as it was found, and the error names the failing source.
func CopyAll(ctx context.Context, s ObjectStore, moves []Move) error {
	for i, m := range moves {
		if err := s.Copy(ctx, m.From, m.To); err != nil {
			RemoveAll(ctx, s, targets(moves[:i]))
			return fmt.Errorf("copy %s: %w", m.From, err)
		}
	}
	return nil
}

// RemoveAll removes keys, logging the ones that could not be removed.
func RemoveAll(ctx context.Context, s ObjectStore, keys []string) {
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			logutils.Log.WithFields(logutils.Fields{"key": key}).Warnf("remove object: %v", err)
		}
	}
}

func targets(moves []Move) []string {
	keys := make([]string, len(moves))
	for i, m := range moves {
		keys[i] = m.To
	}
	return keys
}

// Sources lists the keys moves copy from.
func Sources(moves []Move) []string {
	keys := make([]string, len(moves))
	for i, m := range moves {
		keys[i] = m.From
	}
	return keys
}
