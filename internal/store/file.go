package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
)

// File keeps messages in memory and rewrites a JSON file on every save.
type File struct {
	mu     sync.RWMutex
	items  map[string]concrete.Message
	path   string
	logger logrus.FieldLogger
}

// NewFile opens the store at path, loading any messages already there.
func NewFile(path string, logger logrus.FieldLogger) (*File, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f := &File{
		items:  make(map[string]concrete.Message),
		path:   path,
		logger: logger.WithField("path", path),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return concrete.NewStoreError("load", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &f.items); err != nil {
		return concrete.NewStoreError("load", fmt.Errorf("%s is not a message file: %w", f.path, err))
	}
	f.logger.WithField("messages", len(f.items)).Debug("message file loaded")
	return nil
}

// saveLocked writes through a temporary file so a crash never leaves a
// truncated store behind. Callers hold f.mu.
func (f *File) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(f.items, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// SaveMessage implements concrete.MessageStore.
func (f *File) SaveMessage(ctx context.Context, msg concrete.Message) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}
	if err := validate(msg); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[msg.ID] = msg
	if err := f.saveLocked(); err != nil {
		delete(f.items, msg.ID)
		return concrete.NewStoreError("save_message", err)
	}
	f.logger.WithField("message_id", msg.ID).Debug("message saved")
	return nil
}

// GetMessage returns the message with id.
func (f *File) GetMessage(ctx context.Context, id string) (concrete.Message, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return concrete.Message{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	msg, ok := f.items[id]
	if !ok {
		return concrete.Message{}, fmt.Errorf("%w: %w", ErrNotFound, errbuilder.NotFoundErr(errbuilder.GenericErr("message not found", nil)))
	}
	return msg, nil
}

// ListMessages implements concrete.MessageStore.
func (f *File) ListMessages(ctx context.Context, operatorID string) ([]concrete.Message, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}
	f.mu.RLock()
	var out []concrete.Message
	for _, msg := range f.items {
		if msg.OperatorID == operatorID {
			out = append(out, msg)
		}
	}
	f.mu.RUnlock()
	sortByTime(out)
	return out, nil
}

// Close implements concrete.MessageStore. Every save is already on disk.
func (f *File) Close() error { return nil }
