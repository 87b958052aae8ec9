//go:build !linux

package control

import (
	"context"
	"errors"
	"log/slog"
)

func Watch(ctx context.Context, combo string, fn func(), log *slog.Logger) error {
	return errors.New("global hotkeys are only supported on linux")
}
