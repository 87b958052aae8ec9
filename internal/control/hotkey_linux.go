//go:build linux

package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.design/x/hotkey"
)

var modifiers = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.Mod1,
	"super": hotkey.Mod4,
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

// parseHotkey reads combinations like "ctrl+shift+k".
func parseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.ReplaceAll(s, " ", "")), "+")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("hotkey %q needs at least one modifier", s)
	}

	var mods []hotkey.Modifier
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifiers[p]
		if !ok {
			return nil, 0, fmt.Errorf("unknown modifier %q", p)
		}
		mods = append(mods, m)
	}

	name := parts[len(parts)-1]
	if k, ok := namedKeys[name]; ok {
		return mods, k, nil
	}
	if len(name) == 1 {
		// X keysyms for ascii letters and digits are the characters themselves
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return mods, hotkey.KeyA + hotkey.Key(c-'a'), nil
		case c >= '0' && c <= '9':
			return mods, hotkey.Key0 + hotkey.Key(c-'0'), nil
		}
	}
	return nil, 0, fmt.Errorf("unknown key %q", name)
}

// Watch registers the global hotkey and calls fn on every press until ctx
// is done.
func Watch(ctx context.Context, combo string, fn func(), log *slog.Logger) error {
	mods, key, err := parseHotkey(combo)
	if err != nil {
		return err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %s: %w", combo, err)
	}
	defer hk.Unregister()

	log.Info("Hotkey registered", "combo", combo)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hk.Keydown():
			log.Debug("Hotkey pressed", "combo", combo)
			fn()
		}
	}
}
