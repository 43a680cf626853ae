/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"fmt"

	"github.com/editorqa/uidriver/cdp/domains"
	"github.com/editorqa/uidriver/keyboard"
)

// Keyboard turns key names into CDP key events using the US layout.
type Keyboard struct {
	input  domains.Input
	layout *keyboard.Layout
}

// NewKeyboard returns a new keyboard with the US layout.
func NewKeyboard(input domains.Input) *Keyboard {
	return &Keyboard{
		input:  input,
		layout: keyboard.US(),
	}
}

// Press presses and releases key. Modifiers can be combined with "+", as
// in "Control+a" or "Shift+Tab".
func (k *Keyboard) Press(ctx context.Context, key string) error {
	s, err := k.layout.Press(key)
	if err != nil {
		return err
	}
	evt := domains.KeyEvent{
		Key:       s.Key,
		Code:      s.Code,
		Text:      s.Text,
		KeyCode:   s.KeyCode,
		Location:  s.Location,
		Modifiers: int64(s.Modifiers),
	}
	if err := k.input.KeyPress(ctx, evt); err != nil {
		return fmt.Errorf("pressing %q: %w", key, err)
	}

	return nil
}

// Type sends a key press for each character in text. Characters missing
// from the layout are inserted without key events.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	for _, c := range text {
		if !k.layout.Has(string(c)) {
			if err := k.input.InsertText(ctx, string(c)); err != nil {
				return fmt.Errorf("cannot insert text: %w", err)
			}
			continue
		}
		if err := k.Press(ctx, string(c)); err != nil {
			return err
		}
	}

	return nil
}
