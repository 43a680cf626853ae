package keyboard

// usLayout is the US QWERTY layout, keyed by code.
func usLayout() *Layout {
	keys := map[string]Definition{
		// Functions row
		"Escape": {KeyCode: 27, Key: "Escape", Code: "Escape"},

		// Control keys
		"Backspace":  {KeyCode: 8, Code: "Backspace", Key: "Backspace"},
		"Tab":        {KeyCode: 9, Code: "Tab", Key: "Tab"},
		"Enter":      {KeyCode: 13, Code: "Enter", Key: "Enter", Text: "\r"},
		"Space":      {KeyCode: 32, Key: " ", Code: "Space"},
		"PageUp":     {KeyCode: 33, Code: "PageUp", Key: "PageUp"},
		"PageDown":   {KeyCode: 34, Code: "PageDown", Key: "PageDown"},
		"End":        {KeyCode: 35, Code: "End", Key: "End"},
		"Home":       {KeyCode: 36, Code: "Home", Key: "Home"},
		"ArrowLeft":  {KeyCode: 37, Code: "ArrowLeft", Key: "ArrowLeft"},
		"ArrowUp":    {KeyCode: 38, Code: "ArrowUp", Key: "ArrowUp"},
		"ArrowRight": {KeyCode: 39, Code: "ArrowRight", Key: "ArrowRight"},
		"ArrowDown":  {KeyCode: 40, Code: "ArrowDown", Key: "ArrowDown"},
		"Insert":     {KeyCode: 45, Code: "Insert", Key: "Insert"},
		"Delete":     {KeyCode: 46, Code: "Delete", Key: "Delete"},

		// Modifiers
		"ShiftLeft":    {KeyCode: 16, Code: "ShiftLeft", Key: "Shift", Location: 1},
		"ControlLeft":  {KeyCode: 17, Code: "ControlLeft", Key: "Control", Location: 1},
		"AltLeft":      {KeyCode: 18, Code: "AltLeft", Key: "Alt", Location: 1},
		"MetaLeft":     {KeyCode: 91, Code: "MetaLeft", Key: "Meta", Location: 1},
		"ShiftRight":   {KeyCode: 16, Code: "ShiftRight", Key: "Shift", Location: 2},
		"ControlRight": {KeyCode: 17, Code: "ControlRight", Key: "Control", Location: 2},
		"AltRight":     {KeyCode: 18, Code: "AltRight", Key: "Alt", Location: 2},
		"MetaRight":    {KeyCode: 92, Code: "MetaRight", Key: "Meta", Location: 2},

		// Punctuation
		"Minus":        {KeyCode: 189, Code: "Minus", ShiftKey: "_", Key: "-"},
		"Equal":        {KeyCode: 187, Code: "Equal", ShiftKey: "+", Key: "="},
		"BracketLeft":  {KeyCode: 219, Code: "BracketLeft", ShiftKey: "{", Key: "["},
		"BracketRight": {KeyCode: 221, Code: "BracketRight", ShiftKey: "}", Key: "]"},
		"Backslash":    {KeyCode: 220, Code: "Backslash", ShiftKey: "|", Key: "\\"},
		"Semicolon":    {KeyCode: 186, Code: "Semicolon", ShiftKey: ":", Key: ";"},
		"Quote":        {KeyCode: 222, Code: "Quote", ShiftKey: "\"", Key: "'"},
		"Backquote":    {KeyCode: 192, Code: "Backquote", ShiftKey: "~", Key: "`"},
		"Comma":        {KeyCode: 188, Code: "Comma", ShiftKey: "<", Key: ","},
		"Period":       {KeyCode: 190, Code: "Period", ShiftKey: ">", Key: "."},
		"Slash":        {KeyCode: 191, Code: "Slash", ShiftKey: "?", Key: "/"},
	}

	const shiftedDigits = ")!@#$%^&*("
	for i := 0; i < 10; i++ {
		d := string(rune('0' + i))
		keys["Digit"+d] = Definition{
			KeyCode:  int64(48 + i),
			Code:     "Digit" + d,
			Key:      d,
			ShiftKey: string(shiftedDigits[i]),
		}
	}
	for r := 'a'; r <= 'z'; r++ {
		upper := string(r - 'a' + 'A')
		keys["Key"+upper] = Definition{
			KeyCode:  int64(r - 'a' + 65),
			Code:     "Key" + upper,
			Key:      string(r),
			ShiftKey: upper,
		}
	}

	return newLayout("us", keys)
}
