package inject

import (
	"fmt"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// KeybdBackend synthesizes input through virtual-key events
// (micmonay/keybd_event) and the atotto clipboard. It is aimed at Windows
// and Linux setups where robotgo's hook is unavailable. Key synthesis
// covers letters, digits and whitespace; anything else reports an error so
// the engine falls back to the clipboard.
type KeybdBackend struct {
	kb keybd_event.KeyBonding
}

var _ Backend = (*KeybdBackend)(nil)

// NewKeybdBackend prepares the virtual-key bonding.
func NewKeybdBackend() (*KeybdBackend, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keybd backend: %w", err)
	}
	return &KeybdBackend{kb: kb}, nil
}

var keybdVK = map[rune]int{
	'a': keybd_event.VK_A, 'b': keybd_event.VK_B, 'c': keybd_event.VK_C,
	'd': keybd_event.VK_D, 'e': keybd_event.VK_E, 'f': keybd_event.VK_F,
	'g': keybd_event.VK_G, 'h': keybd_event.VK_H, 'i': keybd_event.VK_I,
	'j': keybd_event.VK_J, 'k': keybd_event.VK_K, 'l': keybd_event.VK_L,
	'm': keybd_event.VK_M, 'n': keybd_event.VK_N, 'o': keybd_event.VK_O,
	'p': keybd_event.VK_P, 'q': keybd_event.VK_Q, 'r': keybd_event.VK_R,
	's': keybd_event.VK_S, 't': keybd_event.VK_T, 'u': keybd_event.VK_U,
	'v': keybd_event.VK_V, 'w': keybd_event.VK_W, 'x': keybd_event.VK_X,
	'y': keybd_event.VK_Y, 'z': keybd_event.VK_Z,
	'0': keybd_event.VK_0, '1': keybd_event.VK_1, '2': keybd_event.VK_2,
	'3': keybd_event.VK_3, '4': keybd_event.VK_4, '5': keybd_event.VK_5,
	'6': keybd_event.VK_6, '7': keybd_event.VK_7, '8': keybd_event.VK_8,
	'9': keybd_event.VK_9,
	' ': keybd_event.VK_SPACE, '\n': keybd_event.VK_ENTER, '\t': keybd_event.VK_TAB,
}

func (b *KeybdBackend) KeyChar(r rune) error {
	vk, ok := keybdVK[unicode.ToLower(r)]
	if !ok {
		return fmt.Errorf("no virtual-key mapping for %q", r)
	}
	b.kb.Clear()
	b.kb.SetKeys(vk)
	b.kb.HasSHIFT(unicode.IsUpper(r))
	return b.kb.Launching()
}

func (b *KeybdBackend) PasteChord() error {
	b.kb.Clear()
	b.kb.SetKeys(keybd_event.VK_V)
	b.kb.HasCTRL(true)
	err := b.kb.Launching()
	b.kb.HasCTRL(false)
	return err
}

func (b *KeybdBackend) ClipboardRead() (string, error) {
	return clipboard.ReadAll()
}

func (b *KeybdBackend) ClipboardWrite(text string) error {
	return clipboard.WriteAll(text)
}
