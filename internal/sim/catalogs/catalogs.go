package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// NoneID is the reserved palette entry at index 0 of every palette.
// A slot holding index 0 is an empty binding.
const NoneID = "NONE"

// Trigger kinds.
const (
	TriggerSignal      = "SIGNAL"
	TriggerEntityState = "ENTITY_STATE"
)

// Action kinds.
const (
	ActionRedstoneOutput = "REDSTONE_OUTPUT"
	ActionSignalOutput   = "SIGNAL_OUTPUT"
	ActionPulser         = "PULSER"
	ActionDispatch       = "DISPATCH"
)

var channelNames = map[string]struct{}{
	"RED":    {},
	"BLUE":   {},
	"GREEN":  {},
	"YELLOW": {},
}

type Catalogs struct {
	Triggers TriggerCatalog
	Actions  ActionCatalog
}

type TriggerCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]TriggerDef
	PaletteDigest string
	DefsDigest    string
}

type TriggerDef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "SIGNAL","ENTITY_STATE"

	// SIGNAL
	Channel string `json:"channel,omitempty"`
	Active  bool   `json:"active,omitempty"`

	// ENTITY_STATE
	State string `json:"state,omitempty"`
}

type ActionCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ActionDef
	PaletteDigest string
	DefsDigest    string
}

type ActionDef struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "REDSTONE_OUTPUT","SIGNAL_OUTPUT","PULSER","DISPATCH"
	Channel string `json:"channel,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadTriggers(filepath.Join(configDir, "triggers.json"), &c.Triggers); err != nil {
		return nil, err
	}
	if err := loadActions(filepath.Join(configDir, "actions.json"), &c.Actions); err != nil {
		return nil, err
	}
	return &c, nil
}

// TriggerName returns the palette name for idx, or "" for none/out of range.
func (c *TriggerCatalog) TriggerName(idx uint16) string {
	if c == nil || idx == 0 || int(idx) >= len(c.Palette) {
		return ""
	}
	return c.Palette[idx]
}

// ActionName returns the palette name for idx, or "" for none/out of range.
func (c *ActionCatalog) ActionName(idx uint16) string {
	if c == nil || idx == 0 || int(idx) >= len(c.Palette) {
		return ""
	}
	return c.Palette[idx]
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadTriggers(path string, out *TriggerCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []TriggerDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("triggers.json: %w", err)
	}
	out.Defs = map[string]TriggerDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("triggers.json: empty id")
		}
		if d.ID == NoneID {
			return fmt.Errorf("triggers.json: %s is reserved", NoneID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("triggers.json: duplicate id %s", d.ID)
		}
		switch d.Kind {
		case TriggerSignal:
			if _, ok := channelNames[d.Channel]; !ok {
				return fmt.Errorf("triggers.json: %s: unknown channel %q", d.ID, d.Channel)
			}
		case TriggerEntityState:
			if d.State == "" {
				return fmt.Errorf("triggers.json: %s: missing state", d.ID)
			}
		default:
			return fmt.Errorf("triggers.json: %s: unknown kind %q", d.ID, d.Kind)
		}
		out.Defs[d.ID] = d
	}

	out.Palette, out.Index = buildPalette(out.Defs)
	palJSON, _ := json.Marshal(out.Palette)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadActions(path string, out *ActionCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ActionDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("actions.json: %w", err)
	}
	out.Defs = map[string]ActionDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("actions.json: empty id")
		}
		if d.ID == NoneID {
			return fmt.Errorf("actions.json: %s is reserved", NoneID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("actions.json: duplicate id %s", d.ID)
		}
		switch d.Kind {
		case ActionSignalOutput:
			if _, ok := channelNames[d.Channel]; !ok {
				return fmt.Errorf("actions.json: %s: unknown channel %q", d.ID, d.Channel)
			}
		case ActionRedstoneOutput, ActionPulser, ActionDispatch:
		default:
			return fmt.Errorf("actions.json: %s: unknown kind %q", d.ID, d.Kind)
		}
		out.Defs[d.ID] = d
	}

	out.Palette, out.Index = buildPalette(out.Defs)
	palJSON, _ := json.Marshal(out.Palette)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// buildPalette sorts ids and reserves index 0 for NONE.
func buildPalette[T any](defs map[string]T) ([]string, map[string]uint16) {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ids = append([]string{NoneID}, ids...)

	index := make(map[string]uint16, len(ids))
	for i, id := range ids {
		index[id] = uint16(i)
	}
	return ids, index
}
