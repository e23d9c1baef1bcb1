package world

import (
	"encoding/json"

	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/catalogs"
)

func (w *World) joinClient(req JoinRequest) JoinResponse {
	clientID := w.newClientID()
	role := req.Role
	if role == "" {
		role = protocol.RoleObserver
	}
	if req.Out != nil {
		w.clients[clientID] = &clientState{Out: req.Out, Role: role, needFull: true}
	}
	return JoinResponse{
		ClientID: clientID,
		Welcome:  w.buildWelcome(clientID, role),
		Catalogs: w.buildCatalogMsgs(),
	}
}

func (w *World) buildWelcome(clientID, role string) protocol.WelcomeMsg {
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       clientID,
		Role:            role,
		WorldParams: protocol.WorldParams{
			WorldID:        w.cfg.ID,
			TickRateHz:     w.cfg.TickRateHz,
			GateEveryTicks: w.cfg.GateEveryTicks,
			Channels:       ChannelNames(),
			SlotCount:      SlotCount,
			MaxSignal:      MaxSignal,
		},
	}
	if w.catalogs != nil {
		msg.Catalogs = protocol.CatalogDigests{
			TriggerPalette: protocol.DigestRef{Digest: w.catalogs.Triggers.PaletteDigest, Count: len(w.catalogs.Triggers.Palette)},
			ActionPalette:  protocol.DigestRef{Digest: w.catalogs.Actions.PaletteDigest, Count: len(w.catalogs.Actions.Palette)},
		}
	}
	return msg
}

type triggerCatalogData struct {
	Palette []string              `json:"palette"`
	Defs    []catalogs.TriggerDef `json:"defs"`
}

type actionCatalogData struct {
	Palette []string             `json:"palette"`
	Defs    []catalogs.ActionDef `json:"defs"`
}

func (w *World) buildCatalogMsgs() []protocol.CatalogMsg {
	if w.catalogs == nil {
		return nil
	}
	tdata := triggerCatalogData{Palette: w.catalogs.Triggers.Palette}
	for _, id := range w.catalogs.Triggers.Palette[1:] {
		tdata.Defs = append(tdata.Defs, w.catalogs.Triggers.Defs[id])
	}
	adata := actionCatalogData{Palette: w.catalogs.Actions.Palette}
	for _, id := range w.catalogs.Actions.Palette[1:] {
		adata.Defs = append(adata.Defs, w.catalogs.Actions.Defs[id])
	}
	return []protocol.CatalogMsg{
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "triggers",
			Digest:          w.catalogs.Triggers.DefsDigest,
			Part:            1,
			TotalParts:      1,
			Data:            tdata,
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "actions",
			Digest:          w.catalogs.Actions.DefsDigest,
			Part:            1,
			TotalParts:      1,
			Data:            adata,
		},
	}
}

func (w *World) sendEditResult(clientID string, nowTick uint64, results []protocol.OpResult) {
	c := w.clients[clientID]
	if c == nil || c.Out == nil {
		return
	}
	b, err := json.Marshal(protocol.EditResultMsg{
		Type:            protocol.TypeEditResult,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Results:         results,
	})
	if err != nil {
		return
	}
	// A full queue drops the result; STATE messages are never evicted for it.
	trySend(c.Out, b)
}
