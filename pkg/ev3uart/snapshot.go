package ev3uart

import "github.com/librescoot/ev3uart-service/pkg/registry"

// snapshotLocked builds the upward descriptor from current Port state.
// Called with Port.mu held.
func (p *Port) snapshotLocked() registry.Snapshot {
	snap := registry.Snapshot{
		TypeID:       p.typeID,
		NumModes:     p.numModes,
		NumViewModes: p.numViewModes,
		CurrentMode:  p.currentMode,
	}
	for i := 0; i <= ModeMax; i++ {
		m := p.modeInfo[i]
		snap.Modes[i] = registry.ModeSnapshot{
			Name:     m.Name,
			Units:    m.Units,
			RawMin:   m.RawMinF(),
			RawMax:   m.RawMaxF(),
			PctMin:   m.PctMinF(),
			PctMax:   m.PctMaxF(),
			SIMin:    m.SIMinF(),
			SIMax:    m.SIMaxF(),
			DataSets: m.DataSets,
			Format:   registry.DataFormat(m.Format),
			Figures:  m.Figures,
			Decimals: m.Decimals,
			RawData:  append([]byte(nil), m.RawData[:]...),
		}
	}
	return snap
}

// Snapshot returns a copy of the current upward descriptor, useful for
// callers outside the handshake path (e.g. a status endpoint).
func (p *Port) Snapshot() registry.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}
