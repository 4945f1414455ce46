package planner

import "vpo/internal/model"

// DefaultFlags resolves a phase's DefaultFlagsOp into a set of per-track
// default-flag mutations. For each named type, the first track (in
// TrackSet order) that already carries the default flag keeps it; if none
// does, the first track of that type is set as default. Other tracks of
// that type that carry the flag are cleared only when ClearOthers is set;
// otherwise they keep it.
func DefaultFlags(op model.DefaultFlagsOp, ts model.TrackSet) []model.DefaultFlagChange {
	var changes []model.DefaultFlagChange

	for _, typ := range op.Types {
		tracks := ts.ByType(typ)
		if len(tracks) == 0 {
			continue
		}
		chosen := tracks[0].TrackIndex
		for _, t := range tracks {
			if t.Default {
				chosen = t.TrackIndex
				break
			}
		}
		for _, t := range tracks {
			switch {
			case t.TrackIndex == chosen && !t.Default:
				changes = append(changes, model.DefaultFlagChange{TrackIndex: t.TrackIndex, SetDefault: true})
			case t.TrackIndex != chosen && t.Default && op.ClearOthers:
				changes = append(changes, model.DefaultFlagChange{TrackIndex: t.TrackIndex, SetDefault: false})
			}
		}
	}

	return changes
}
