package answer

// Merge returns a copy of current in which the entry for t is replaced by incoming.
// The whole section is replaced, not merged key by key; every other section is
// carried over untouched. current is never modified.
func Merge(current Sheets, t SectionType, incoming Sheet) Sheets {
	out := make(Sheets, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	if incoming == nil {
		out[t] = Sheet{}
	} else {
		out[t] = incoming.Clone()
	}
	return out
}
