package domain

// AggregateEquipment merges same-name equipment across all steps of a WMS,
// summing quantities per category. It is a read-time projection; the per-step
// records are never modified.
func AggregateEquipment(w WMS) map[EquipmentCategory][]Equipment {
	out := map[EquipmentCategory][]Equipment{}
	for _, step := range w.Steps {
		for _, eq := range step.Equipment {
			items := out[eq.Category]
			merged := false
			for i := range items {
				if items[i].Name == eq.Name {
					items[i].Quantity += eq.Quantity
					merged = true
					break
				}
			}
			if !merged {
				items = append(items, eq.Clone())
			}
			out[eq.Category] = items
		}
	}
	return out
}
