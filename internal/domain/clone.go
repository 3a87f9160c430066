package domain

// Deep copies. The store hands snapshots to callers and keeps templates
// isolated from instantiated documents; nothing below may share a slice with
// its source.

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func (e Equipment) Clone() Equipment {
	return e
}

func cloneEquipment(in []Equipment) []Equipment {
	if in == nil {
		return nil
	}
	out := make([]Equipment, len(in))
	copy(out, in)
	return out
}

func (s WorkStep) Clone() WorkStep {
	c := s
	c.Equipment = cloneEquipment(s.Equipment)
	return c
}

func (r Risk) Clone() Risk {
	c := r
	c.AssociatedStepIDs = cloneStrings(r.AssociatedStepIDs)
	return c
}

func cloneSteps(in []WorkStep) []WorkStep {
	if in == nil {
		return nil
	}
	out := make([]WorkStep, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func cloneRisks(in []Risk) []Risk {
	if in == nil {
		return nil
	}
	out := make([]Risk, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func (w WMS) Clone() WMS {
	c := w
	c.Tags = cloneStrings(w.Tags)
	c.Steps = cloneSteps(w.Steps)
	c.Risks = cloneRisks(w.Risks)
	return c
}

func (p Project) Clone() Project {
	c := p
	if p.WMSList != nil {
		c.WMSList = make([]WMS, len(p.WMSList))
		for i, w := range p.WMSList {
			c.WMSList[i] = w.Clone()
		}
	}
	return c
}

func (t TemplateWMS) Clone() TemplateWMS {
	c := t
	c.Tags = cloneStrings(t.Tags)
	c.Steps = cloneSteps(t.Steps)
	c.Risks = cloneRisks(t.Risks)
	return c
}

func (t Template) Clone() Template {
	c := t
	c.Tags = cloneStrings(t.Tags)
	c.WMS = t.WMS.Clone()
	return c
}

func CloneProjects(in []Project) []Project {
	if in == nil {
		return nil
	}
	out := make([]Project, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func CloneTemplates(in []Template) []Template {
	if in == nil {
		return nil
	}
	out := make([]Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
