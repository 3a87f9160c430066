package server

import (
	"wmsforge/internal/domain"
	"wmsforge/internal/risk"
)

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
	StartDate   *string `json:"startDate,omitempty"`
	EndDate     *string `json:"endDate,omitempty"`
}

type CreateWMSRequest struct {
	Title string `json:"title"`
	Scope string `json:"scope,omitempty"`
}

type CreateStepRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type MoveStepRequest struct {
	Position int `json:"position" minimum:"1"`
}

type CreateRiskRequest struct {
	Type              domain.RiskCategory `json:"type" enum:"Lifting,Transport,OceanFreight,General"`
	Description       string              `json:"description"`
	Severity          int                 `json:"severity" minimum:"1" maximum:"5"`
	Likelihood        int                 `json:"likelihood" minimum:"1" maximum:"5"`
	Mitigation        string              `json:"mitigation"`
	AssociatedStepIDs []string            `json:"associatedStepIds,omitempty"`
	Source            domain.RiskSource   `json:"source,omitempty" enum:"manual,ai,"`
}

type AddEquipmentRequest struct {
	Name     string                   `json:"name"`
	Category domain.EquipmentCategory `json:"category" enum:"crane,truck,ppe,container,tool,vehicle"`
	Quantity int                      `json:"quantity" minimum:"1"`
	Icon     string                   `json:"icon,omitempty"`
}

type SaveTemplateRequest struct {
	ProjectID string `json:"projectId"`
	WMSID     string `json:"wmsId"`
	Title     string `json:"title,omitempty"`
}

type SuggestRequest struct {
	Analysis string `json:"analysis" enum:"lifting,transport,ocean,general"`
}

type SelectProjectRequest struct {
	ProjectID string `json:"projectId"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string `json:"token"`
	ActorID string `json:"actorId"`
}

// RiskResponse decorates a risk with its computed level.
type RiskResponse struct {
	domain.Risk
	Level risk.Level `json:"level" enum:"Low,Medium,High"`
}

func riskResponse(r domain.Risk) RiskResponse {
	return RiskResponse{Risk: r, Level: risk.Score(r.Severity, r.Likelihood)}
}

func (r CreateRiskRequest) toDomain() domain.Risk {
	return domain.Risk{
		Type:              r.Type,
		Description:       r.Description,
		Severity:          r.Severity,
		Likelihood:        r.Likelihood,
		Mitigation:        r.Mitigation,
		AssociatedStepIDs: r.AssociatedStepIDs,
		Source:            r.Source,
	}
}
