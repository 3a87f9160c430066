package domain

type RiskCategory string

const (
	RiskLifting      RiskCategory = "Lifting"
	RiskTransport    RiskCategory = "Transport"
	RiskOceanFreight RiskCategory = "OceanFreight"
	RiskGeneral      RiskCategory = "General"
)

type RiskSource string

const (
	SourceManual RiskSource = "manual"
	SourceAI     RiskSource = "ai"
)

type EquipmentCategory string

const (
	EquipmentCrane     EquipmentCategory = "crane"
	EquipmentTruck     EquipmentCategory = "truck"
	EquipmentPPE       EquipmentCategory = "ppe"
	EquipmentContainer EquipmentCategory = "container"
	EquipmentTool      EquipmentCategory = "tool"
	EquipmentVehicle   EquipmentCategory = "vehicle"
)

// RiskCategories lists the valid risk categories.
var RiskCategories = []RiskCategory{RiskLifting, RiskTransport, RiskOceanFreight, RiskGeneral}

// EquipmentCategories lists the valid equipment categories.
var EquipmentCategories = []EquipmentCategory{
	EquipmentCrane, EquipmentTruck, EquipmentPPE, EquipmentContainer, EquipmentTool, EquipmentVehicle,
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"startDate,omitempty" format:"date-time"`
	EndDate     string `json:"endDate,omitempty" format:"date-time"`
	WMSList     []WMS  `json:"wmsList"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
	UpdatedAt   string `json:"updatedAt" format:"date-time"`
}

type WMS struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	Title      string     `json:"title"`
	Scope      string     `json:"scope"`
	Tags       []string   `json:"tags"`
	Steps      []WorkStep `json:"steps"`
	Risks      []Risk     `json:"risks"`
	TemplateID string     `json:"templateId,omitempty"`
	CreatedAt  string     `json:"createdAt" format:"date-time"`
	UpdatedAt  string     `json:"updatedAt" format:"date-time"`
}

// WorkStep order values are 1-based, dense, and contiguous within a WMS.
type WorkStep struct {
	ID          string      `json:"id"`
	WMSID       string      `json:"wmsId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Equipment   []Equipment `json:"equipment"`
	Notes       string      `json:"notes,omitempty"`
	Order       int         `json:"order"`
}

type Risk struct {
	ID                string       `json:"id"`
	WMSID             string       `json:"wmsId"`
	Type              RiskCategory `json:"type" enum:"Lifting,Transport,OceanFreight,General"`
	Description       string       `json:"description"`
	Severity          int          `json:"severity" minimum:"1" maximum:"5"`
	Likelihood        int          `json:"likelihood" minimum:"1" maximum:"5"`
	Mitigation        string       `json:"mitigation"`
	AssociatedStepIDs []string     `json:"associatedStepIds,omitempty"`
	Source            RiskSource   `json:"source" enum:"manual,ai"`
}

type Equipment struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Category EquipmentCategory `json:"category" enum:"crane,truck,ppe,container,tool,vehicle"`
	Quantity int               `json:"quantity" minimum:"1"`
	Icon     string            `json:"icon,omitempty"`
}

// TemplateWMS is a WMS snapshot stripped of identity fields (id, projectId,
// timestamps). Instantiating it mints fresh ids for the new WMS and for every
// embedded step and risk.
type TemplateWMS struct {
	Title string     `json:"title"`
	Scope string     `json:"scope"`
	Tags  []string   `json:"tags"`
	Steps []WorkStep `json:"steps"`
	Risks []Risk     `json:"risks"`
}

type Template struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	WMS         TemplateWMS `json:"wms"`
	CreatedAt   string      `json:"createdAt" format:"date-time"`
	UpdatedAt   string      `json:"updatedAt" format:"date-time"`
}

// IsGeneral reports whether the risk has no step association.
func (r Risk) IsGeneral() bool {
	return len(r.AssociatedStepIDs) == 0
}

// ValidRiskCategory reports whether c is one of the known categories.
func ValidRiskCategory(c RiskCategory) bool {
	for _, k := range RiskCategories {
		if k == c {
			return true
		}
	}
	return false
}

// ValidEquipmentCategory reports whether c is one of the known categories.
func ValidEquipmentCategory(c EquipmentCategory) bool {
	for _, k := range EquipmentCategories {
		if k == c {
			return true
		}
	}
	return false
}
