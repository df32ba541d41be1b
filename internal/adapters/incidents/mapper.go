package incidents

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// Mapping controls how a fault candidate becomes a complaint record.
// Templates may reference {{UnitID}}, {{Tag}}, {{Value}}, {{Type}},
// {{Description}}, {{Time}} and {{Percent}}.
type Mapping struct {
	TypeMap             map[string]string `yaml:"complaint_type_map"`
	DefaultType         string            `yaml:"default_type"`
	DefaultStatus       string            `yaml:"default_status"`
	DefaultPriority     string            `yaml:"default_priority"`
	PriorityMap         map[string]string `yaml:"priority_map"`
	TitleTemplate       string            `yaml:"title_template"`
	DescriptionTemplate string            `yaml:"description_template"`
	ContactName         string            `yaml:"contact_name"`
	ContactPhone        string            `yaml:"contact_phone"`
	ContactEmail        string            `yaml:"contact_email"`
}

func (m *Mapping) applyDefaults() {
	if m.DefaultType == "" {
		m.DefaultType = "Street Lighting"
	}
	if m.DefaultStatus == "" {
		m.DefaultStatus = "REGISTERED"
	}
	if m.DefaultPriority == "" {
		m.DefaultPriority = "MEDIUM"
	}
	if m.TitleTemplate == "" {
		m.TitleTemplate = "Fault Captured: {{Type}} ({{Tag}})"
	}
	if m.ContactName == "" {
		m.ContactName = "System Agent"
	}
	if m.ContactPhone == "" {
		m.ContactPhone = "9876543210"
	}
	if m.ContactEmail == "" {
		m.ContactEmail = "system@fixsmart.dev"
	}
}

// draft is the rendered complaint before database resolution assigns
// its identifiers.
type draft struct {
	Title       string
	Description string
	TypeName    string
	Status      string
	Priority    string
	Tags        string
}

// Mapper renders fault candidates into complaint drafts.
type Mapper struct {
	mapping Mapping
}

func NewMapper(mapping Mapping) *Mapper {
	mapping.applyDefaults()
	return &Mapper{mapping: mapping}
}

func (m *Mapper) Render(c domain.FaultCandidate) draft {
	typeName := m.typeName(c.Rule)
	tokens := map[string]string{
		"UnitID":      c.UnitID,
		"Tag":         c.Tag,
		"Value":       c.Value,
		"Type":        typeName,
		"Description": c.Rule.Description,
		"Time":        c.EventTime.UTC().Format(time.RFC3339),
	}
	if c.Stats != nil {
		tokens["Percent"] = c.Stats.DisplayPercent()
	} else {
		tokens["Percent"] = ""
	}

	meta, _ := json.Marshal(map[string]string{
		"rtuId":       c.UnitID,
		"faultType":   c.Rule.FaultType,
		"tag":         c.Tag,
		"value":       c.Value,
		"generatedBy": "faultsync",
	})

	return draft{
		Title:       render(m.mapping.TitleTemplate, tokens),
		Description: m.description(c, tokens),
		TypeName:    typeName,
		Status:      m.mapping.DefaultStatus,
		Priority:    m.priority(c.Rule),
		Tags:        string(meta),
	}
}

func (m *Mapper) typeName(r domain.Rule) string {
	if r.ComplaintType != "" {
		return r.ComplaintType
	}
	if name, ok := m.mapping.TypeMap[r.FaultType]; ok {
		return name
	}
	return m.mapping.DefaultType
}

func (m *Mapper) priority(r domain.Rule) string {
	if p, ok := m.mapping.PriorityMap[r.FaultType]; ok {
		return p
	}
	return m.mapping.DefaultPriority
}

func (m *Mapper) description(c domain.FaultCandidate, tokens map[string]string) string {
	if m.mapping.DescriptionTemplate != "" {
		return render(m.mapping.DescriptionTemplate, tokens)
	}

	parts := []string{"Detailed Fault Report:"}
	if tokens["Type"] != "" {
		parts = append(parts, "Type: "+tokens["Type"])
	}
	if c.Value != "" {
		parts = append(parts, "Value: "+c.Value)
	}
	if c.Tag != "" {
		parts = append(parts, "Tag: "+c.Tag)
	}
	parts = append(parts, "Time: "+tokens["Time"])
	if c.Stats != nil {
		parts = append(parts, "Failure%: "+c.Stats.DisplayPercent())
	}
	return strings.Join(parts, "\n")
}

func render(tpl string, tokens map[string]string) string {
	out := tpl
	for key, value := range tokens {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}
