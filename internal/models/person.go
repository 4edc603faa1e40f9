package models

// PersonContext is the directory record of a known contact and the project
// they are attached to. It is a read-only snapshot for one pipeline run.
type PersonContext struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	Service            string `json:"service"`
	Company            string `json:"company"`
	RelationType       string `json:"relation_type"`
	ProjectTitle       string `json:"project_title"`
	ProjectDescription string `json:"project_description"`
	LatestDecision     string `json:"latest_decision"`
}

// UnknownPersonName marks the sentinel contact.
const UnknownPersonName = "Unknown"

// UnknownPerson returns the sentinel contact substituted when a sender is not
// in the directory.
func UnknownPerson(email string) PersonContext {
	return PersonContext{
		Name:               UnknownPersonName,
		Email:              email,
		Role:               "Unknown",
		Service:            "Unknown",
		Company:            "Unknown",
		RelationType:       "Unknown",
		ProjectTitle:       "Unknown Project",
		ProjectDescription: "No description available",
		LatestDecision:     "No previous decisions recorded",
	}
}

// IsUnknown reports whether p is the sentinel contact.
func (p PersonContext) IsUnknown() bool {
	return p.Name == UnknownPersonName
}
