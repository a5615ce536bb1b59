package domain

import "time"

// Stage identifies a node of the pipeline state machine, or a terminal
// outcome of a run. Terminal stages have no outgoing transition.
type Stage string

const (
	StageInitialize   Stage = "initialize"
	StageScrape       Stage = "scrape"
	StageMatch        Stage = "match"
	StageValidate     Stage = "validate"
	StageGenerate     Stage = "generate"
	StageErrorHandler Stage = "error_handler"

	StageCompleted  Stage = "completed"
	StageIncomplete Stage = "incomplete"
	StageInvalid    Stage = "invalid"
	StageError      Stage = "error"
)

// Terminal reports whether a run parked on this stage has finished.
// Incomplete and invalid are normal stops that need caller action; only
// error marks a failed run.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageIncomplete, StageInvalid, StageError:
		return true
	default:
		return false
	}
}

type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationWarning ValidationStatus = "warning"
)

type MatchStatus string

const (
	MatchMatched MatchStatus = "matched"
	MatchPartial MatchStatus = "partial"
	MatchMissing MatchStatus = "missing"
)

type Traveler struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	NameLocal         string `json:"name_local,omitempty"`
	Relationship      string `json:"relationship,omitempty"`
	RelationshipLocal string `json:"relationship_local,omitempty"`
	IDNumber          string `json:"id_number,omitempty"`
	PassportExpiry    string `json:"passport_expiry,omitempty"`
}

type Document struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	FilePath         string           `json:"file_path"`
	TravelerID       string           `json:"traveler_id,omitempty"`
	ExtractedText    string           `json:"extracted_text,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationErrors []string         `json:"validation_errors"`
}

// Requirement is immutable once fetched; identity is ID.
type Requirement struct {
	ID                   string         `json:"id"`
	DescriptionPrimary   string         `json:"description_primary"`
	DescriptionSecondary string         `json:"description_secondary,omitempty"`
	Category             string         `json:"category"`
	IsMandatory          bool           `json:"is_mandatory"`
	DocumentType         string         `json:"document_type,omitempty"`
	Specifications       map[string]any `json:"specifications,omitempty"`
}

// MatchResult assigns at most one document to one requirement. Produced
// fresh on every matching pass, never partially updated.
type MatchResult struct {
	RequirementID string      `json:"requirement_id"`
	DocumentID    string      `json:"document_id,omitempty"`
	Score         float64     `json:"score"`
	Status        MatchStatus `json:"status"`
	Notes         []string    `json:"notes"`
}

// RequirementSet is what a requirement source returns, with provenance.
type RequirementSet struct {
	Requirements []Requirement `json:"requirements"`
	SourceURL    string        `json:"source_url"`
	FromCache    bool          `json:"from_cache"`
}

// Artifacts references the generated output package.
type Artifacts struct {
	ApplicationPath string `json:"application_path,omitempty"`
	ChecklistPath   string `json:"checklist_path,omitempty"`
}

// PipelineState is the aggregate record owned by the state machine for the
// lifetime of one request. Each stage transition replaces it with a copy
// differing only in the fields that stage owns.
type PipelineState struct {
	RequestID        string     `json:"request_id"`
	CountryID        string     `json:"country_id"`
	CountryNameLocal string     `json:"country_name_local,omitempty"`
	VisaType         string     `json:"visa_type"`
	Travelers        []Traveler `json:"travelers"`

	CurrentStage Stage     `json:"current_stage"`
	FailedStage  Stage     `json:"failed_stage,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Requirements       []Requirement `json:"requirements"`
	RequirementsSource string        `json:"requirements_source,omitempty"`
	RequirementsCached bool          `json:"requirements_cached"`

	Documents []Document `json:"documents"`

	MatchResults        []MatchResult `json:"match_results"`
	MissingRequirements []string      `json:"missing_requirements"`
	CoverageScore       float64       `json:"coverage_score"`

	ValidationComplete bool     `json:"validation_complete"`
	ValidationErrors   []string `json:"validation_errors"`
	ValidationWarnings []string `json:"validation_warnings"`

	Artifacts Artifacts `json:"artifacts"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
}

// NewPipelineState builds the initial state for one request with explicit
// defaults for every field a later stage reads.
func NewPipelineState(requestID, countryID, countryNameLocal, visaType string, travelers []Traveler, documents []Document, maxRetries int) *PipelineState {
	now := time.Now().UTC()

	docs := make([]Document, len(documents))
	for i, doc := range documents {
		doc.ValidationStatus = ValidationPending
		if doc.ValidationErrors == nil {
			doc.ValidationErrors = []string{}
		}
		docs[i] = doc
	}

	return &PipelineState{
		RequestID:        requestID,
		CountryID:        countryID,
		CountryNameLocal: countryNameLocal,
		VisaType:         visaType,
		Travelers:        travelers,

		CurrentStage: StageInitialize,
		StartedAt:    now,
		UpdatedAt:    now,

		Requirements: []Requirement{},
		Documents:    docs,

		MatchResults:        []MatchResult{},
		MissingRequirements: []string{},

		ValidationErrors:   []string{},
		ValidationWarnings: []string{},

		RetryCount: 0,
		MaxRetries: maxRetries,
	}
}

// WorkflowStatus is the progress view the status endpoint serves.
type WorkflowStatus struct {
	RequestID         string    `json:"request_id"`
	CurrentStage      Stage     `json:"current_stage"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	RequirementsCount int       `json:"requirements_count"`
	MatchedCount      int       `json:"matched_count"`
	MissingCount      int       `json:"missing_count"`
	ValidationErrors  []string  `json:"validation_errors"`
	HasArtifacts      bool      `json:"has_artifacts"`
	RetryCount        int       `json:"retry_count"`
	MaxRetries        int       `json:"max_retries"`
}

// StatusView projects the state into the polling shape.
func (s *PipelineState) StatusView() WorkflowStatus {
	matched := 0
	for _, result := range s.MatchResults {
		if result.Status == MatchMatched {
			matched++
		}
	}
	return WorkflowStatus{
		RequestID:         s.RequestID,
		CurrentStage:      s.CurrentStage,
		StartedAt:         s.StartedAt,
		UpdatedAt:         s.UpdatedAt,
		RequirementsCount: len(s.Requirements),
		MatchedCount:      matched,
		MissingCount:      len(s.MissingRequirements),
		ValidationErrors:  s.ValidationErrors,
		HasArtifacts:      s.Artifacts.ApplicationPath != "" || s.Artifacts.ChecklistPath != "",
		RetryCount:        s.RetryCount,
		MaxRetries:        s.MaxRetries,
	}
}

// MandatoryCount counts mandatory requirements in the fetched set.
func (s *PipelineState) MandatoryCount() int {
	count := 0
	for _, req := range s.Requirements {
		if req.IsMandatory {
			count++
		}
	}
	return count
}

// MissingMandatoryRatio is the transition input after the match stage.
// Zero when the set carries no mandatory requirements.
func (s *PipelineState) MissingMandatoryRatio() float64 {
	mandatory := s.MandatoryCount()
	if mandatory == 0 {
		return 0
	}
	return float64(len(s.MissingRequirements)) / float64(mandatory)
}
