// Package patient provides the client for the CarePath DB API and the types
// for the patient summary document it returns. The summary is owned and
// versioned by the DB API; this service treats it as an immutable snapshot
// for the duration of one request.
package patient

import "encoding/json"

// Name is a patient's name as stored by the DB API.
type Name struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// Address is a patient's address.
type Address struct {
	Line1 string `json:"line1"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

// Condition is a coded medical condition.
type Condition struct {
	Code      string `json:"code"`
	System    string `json:"system"`
	Display   string `json:"display"`
	OnsetDate string `json:"onset_date,omitempty"`
}

// Medication is an active or historical medication.
type Medication struct {
	DrugCode  string `json:"drug_code"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Sig       string `json:"sig"`
}

// Allergy is a recorded allergy.
type Allergy struct {
	Substance string `json:"substance"`
	Reaction  string `json:"reaction"`
	Severity  string `json:"severity"`
}

// Patient is the base patient record.
type Patient struct {
	ID          string       `json:"_id,omitempty"`
	MRN         string       `json:"mrn"`
	Name        Name         `json:"name"`
	DOB         string       `json:"dob"`
	Sex         string       `json:"sex"`
	Address     Address      `json:"address"`
	Conditions  []Condition  `json:"conditions"`
	Medications []Medication `json:"medications"`
	Allergies   []Allergy    `json:"allergies"`
	RiskScore   float64      `json:"risk_score,omitempty"`
}

// Diagnosis is a coded encounter diagnosis.
type Diagnosis struct {
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display"`
}

// Encounter is a clinical encounter.
type Encounter struct {
	ID          string      `json:"_id,omitempty"`
	PatientMRN  string      `json:"patient_mrn"`
	EncounterID string      `json:"encounter_id"`
	Type        string      `json:"type"`
	Location    string      `json:"location"`
	Start       string      `json:"start"`
	End         string      `json:"end"`
	Diagnoses   []Diagnosis `json:"diagnoses"`
	Notes       string      `json:"notes,omitempty"`
}

// Claim is a billing claim.
type Claim struct {
	ID                    string   `json:"_id,omitempty"`
	ClaimID               string   `json:"claim_id"`
	PatientMRN            string   `json:"patient_mrn"`
	Payer                 string   `json:"payer"`
	ServiceDate           string   `json:"service_date"`
	CPTCodes              []string `json:"cpt_codes"`
	ICD10Codes            []string `json:"icd10_codes"`
	BilledAmount          float64  `json:"billed_amount"`
	AllowedAmount         float64  `json:"allowed_amount"`
	PatientResponsibility float64  `json:"patient_responsibility"`
	Status                string   `json:"status"`
}

// Document is a clinical document (care plan, visit note, etc).
type Document struct {
	ID         string   `json:"_id,omitempty"`
	DocID      string   `json:"doc_id"`
	PatientMRN string   `json:"patient_mrn"`
	SourceType string   `json:"source_type"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags,omitempty"`
}

// SummaryMetadata carries the counts the DB API computed for the summary.
type SummaryMetadata struct {
	MRN            string `json:"mrn"`
	EncounterCount int    `json:"encounter_count"`
	ClaimCount     int    `json:"claim_count"`
	DocumentCount  int    `json:"document_count"`
}

// Summary is the aggregate the DB API returns from
// GET /patients/{mrn}/summary. The DB API bounds the lists (recent-N
// encounters/claims, capped documents), so no further truncation happens
// here.
type Summary struct {
	Patient          Patient         `json:"patient"`
	RecentEncounters []Encounter     `json:"recent_encounters"`
	RecentClaims     []Claim         `json:"recent_claims"`
	Documents        []Document      `json:"documents"`
	Metadata         SummaryMetadata `json:"summary_metadata"`

	// Raw is the response body exactly as the DB API sent it, preserved so
	// prompt grounding includes fields this service does not model. Not
	// re-serialized.
	Raw json.RawMessage `json:"-"`
}
