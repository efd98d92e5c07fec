package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RecordKind discriminates the record variants a block can commit
type RecordKind string

const (
	RecordKindGenesis   RecordKind = "genesis"
	RecordKindPatient   RecordKind = "patient"
	RecordKindHospital  RecordKind = "hospital"
	RecordKindDiagnosis RecordKind = "diagnosis"
)

// Record is the payload of a ledger block. Exactly one variant is set and it matches Kind.
type Record struct {
	Kind      RecordKind       `json:"kind"`
	Patient   *PatientRecord   `json:"patient,omitempty"`
	Hospital  *HospitalRecord  `json:"hospital,omitempty"`
	Diagnosis *DiagnosisRecord `json:"diagnosis,omitempty"`
}

// PatientRecord represents a patient registration
type PatientRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DateOfBirth string   `json:"dateOfBirth,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	BloodGroup  string   `json:"bloodGroup,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
}

// HospitalRecord represents a hospital registration
type HospitalRecord struct {
	HospitalID  string   `json:"hospitalId"`
	Name        string   `json:"name"`
	DoctorName  string   `json:"doctorName,omitempty"`
	Address     string   `json:"address,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// DiagnosisRecord represents a diagnosis event for a patient
type DiagnosisRecord struct {
	ID           string `json:"id"`
	PatientID    string `json:"patientId"`
	DoctorName   string `json:"doctorName,omitempty"`
	HospitalID   string `json:"hospitalId,omitempty"`
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// GenesisRecord returns the fixed payload of the genesis block
func GenesisRecord() Record {
	return Record{Kind: RecordKindGenesis}
}

// Validate checks that exactly the variant named by Kind is present and complete
func (r Record) Validate() error {
	set := 0
	for _, present := range []bool{r.Patient != nil, r.Hospital != nil, r.Diagnosis != nil} {
		if present {
			set++
		}
	}

	switch r.Kind {
	case RecordKindGenesis:
		if set != 0 {
			return invalidRecord("genesis record carries no body", nil)
		}
		return nil
	case RecordKindPatient:
		if r.Patient == nil || set != 1 {
			return invalidRecord("patient record requires exactly the patient body", nil)
		}
		return requireFields(map[string]string{"patient.id": r.Patient.ID})
	case RecordKindHospital:
		if r.Hospital == nil || set != 1 {
			return invalidRecord("hospital record requires exactly the hospital body", nil)
		}
		return requireFields(map[string]string{
			"hospital.hospitalId": r.Hospital.HospitalID,
			"hospital.name":       r.Hospital.Name,
		})
	case RecordKindDiagnosis:
		if r.Diagnosis == nil || set != 1 {
			return invalidRecord("diagnosis record requires exactly the diagnosis body", nil)
		}
		return requireFields(map[string]string{
			"diagnosis.id":        r.Diagnosis.ID,
			"diagnosis.patientId": r.Diagnosis.PatientID,
			"diagnosis.diagnosis": r.Diagnosis.Diagnosis,
		})
	case "":
		return invalidRecord("record kind is required", nil)
	default:
		return invalidRecord(fmt.Sprintf("unknown record kind %q", r.Kind), nil)
	}
}

// RecordID returns the identifier embedded in the record body
func (r Record) RecordID() string {
	switch r.Kind {
	case RecordKindPatient:
		if r.Patient != nil {
			return r.Patient.ID
		}
	case RecordKindHospital:
		if r.Hospital != nil {
			return r.Hospital.HospitalID
		}
	case RecordKindDiagnosis:
		if r.Diagnosis != nil {
			return r.Diagnosis.ID
		}
	}
	return ""
}

// PatientID returns the patient the record refers to, if any
func (r Record) PatientID() string {
	switch r.Kind {
	case RecordKindPatient:
		if r.Patient != nil {
			return r.Patient.ID
		}
	case RecordKindDiagnosis:
		if r.Diagnosis != nil {
			return r.Diagnosis.PatientID
		}
	}
	return ""
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := Record{Kind: r.Kind}
	if r.Patient != nil {
		p := *r.Patient
		p.Conditions = cloneStrings(r.Patient.Conditions)
		out.Patient = &p
	}
	if r.Hospital != nil {
		h := *r.Hospital
		h.Specialties = cloneStrings(r.Hospital.Specialties)
		out.Hospital = &h
	}
	if r.Diagnosis != nil {
		d := *r.Diagnosis
		out.Diagnosis = &d
	}
	return out
}

// Canonical returns the canonical serialization used for hashing.
// Struct field order fixes the key order, so equal records always serialize identically.
func (r Record) Canonical() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, invalidRecord("record is not serializable", err)
	}
	return data, nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return NewValidationError(ErrCodeValidationFailed, "missing required fields", map[string]interface{}{
		"missing": missing,
	})
}

func invalidRecord(message string, cause error) error {
	err := NewValidationError(ErrCodeInvalidInput, message, nil)
	err.Cause = cause
	return err
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
