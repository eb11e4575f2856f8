package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PatientKey derives the stable patient identity from the practice id and the
// external id carried by the source export. The same pair always maps to the
// same key, so re-imports update rather than duplicate.
func PatientKeyFor(practiceID, externalPatientID string) string {
	return sha256Hex(practiceID + ":" + externalPatientID)
}

// TouchIDFor derives the deterministic touch identity. One (practice,
// campaign, patient, touch type) quadruple always maps to the same touch,
// which is what makes touch creation idempotent.
func TouchIDFor(practiceID, campaignID, patientKey, touchType string) string {
	return sha256Hex(strings.Join([]string{practiceID, campaignID, patientKey, touchType}, ":"))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
