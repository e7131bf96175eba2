package scoring

import (
	"testing"
	"time"

	"github.com/carelattice/mpi/internal/domain/patient"
)

func mrn(value string) patient.PatientIdentifier {
	return patient.PatientIdentifier{Type: patient.IdentifierMRN, System: "urn:mpi:mrn", Value: value}
}

func TestScore_ExactMatch_Definite(t *testing.T) {
	// Every composite input is present on both sides (including a name
	// prefix and an address), so each field scores 1.0 and the total is 1.0.
	dob := dateOf(1980, 1, 15)
	line1, city, state, postal := "123 Main St", "Springfield", "IL", "12345"
	addr := patient.PatientAddress{Line1: &line1, City: &city, State: &state, PostalCode: &postal, IsPrimary: true}
	a := &patient.Patient{
		Gender:      patient.GenderMale,
		BirthDate:   dob,
		Names:       []patient.PatientName{{Family: "Smith", Given: []string{"John"}, Prefix: []string{"Mr"}, IsPrimary: true}},
		Addresses:   []patient.PatientAddress{addr},
		Identifiers: []patient.PatientIdentifier{mrn("MRN-1")},
	}
	b := &patient.Patient{
		Gender:      patient.GenderMale,
		BirthDate:   dob,
		Names:       []patient.PatientName{{Family: "Smith", Given: []string{"John"}, Prefix: []string{"Mr"}, IsPrimary: true}},
		Addresses:   []patient.PatientAddress{addr},
		Identifiers: []patient.PatientIdentifier{mrn("MRN-1")},
	}

	scorer := DefaultScorer()
	res, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !closeEnough(res.Score, 1.0) {
		t.Errorf("expected score 1.00, got %v", res.Score)
	}
	if res.Classification != ClassificationDefinite {
		t.Errorf("expected Definite, got %v", res.Classification)
	}
}

func TestScore_NicknameAndOffByOneDOB_Possible(t *testing.T) {
	a := &patient.Patient{
		Gender:    patient.GenderMale,
		BirthDate: dateOf(1975, 6, 1),
		Names:     []patient.PatientName{{Family: "Carter", Given: []string{"William"}, IsPrimary: true}},
	}
	b := &patient.Patient{
		Gender:    patient.GenderMale,
		BirthDate: dateOf(1975, 6, 2),
		Names:     []patient.PatientName{{Family: "Carter", Given: []string{"Bill"}, IsPrimary: true}},
	}

	scorer := DefaultScorer()
	res, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// name composite = 0.88, dob = 0.95, gender = 1.0, no address/identifier
	// total = 0.35*0.88 + 0.30*0.95 + 0.10*1.0 = 0.308 + 0.285 + 0.10 = 0.693
	if !closeEnough(res.Score, 0.693) {
		t.Errorf("expected score 0.693, got %v", res.Score)
	}
	if res.Classification != ClassificationPossible {
		t.Errorf("expected Possible, got %v", res.Classification)
	}
}

func TestScore_MonthDayTransposition(t *testing.T) {
	dobA := dateOf(1980, 3, 12)
	dobB := dateOf(1980, 12, 3)
	got := DOBScore(dobA, dobB)
	if !closeEnough(got, 0.90) {
		t.Errorf("expected DOB score 0.90, got %v", got)
	}
}

func TestScore_DeterministicIdentifierShortCircuit(t *testing.T) {
	a := &patient.Patient{
		Gender:      patient.GenderFemale,
		Names:       []patient.PatientName{{Family: "Totallydifferent", Given: []string{"Alsodifferent"}, IsPrimary: true}},
		Identifiers: []patient.PatientIdentifier{mrn("SAME-MRN")},
	}
	b := &patient.Patient{
		Gender:      patient.GenderMale,
		Names:       []patient.PatientName{{Family: "Another", Given: []string{"Name"}, IsPrimary: true}},
		Identifiers: []patient.PatientIdentifier{mrn("SAME-MRN")},
	}

	scorer := &Scorer{Strategy: StrategyDeterministic, Weights: DefaultWeights(), Threshold: 0.85}
	res, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !closeEnough(res.Score, 1.0) {
		t.Errorf("expected identifier short-circuit score 1.00, got %v", res.Score)
	}
	if !res.Match {
		t.Error("expected Match=true on identifier short-circuit")
	}
}

func TestScore_ZIPPrefixAddress(t *testing.T) {
	zipA, zipB := "12345", "12389"
	a := &patient.Patient{
		Names:     []patient.PatientName{{Family: "Jones", Given: []string{"Amy"}, IsPrimary: true}},
		Addresses: []patient.PatientAddress{{PostalCode: &zipA, IsPrimary: true}},
	}
	b := &patient.Patient{
		Names:     []patient.PatientName{{Family: "Jones", Given: []string{"Amy"}, IsPrimary: true}},
		Addresses: []patient.PatientAddress{{PostalCode: &zipB, IsPrimary: true}},
	}

	scorer := DefaultScorer()
	res, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	addrScore := AddressScore(a.Addresses, b.Addresses)
	if !closeEnough(addrScore, 0.30*0.70) {
		t.Errorf("expected address score %v, got %v", 0.30*0.70, addrScore)
	}
	_ = res
}

func TestScore_Symmetry(t *testing.T) {
	a := &patient.Patient{
		Gender:      patient.GenderMale,
		BirthDate:   dateOf(1990, 7, 4),
		Names:       []patient.PatientName{{Family: "Nguyen", Given: []string{"Minh"}, IsPrimary: true}},
		Identifiers: []patient.PatientIdentifier{mrn("MRN-SYM-1")},
	}
	b := &patient.Patient{
		Gender:      patient.GenderMale,
		BirthDate:   dateOf(1990, 7, 5),
		Names:       []patient.PatientName{{Family: "Nguyen", Given: []string{"Min"}, IsPrimary: true}},
		Identifiers: []patient.PatientIdentifier{mrn("MRN-SYM-2")},
	}

	scorer := DefaultScorer()
	ab, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score(a,b): %v", err)
	}
	ba, err := scorer.Score(b, a)
	if err != nil {
		t.Fatalf("Score(b,a): %v", err)
	}
	if !closeEnough(ab.Score, ba.Score) {
		t.Errorf("expected symmetric scores, got %v vs %v", ab.Score, ba.Score)
	}
}

func TestScore_DeterministicPointCounting(t *testing.T) {
	dob := dateOf(1985, 5, 20)
	a := &patient.Patient{
		Gender:    patient.GenderFemale,
		BirthDate: dob,
		Names:     []patient.PatientName{{Family: "Patel", Given: []string{"Rina"}, IsPrimary: true}},
	}
	b := &patient.Patient{
		Gender:    patient.GenderFemale,
		BirthDate: dob,
		Names:     []patient.PatientName{{Family: "Patel", Given: []string{"Rina"}, IsPrimary: true}},
	}

	scorer := &Scorer{Strategy: StrategyDeterministic, Weights: DefaultWeights(), Threshold: 0.85}
	res, err := scorer.Score(a, b)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !res.Match {
		t.Errorf("expected match on full point agreement, got score %v", res.Score)
	}
}

var _ = time.Now
