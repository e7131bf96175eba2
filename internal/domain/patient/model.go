// Package patient defines the Patient aggregate root and its owned child
// collections: PatientName, PatientIdentifier, PatientAddress,
// PatientContact, and PatientLink. The aggregate is the transactional
// consistency boundary described by the persistence core — child rows have
// no durable identity of their own across updates; the aggregate's write
// operations own their entire lifecycle.
package patient

import (
	"time"

	"github.com/google/uuid"
)

// Gender is the administrative gender closed set.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// NameUse classifies a PatientName's purpose.
type NameUse string

const (
	NameUseUsual     NameUse = "usual"
	NameUseOfficial  NameUse = "official"
	NameUseTemp      NameUse = "temp"
	NameUseNickname  NameUse = "nickname"
	NameUseAnonymous NameUse = "anonymous"
	NameUseOld       NameUse = "old"
	NameUseMaiden    NameUse = "maiden"
)

// IdentifierType is the closed set of identifier kinds.
type IdentifierType string

const (
	IdentifierMRN   IdentifierType = "MRN"
	IdentifierSSN   IdentifierType = "SSN"
	IdentifierDL    IdentifierType = "DL"
	IdentifierNPI   IdentifierType = "NPI"
	IdentifierPPN   IdentifierType = "PPN"
	IdentifierTAX   IdentifierType = "TAX"
	IdentifierOTHER IdentifierType = "OTHER"
)

// AddressUse classifies a PatientAddress's purpose.
type AddressUse string

const (
	AddressUseHome AddressUse = "home"
	AddressUseWork AddressUse = "work"
	AddressUseTemp AddressUse = "temp"
	AddressUseOld  AddressUse = "old"
)

// ContactChannel is the closed set of contact-point channels.
type ContactChannel string

const (
	ContactPhone ContactChannel = "phone"
	ContactFax   ContactChannel = "fax"
	ContactEmail ContactChannel = "email"
	ContactPager ContactChannel = "pager"
	ContactURL   ContactChannel = "url"
	ContactSMS   ContactChannel = "sms"
	ContactOther ContactChannel = "other"
)

// LinkType is the closed set of directed relations a PatientLink may carry.
type LinkType string

const (
	LinkReplacedBy LinkType = "replaced_by"
	LinkReplaces   LinkType = "replaces"
	LinkRefer      LinkType = "refer"
	LinkSeeAlso    LinkType = "seealso"
)

// Patient is the aggregate root. An aggregate is either live (DeletedAt is
// nil) or tombstoned (DeletedAt is set); reads filter tombstoned rows by
// default. Deletion is soft and identity is never reused.
type Patient struct {
	ID                  uuid.UUID
	Active              bool
	Gender              Gender
	BirthDate           *time.Time // calendar day, time-of-day ignored
	Deceased            bool
	DeceasedAt          *time.Time
	MaritalStatus       *string
	MultipleBirth       *bool
	ManagingOrganization *uuid.UUID

	Names       []PatientName
	Identifiers []PatientIdentifier
	Addresses   []PatientAddress
	Contacts    []PatientContact
	Links       []PatientLink

	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
	DeletedAt *time.Time
	DeletedBy *string
}

// IsLive reports whether the aggregate has not been tombstoned.
func (p *Patient) IsLive() bool { return p.DeletedAt == nil }

// PrimaryName returns the patient's single primary name, or nil if none is
// marked primary (a live patient always has exactly one).
func (p *Patient) PrimaryName() *PatientName {
	for i := range p.Names {
		if p.Names[i].IsPrimary {
			return &p.Names[i]
		}
	}
	return nil
}

// PrimaryAddress returns the patient's primary address, or nil.
func (p *Patient) PrimaryAddress() *PatientAddress {
	for i := range p.Addresses {
		if p.Addresses[i].IsPrimary {
			return &p.Addresses[i]
		}
	}
	return nil
}

// PrimaryContact returns the patient's primary contact, or nil.
func (p *Patient) PrimaryContact() *PatientContact {
	for i := range p.Contacts {
		if p.Contacts[i].IsPrimary {
			return &p.Contacts[i]
		}
	}
	return nil
}

// PatientName is a name owned exclusively by one patient.
type PatientName struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Use       NameUse
	Family    string
	Given     []string
	Prefix    []string
	Suffix    []string
	IsPrimary bool
}

// PatientIdentifier is an identifier owned exclusively by one patient.
// (Type, System, Value) combined with global (System, Value) uniqueness is
// enforced by the store across live and tombstoned rows.
type PatientIdentifier struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Type      IdentifierType
	System    string
	Value     string
	Assigner  *string
}

// PatientAddress is an address owned exclusively by one patient.
type PatientAddress struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	Use        AddressUse
	Line1      *string
	Line2      *string
	City       *string
	State      *string
	PostalCode *string
	Country    *string
	IsPrimary  bool
}

// PatientContact is a contact point owned exclusively by one patient.
type PatientContact struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Channel   ContactChannel
	Value     string
	Use       string
	IsPrimary bool
}

// PatientLink is a directed relation from this patient to another. The
// target patient is not owned by the link's patient; soft-deleted targets
// remain referenceable for historical continuity.
type PatientLink struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	OtherID   uuid.UUID
	Type      LinkType
	CreatedAt time.Time
}
