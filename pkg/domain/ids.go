package domain

import "github.com/google/uuid"

// Typed identifiers keep the wiring between components honest: a
// TransmissionID can never be handed to a store expecting a CertificateID.

type (
	// CertificateID identifies a signing certificate.
	CertificateID uuid.UUID

	// TransmissionID identifies one transmission lifecycle record.
	TransmissionID uuid.UUID

	// BatchID identifies a batch job.
	BatchID uuid.UUID

	// StampID is the CSID of a cryptographic stamp.
	StampID uuid.UUID
)

func NewCertificateID() CertificateID   { return CertificateID(uuid.New()) }
func NewTransmissionID() TransmissionID { return TransmissionID(uuid.New()) }
func NewBatchID() BatchID               { return BatchID(uuid.New()) }
func NewStampID() StampID               { return StampID(uuid.New()) }

func (id CertificateID) String() string  { return uuid.UUID(id).String() }
func (id TransmissionID) String() string { return uuid.UUID(id).String() }
func (id BatchID) String() string        { return uuid.UUID(id).String() }
func (id StampID) String() string        { return uuid.UUID(id).String() }

func (id CertificateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TransmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id StampID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// The text forms keep ids as canonical UUID strings in JSON and logs.

func (id CertificateID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id TransmissionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id BatchID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id StampID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }

func (id *CertificateID) UnmarshalText(b []byte) error {
	parsed, err := ParseCertificateID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *TransmissionID) UnmarshalText(b []byte) error {
	parsed, err := ParseTransmissionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *BatchID) UnmarshalText(b []byte) error {
	parsed, err := ParseBatchID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *StampID) UnmarshalText(b []byte) error {
	parsed, err := ParseStampID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseCertificateID parses the string form produced by String.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CertificateID{}, err
	}
	return CertificateID(u), nil
}

// ParseTransmissionID parses the string form produced by String.
func ParseTransmissionID(s string) (TransmissionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TransmissionID{}, err
	}
	return TransmissionID(u), nil
}

// ParseBatchID parses the string form produced by String.
func ParseBatchID(s string) (BatchID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return BatchID{}, err
	}
	return BatchID(u), nil
}

// ParseStampID parses the string form produced by String.
func ParseStampID(s string) (StampID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return StampID{}, err
	}
	return StampID(u), nil
}
