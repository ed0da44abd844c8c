package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseStampID("")
		require.Error(t, err)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTransmissionID("not-a-uuid")
		require.Error(t, err)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		csid, err := ParseStampID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, StampID(valid), csid)
	})

	t.Run("string form round-trips", func(t *testing.T) {
		recordID := NewTransmissionID()
		parsed, err := ParseTransmissionID(recordID.String())
		require.NoError(t, err)
		assert.Equal(t, recordID, parsed)
	})
}

// TestAllIDTypes_ConsistentParsing ensures every ID type applies the same
// validation, so no endpoint ends up with a laxer trust boundary.
func TestAllIDTypes_ConsistentParsing(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", "'; DROP TABLE stamps;--"}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errCert := ParseCertificateID(validUUID)
		_, errTransmission := ParseTransmissionID(validUUID)
		_, errBatch := ParseBatchID(validUUID)
		_, errStamp := ParseStampID(validUUID)

		require.NoError(t, errCert)
		require.NoError(t, errTransmission)
		require.NoError(t, errBatch)
		require.NoError(t, errStamp)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errCert := ParseCertificateID(input)
			_, errTransmission := ParseTransmissionID(input)
			_, errBatch := ParseBatchID(input)
			_, errStamp := ParseStampID(input)

			require.Error(t, errCert)
			require.Error(t, errTransmission)
			require.Error(t, errBatch)
			require.Error(t, errStamp)
		})
	}
}

// IDs cross the wire inside request and response bodies, so they must
// serialize as canonical UUID strings, not as byte arrays.
func TestIDsMarshalAsUUIDStrings(t *testing.T) {
	csid := NewStampID()

	raw, err := json.Marshal(csid)
	require.NoError(t, err)
	assert.Equal(t, `"`+csid.String()+`"`, string(raw))

	var decoded StampID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, csid, decoded)

	var invalid StampID
	require.Error(t, json.Unmarshal([]byte(`"bogus"`), &invalid))
}
