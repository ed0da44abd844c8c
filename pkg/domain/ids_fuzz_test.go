//go:build go1.18

package domain

import "testing"

// FuzzParseStampID checks that parsing never panics on arbitrary input and
// that any accepted value round-trips through its string form.
func FuzzParseStampID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		csid, err := ParseStampID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseStampID(csid.String())
		if err != nil {
			t.Errorf("accepted value failed round-trip: %v", err)
		}
		if roundTrip != csid {
			t.Error("round-trip changed the value")
		}
	})
}

// FuzzParseAllIDs checks that the four ID types apply identical validation.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errCert := ParseCertificateID(input)
		_, errTransmission := ParseTransmissionID(input)
		_, errBatch := ParseBatchID(input)
		_, errStamp := ParseStampID(input)

		accepted := errCert == nil
		if (errTransmission == nil) != accepted || (errBatch == nil) != accepted || (errStamp == nil) != accepted {
			t.Error("inconsistent validation across ID types")
		}
	})
}
