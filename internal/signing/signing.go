// Package signing defines the key-holder port. Private keys are exclusively
// owned by the holder; the rest of the system only requests operations
// against a key handle (the certificate id).
package signing

import "context"

// Algorithm names accepted by the key-holder.
const AlgorithmEd25519 = "ED25519"

// KeyHolder generates and uses signing keys without ever releasing them.
type KeyHolder interface {
	// GenerateKey creates a key pair under the given handle and returns
	// only the public part.
	GenerateKey(ctx context.Context, handle string, algorithm string) (publicKey []byte, err error)

	// Sign produces a signature over digest with the key under handle.
	Sign(ctx context.Context, handle string, digest []byte) ([]byte, error)
}
