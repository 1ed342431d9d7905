package frame

import "fmt"

// Identity is one (blob, comment) pair as carried by IDENTITIES_ANSWER.
type Identity struct {
	Blob    []byte
	Comment string
}

// EncodeIdentitiesAnswer builds the IDENTITIES_ANSWER payload:
// byte(12) || u32(n) || n x (string blob, string comment), preserving the
// order of ids exactly (testable property 5 — identity aggregation order).
func EncodeIdentitiesAnswer(ids []Identity) []byte {
	w := NewFieldWriter()
	w.Byte(OpIdentitiesAnswer)
	w.Uint32(uint32(len(ids)))
	for _, id := range ids {
		w.String(id.Blob)
		w.String([]byte(id.Comment))
	}
	return w.Bytes()
}

// DecodeIdentitiesAnswer parses an IDENTITIES_ANSWER payload into its
// identity vector. It returns an error if the opcode byte is not
// OpIdentitiesAnswer or the payload is truncated.
func DecodeIdentitiesAnswer(payload []byte) ([]Identity, error) {
	r := NewFieldReader(payload)
	op, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("frame: decode identities answer: %w", err)
	}
	if op != OpIdentitiesAnswer {
		return nil, fmt.Errorf("frame: decode identities answer: opcode %d != %d", op, OpIdentitiesAnswer)
	}
	n, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("frame: decode identities answer: count: %w", err)
	}

	ids := make([]Identity, 0, n)
	for i := uint32(0); i < n; i++ {
		blob, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("frame: decode identities answer: blob %d: %w", i, err)
		}
		comment, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("frame: decode identities answer: comment %d: %w", i, err)
		}
		ids = append(ids, Identity{Blob: append([]byte(nil), blob...), Comment: string(comment)})
	}
	return ids, nil
}

// FailurePayload is the canonical single-byte FAILURE reply.
func FailurePayload() []byte { return []byte{OpFailure} }

// SuccessPayload is the canonical single-byte SUCCESS reply.
func SuccessPayload() []byte { return []byte{OpSuccess} }
