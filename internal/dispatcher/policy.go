package dispatcher

import (
	"context"

	"github.com/websoft9/agentbridge/internal/frame"
	"github.com/websoft9/agentbridge/internal/upstream"
)

// policyFirstMatch implements the ADD_IDENTITY policy: send verbatim to the
// first upstream and return whatever it returns (§4.6). With no upstream
// configured the reply is FAILURE.
func policyFirstMatch(ctx context.Context, clients []upstream.Client, msg *frame.Message) {
	if len(clients) == 0 {
		msg.SetPayload(frame.FailurePayload())
		return
	}
	if err := clients[0].Exchange(ctx, msg); err != nil {
		msg.SetPayload(frame.FailurePayload())
	}
}

// policyFirstSuccess implements REMOVE_IDENTITY and SIGN_REQUEST: try every
// upstream in order with an independent copy of the request; the first
// reply whose opcode is wantOpcode wins outright (§4.6).
func policyFirstSuccess(ctx context.Context, clients []upstream.Client, msg *frame.Message, wantOpcode byte) {
	original := msg.Clone()
	for _, c := range clients {
		attempt := original.Clone()
		if err := c.Exchange(ctx, attempt); err != nil {
			continue
		}
		if attempt.Opcode() == wantOpcode {
			msg.Data = attempt.Data
			return
		}
	}
	msg.SetPayload(frame.FailurePayload())
}

// policyBroadcast implements REMOVE_ALL_IDENTITIES: send a copy to every
// upstream, ignore individual outcomes, always reply SUCCESS (§4.6).
func policyBroadcast(ctx context.Context, clients []upstream.Client, msg *frame.Message) {
	original := msg.Clone()
	for _, c := range clients {
		attempt := original.Clone()
		_ = c.Exchange(ctx, attempt)
	}
	msg.SetPayload(frame.SuccessPayload())
}

// policyMergeIdentities implements REQUEST_IDENTITIES: send to every
// upstream in order, parse each reply as IDENTITIES_ANSWER, and concatenate
// the identity vectors preserving client order (§4.6, testable property 5).
func policyMergeIdentities(ctx context.Context, clients []upstream.Client, msg *frame.Message) {
	original := msg.Clone()
	var merged []frame.Identity
	for _, c := range clients {
		attempt := original.Clone()
		if err := c.Exchange(ctx, attempt); err != nil {
			continue
		}
		ids, err := frame.DecodeIdentitiesAnswer(attempt.Data)
		if err != nil {
			continue
		}
		merged = append(merged, ids...)
	}
	msg.SetPayload(frame.EncodeIdentitiesAnswer(merged))
}
