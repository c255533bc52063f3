package graph

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/pkg/guardrail"
)

// inputGuardNode checks the combined user input for PII.
//
// Low-severity matches (email, phone, card, IP) are masked and processing
// continues. Critical matches (passport, SSN, API keys, JWTs) reject the
// message. Also captures the run's start time for response timing.
func (g *Graph) inputGuardNode(_ context.Context, s *State) (*Update, error) {
	combined := strings.Join(s.RawUserMessages, "\n")
	result := guardrail.Detect(combined)
	now := time.Now()

	if result.HasCritical {
		slog.Warn("Rejected message",
			"thread_id", s.ThreadID,
			"reason", result.RejectionReason)
		return &Update{
			Guardrail: &GuardrailResult{
				Status:           GuardrailStatusRejected,
				ProcessedContent: nil,
				Violations:       result.Matches,
				RejectionReason:  result.RejectionReason,
			},
			ProcessedInput: strPtr(""),
			StartTime:      &now,
		}, nil
	}

	status := GuardrailStatusClean
	if result.HasLow {
		slog.Info("Masked PII in input",
			"thread_id", s.ThreadID,
			"matches", len(result.Matches))
		status = GuardrailStatusMasked
	}

	masked := result.MaskedText
	return &Update{
		Guardrail: &GuardrailResult{
			Status:           status,
			ProcessedContent: &masked,
			Violations:       result.Matches,
		},
		ProcessedInput: &masked,
		StartTime:      &now,
	}, nil
}

// rejectNode is the terminal node for rejected messages.
func (g *Graph) rejectNode(_ context.Context, s *State) (*Update, error) {
	content := "Message contains sensitive data and cannot be processed."
	if s.Guardrail != nil && s.Guardrail.RejectionReason != "" {
		content = "Message rejected: " + s.Guardrail.RejectionReason
	}
	return &Update{FinalContent: &content}, nil
}
