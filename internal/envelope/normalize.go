package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Normalize ensures meta.confidence exists (possibly nil), synthesizes
// missing tool_ids for a "tools" envelope, and stamps envelope_id/timestamp
// if absent. It never changes the envelope's meaning, only fills gaps.
func Normalize(env *Envelope) *Envelope {
	if env == nil {
		return env
	}

	if env.EffectiveState() == StateTools {
		for i := range env.Tools {
			if env.Tools[i].ToolID == "" {
				env.Tools[i].ToolID = fmt.Sprintf("tool_%d", i)
			}
		}
	}

	if env.EnvelopeID == "" {
		env.EnvelopeID = uuid.NewString()
	}
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	return env
}
