package types

// IsValidStatusTransition validates a forward pipeline transition.
//
// Valid transitions:
//
//	pending      -> transcribing | failed
//	transcribing -> analyzing    | failed
//	analyzing    -> embedding    | failed
//	embedding    -> completed    | failed
//	completed    -> (terminal)
//	failed       -> (terminal)
//
// The re-embed re-entry performed by a content edit is not a forward
// transition; see CanReenterForReembed.
func IsValidStatusTransition(from, to ProcessingStatus) bool {
	if to == StatusFailed {
		return !from.IsTerminal() && isKnownStatus(from)
	}

	switch from {
	case StatusPending:
		return to == StatusTranscribing
	case StatusTranscribing:
		return to == StatusAnalyzing
	case StatusAnalyzing:
		return to == StatusEmbedding
	case StatusEmbedding:
		return to == StatusCompleted
	default:
		return false
	}
}

// CanReenterForReembed reports whether a memory in the given status is sent back
// to the embedding step when its content is edited.
func CanReenterForReembed(status ProcessingStatus) bool {
	return status == StatusCompleted || status == StatusEmbedding
}

// NextStatus returns the pipeline step that follows status, or "" when status is terminal.
func NextStatus(status ProcessingStatus) ProcessingStatus {
	switch status {
	case StatusPending:
		return StatusTranscribing
	case StatusTranscribing:
		return StatusAnalyzing
	case StatusAnalyzing:
		return StatusEmbedding
	case StatusEmbedding:
		return StatusCompleted
	default:
		return ""
	}
}

func isKnownStatus(status ProcessingStatus) bool {
	switch status {
	case StatusPending, StatusTranscribing, StatusAnalyzing, StatusEmbedding, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
