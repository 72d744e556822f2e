package job

// transitions enumerates the valid forward edges of the shared lifecycle state
// machine (spec §4.3). Error is reachable from any non-terminal state via the
// Runner's error handler, not listed here since that edge is taken out-of-band.
var transitions = map[Status][]Status{
	StatusCreated:                     {StatusStartedFetchingInputs, StatusProgramInputsPrepared},
	StatusStartedFetchingInputs:       {StatusProgramInputsPrepared},
	StatusProgramInputsPrepared:       {StatusStartedTraceGeneration, StatusPieGenerated},
	StatusStartedTraceGeneration:      {StatusPieGenerated},
	StatusPieGenerated:                {StatusOffchainProofRequested},
	StatusOffchainProofRequested:      {StatusOffchainProofRetrieved},
	StatusOffchainProofRetrieved:      {StatusWrapProofRequested},
	StatusWrapProofRequested:          {StatusWrappedProofDone},
	StatusWrappedProofDone:            {StatusOffchainComputationFinished},
	StatusOffchainComputationFinished: {StatusReadyToBroadcastOnchain, StatusDone},
	StatusReadyToBroadcastOnchain:     {StatusProofVerifyCalledOnchain, StatusDone},
	StatusProofVerifyCalledOnchain:    {StatusDone},
}

// ValidTransition reports whether to is a valid forward step from from, or whether to
// is the universal Error/Cancelled escape valid from any non-terminal state.
func ValidTransition(from, to Status) bool {
	if to == StatusError || to == StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
