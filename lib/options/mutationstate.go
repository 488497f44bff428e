package options

// MutationToken is the causality marker a mutation returns. It travels in
// both directions: produced inside mutation results, and consumed by query
// options to request read-your-writes consistency, which is why it lives in
// this leaf package.
type MutationToken struct {
	PartitionID    uint16
	PartitionUUID  uint64
	SequenceNumber uint64
	BucketName     string
}

// MutationState collects the tokens a query must observe.
type MutationState struct {
	Tokens []MutationToken
}

// NewMutationState builds a state from the given tokens.
func NewMutationState(tokens ...MutationToken) *MutationState {
	ms := &MutationState{}
	ms.Add(tokens...)
	return ms
}

// Add appends tokens, skipping zero ones.
func (ms *MutationState) Add(tokens ...MutationToken) {
	for _, t := range tokens {
		if t == (MutationToken{}) {
			continue
		}
		ms.Tokens = append(ms.Tokens, t)
	}
}
