package event

// Audit-log payloads for configuration, registry, role, and reward
// operations. All are produced by the engine after the mutation commits.

type DefaultConfigUpdatedPayload struct {
	Caller     string `json:"caller"`
	MaxGainBps int64  `json:"max_gain_bps"`
	MaxLossBps int64  `json:"max_loss_bps"`
}

type CustomConfigUpdatedPayload struct {
	Caller     string `json:"caller"`
	Vault      string `json:"vault"`
	MaxGainBps int64  `json:"max_gain_bps"`
	MaxLossBps int64  `json:"max_loss_bps"`
}

type CustomConfigRemovedPayload struct {
	Caller string `json:"caller"`
	Vault  string `json:"vault"`
}

type VaultChangedPayload struct {
	Caller string `json:"caller"`
	Vault  string `json:"vault"`
	Asset  string `json:"asset"`
}

type HealthCheckSkipArmedPayload struct {
	Caller   string `json:"caller"`
	Vault    string `json:"vault"`
	Strategy string `json:"strategy"`
}

type RewardsDistributedPayload struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	SweepID   string `json:"sweep_id"`
}

type ManagerProposedPayload struct {
	Caller    string `json:"caller"`
	Candidate string `json:"candidate"`
}

type ManagerAcceptedPayload struct {
	Manager string `json:"manager"`
}

type RoleUpdatedPayload struct {
	Caller   string `json:"caller"`
	Identity string `json:"identity"`
}
