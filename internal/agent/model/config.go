package model

// ================ Config ================

type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"15m"`
	History struct {
		MaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"10"`
	}
	Escalation struct {
		// Minimum utterance length (runes) before an UNKNOWN intent is
		// escalated to a human instead of silently apologised for.
		MinLength int `envconfig:"CONVERSATION_ESCALATION_MIN_LENGTH" default:"15"`
	}
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.1"`
}

type ComposerModelConfig struct {
	Model       string  `envconfig:"COMPOSER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"COMPOSER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"COMPOSER_TEMPERATURE" default:"0.4"`
}

type ExecutorConfig struct {
	// RepairAttempts bounds how many corrected queries the executor will
	// request from the generator after a failing read.
	RepairAttempts int `envconfig:"QUERY_REPAIR_ATTEMPTS" default:"2"`
}
